package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Transport error codes recorded in TransportError.Code.
const (
	ErrCodeTimeout           = "timeout"
	ErrCodeCanceled          = "canceled"
	ErrCodeDNS               = "dns"
	ErrCodeConnRefused       = "connection_refused"
	ErrCodeConnReset         = "connection_reset"
	ErrCodeTLS               = "tls"
	ErrCodeInvalidURL        = "invalid_url"
	ErrCodeUnsupportedScheme = "unsupported_scheme"
	ErrCodeReadBody          = "read_body"
	ErrCodeUnknown           = "unknown"
)

// TransportError describes a failure below HTTP: the request never produced
// a usable response (or its body could not be read).
type TransportError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newTransportError(code string, err error) *TransportError {
	return &TransportError{Code: code, Message: err.Error()}
}

// classifyError maps a client.Do failure onto a TransportError code.
func classifyError(err error) *TransportError {
	var (
		dnsErr  *net.DNSError
		netErr  net.Error
		certErr *tls.CertificateVerificationError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		recErr  tls.RecordHeaderError
	)

	code := ErrCodeUnknown
	switch {
	case errors.Is(err, context.Canceled):
		code = ErrCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.As(err, &dnsErr):
		code = ErrCodeDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		code = ErrCodeConnRefused
	case errors.Is(err, syscall.ECONNRESET):
		code = ErrCodeConnReset
	case errors.As(err, &certErr), errors.As(err, &authErr),
		errors.As(err, &hostErr), errors.As(err, &recErr):
		code = ErrCodeTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		code = ErrCodeTimeout
	case strings.Contains(err.Error(), "tls:"):
		// utls handshake failures are not typed.
		code = ErrCodeTLS
	}
	return newTransportError(code, err)
}
