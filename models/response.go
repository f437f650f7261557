package models

import (
	"github.com/use-agent/unhide/fetcher"
	"github.com/use-agent/unhide/preview"
	"github.com/use-agent/unhide/resolver"
)

// ResolveResponse is the response for POST /api/v1/resolve.
type ResolveResponse struct {
	// Success is true when the chase landed on a content page.
	Success bool `json:"success"`

	// URL is the URL that was submitted.
	URL string `json:"url"`

	// EndURL is the effective URL of the last fetch. Empty when the
	// chase hit the step ceiling.
	EndURL string `json:"end_url"`

	// Status is "found", "error" or "too_many_redirects".
	Status resolver.Status `json:"status"`

	StepCount int            `json:"step_count"`
	History   []HistoryEntry `json:"history"`

	// Preview is set only when requested and Status is "found".
	Preview *preview.Preview `json:"preview,omitempty"`

	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HistoryEntry is one fetch of the chase, flattened for the API.
type HistoryEntry struct {
	Step         int                     `json:"step"`
	Type         resolver.StepType       `json:"type"`
	URL          string                  `json:"url"`
	EffectiveURL string                  `json:"effective_url"`
	Referer      string                  `json:"referer,omitempty"`
	StatusCode   int                     `json:"status_code,omitempty"`
	ContentType  string                  `json:"content_type,omitempty"`
	RedirectURL  string                  `json:"redirect_url,omitempty"`
	Kind         resolver.Kind           `json:"kind,omitempty"`
	TargetURL    string                  `json:"target_url,omitempty"`
	DurationMs   int64                   `json:"duration_ms"`
	Error        *fetcher.TransportError `json:"error,omitempty"`
	Body         string                  `json:"body,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the summed duration of every fetch in the chase.
	FetchMs int64 `json:"fetch_ms"`

	// PreviewMs is the time spent building the preview.
	PreviewMs int64 `json:"preview_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"` // "healthy"
	Uptime       string `json:"uptime"`
	Version      string `json:"version"`
	MaxSteps     int    `json:"max_steps"`
	CacheEntries int    `json:"cache_entries"`
}

// NewResolveResponse flattens a Resolution. Bodies are kept only when
// includeBody is set.
func NewResolveResponse(rawURL string, res *resolver.Resolution, includeBody bool) *ResolveResponse {
	resp := &ResolveResponse{
		Success:   res.Status == resolver.StatusFound,
		URL:       rawURL,
		EndURL:    res.EndURL,
		Status:    res.Status,
		StepCount: res.StepCount,
		History:   make([]HistoryEntry, 0, len(res.History)),
	}

	for i, step := range res.History {
		f := step.Fetch
		entry := HistoryEntry{
			Step:         i + 1,
			Type:         step.Type,
			URL:          f.RequestedURL,
			EffectiveURL: f.EffectiveURL,
			Referer:      f.Referer,
			StatusCode:   f.StatusCode,
			ContentType:  f.ContentType,
			RedirectURL:  f.RedirectURL,
			DurationMs:   f.Duration.Milliseconds(),
			Error:        f.TransportError,
		}
		if step.Classification != nil {
			entry.Kind = step.Classification.Kind
			entry.TargetURL = step.Classification.TargetURL
		}
		if includeBody {
			entry.Body = f.Body
		}
		resp.Timing.FetchMs += entry.DurationMs
		resp.History = append(resp.History, entry)
	}

	switch res.Status {
	case resolver.StatusError:
		msg := "transport error"
		if last := res.Last(); last != nil && last.Fetch.TransportError != nil {
			msg = last.Fetch.TransportError.Error()
		}
		resp.Error = &ErrorDetail{Code: ErrCodeUnresolved, Message: msg}
	case resolver.StatusTooManyRedirects:
		resp.Error = &ErrorDetail{Code: ErrCodeUnresolved, Message: "too many redirects"}
	}
	return resp
}
