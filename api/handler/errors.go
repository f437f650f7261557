package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unhide/models"
)

// respondError maps an error to its HTTP status and writes the structured
// JSON error body.
func respondError(c *gin.Context, err error) {
	var re *models.ResolveError
	if !errors.As(err, &re) {
		re = models.NewResolveError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(re), models.ResolveResponse{
		Success: false,
		Error:   re.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ResolveError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
