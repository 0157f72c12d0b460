// Package handlers holds the HTTP endpoints of the support-chat API. Handlers
// are transport-thin: they bind input, call a service and map the result or
// error onto the response envelope.
//
// Every error response has the same shape:
//
//	HTTP/1.1 403 Forbidden
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "quota_exceeded",
//	  "message": "You've reached the limit of 100 messages on your free plan. Upgrade your plan to continue."
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/usage"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"chatbot not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the envelope. Provider details never
// reach the client; unknown errors are logged and reported as 500.
func failErr(c *gin.Context, err error) {
	var (
		ve *services.ValidationError
		qe *usage.QuotaExceededError
		pe *usage.PlanChangeError
		ee *services.ExternalServiceError
	)
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, ve.Error())
	case errors.Is(err, services.ErrChatbotNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chatbot not found")
	case errors.Is(err, usage.ErrTenantNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "tenant has no subscription")
	case errors.As(err, &qe):
		fail(c, http.StatusForbidden, ErrCodeQuotaExceeded, qe.Error())
	case errors.As(err, &pe):
		fail(c, http.StatusConflict, ErrCodePlanConflict, pe.Error())
	case errors.As(err, &ee):
		middleware.LoggerFrom(c).Warn().Err(err).Msg("upstream failure")
		fail(c, http.StatusBadGateway, ErrCodeAnswerFailed, ee.Message())
	case errors.Is(err, context.Canceled):
		middleware.LoggerFrom(c).Info().Err(err).Msg("client went away")
		c.Abort()
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
