package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/billing"
	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/observability"
	"github.com/tbourn/go-support-chat/internal/usage"
)

// maxWebhookBytes caps a webhook payload.
const maxWebhookBytes = 1 << 20

// WebhookResponse acknowledges a delivery. Duplicates are acknowledged too.
type WebhookResponse struct {
	Received  bool `json:"received"  example:"true"`
	Duplicate bool `json:"duplicate" example:"false"`
}

// BillingWebhook godoc
// @ID          billingWebhook
// @Summary     Receive a billing provider webhook
// @Description Verifies the provider signature and applies the event (usage reset, plan change, cancellation) exactly once per provider event id.
// @Description A downgrade the tenant's usage does not fit is rejected with 409 and left unrecorded so the provider retries.
// @Tags        Billing
// @Accept      json
// @Produce     json
//
// @Param       provider          path    string  true   "Billing provider"  Enums(stripe, generic)
// @Param       Stripe-Signature  header  string  false  "Stripe signature"
// @Param       X-Signature       header  string  false  "sha256=<hex hmac> for the generic provider"
//
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad signature or payload"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown provider"
// @Failure     409  {object}  handlers.ErrorResponse  "Plan change conflicts with usage"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /billing/webhooks/{provider} [post]
func (h *Handlers) BillingWebhook(c *gin.Context) {
	provider := c.Param("provider")
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		observability.ObserveWebhook(provider, "malformed")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body too large")
		return
	case err != nil:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}

	ev, err := h.Parsers.Parse(provider, c.Request.Header, body, h.Now())
	switch {
	case errors.Is(err, billing.ErrUnknownProvider):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown billing provider")
		return
	case errors.Is(err, billing.ErrBadSignature):
		observability.ObserveWebhook(provider, "unverified")
		fail(c, http.StatusBadRequest, ErrCodeBadSignature, "signature verification failed")
		return
	case err != nil:
		observability.ObserveWebhook(provider, "malformed")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	res, err := h.Recorder.Process(c.Request.Context(), ev, body)
	var pe *usage.PlanChangeError
	switch {
	case err == nil:
	case errors.As(err, &pe):
		fail(c, http.StatusConflict, ErrCodePlanConflict, pe.Error())
		return
	case errors.Is(err, billing.ErrMalformed):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	default:
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("provider", ev.Provider).
		Str("event_id", ev.ID).
		Str("event_type", ev.RawType).
		Bool("duplicate", res.Duplicate).
		Bool("applied", res.Applied).
		Msg("billing webhook")
	ok(c, http.StatusOK, WebhookResponse{Received: true, Duplicate: res.Duplicate})
}
