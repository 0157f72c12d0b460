// Package billing records payment-provider webhook deliveries and applies
// their usage effects exactly once per (provider, event id).
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Normalised event types.
const (
	TypeUsageReset   = "usage.reset"
	TypePlanChanged  = "plan.changed"
	TypeSubCanceled  = "subscription.canceled"
	TypeUnrecognised = "ignored"
)

var (
	// ErrBadSignature is returned when a delivery fails verification.
	ErrBadSignature = errors.New("billing: invalid signature")
	// ErrMalformed is returned for payloads that cannot be interpreted.
	ErrMalformed = errors.New("billing: malformed payload")
	// ErrUnknownProvider is returned for an unregistered provider name.
	ErrUnknownProvider = errors.New("billing: unknown provider")
)

// Event is a verified, provider-neutral delivery.
type Event struct {
	Provider    string
	ID          string
	Type        string // one of the Type* constants
	RawType     string // provider's own event name
	TenantID    string
	Plan        string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Parser verifies and decodes one provider's deliveries.
type Parser interface {
	Name() string
	Parse(h http.Header, body []byte, now time.Time) (Event, error)
}

// Parsers is a lookup of Parser by provider name.
type Parsers map[string]Parser

// NewParsers indexes ps by name.
func NewParsers(ps ...Parser) Parsers {
	out := make(Parsers, len(ps))
	for _, p := range ps {
		out[p.Name()] = p
	}
	return out
}

// Parse verifies body with the named provider's parser.
func (ps Parsers) Parse(provider string, h http.Header, body []byte, now time.Time) (Event, error) {
	p, ok := ps[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return p.Parse(h, body, now)
}

// Generic accepts provider-neutral JSON signed with
// "X-Signature: sha256=<hex hmac(body)>".
type Generic struct {
	Secret string
}

func (Generic) Name() string { return "generic" }

type genericPayload struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	TenantID    string    `json:"tenant_id"`
	Plan        string    `json:"plan"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (g Generic) Parse(h http.Header, body []byte, _ time.Time) (Event, error) {
	sig := strings.TrimPrefix(strings.TrimSpace(h.Get("X-Signature")), "sha256=")
	if !verifyHex(g.Secret, body, sig) {
		return Event{}, ErrBadSignature
	}
	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev := Event{
		Provider:    g.Name(),
		ID:          strings.TrimSpace(p.ID),
		RawType:     p.Type,
		TenantID:    strings.TrimSpace(p.TenantID),
		Plan:        p.Plan,
		PeriodStart: p.PeriodStart,
		PeriodEnd:   p.PeriodEnd,
	}
	switch p.Type {
	case TypeUsageReset, TypePlanChanged, TypeSubCanceled:
		ev.Type = p.Type
	default:
		ev.Type = TypeUnrecognised
	}
	return ev, validate(ev)
}

func validate(ev Event) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: missing event id", ErrMalformed)
	}
	if ev.Type != TypeUnrecognised && ev.TenantID == "" {
		return fmt.Errorf("%w: missing tenant id", ErrMalformed)
	}
	if ev.Type == TypePlanChanged && strings.TrimSpace(ev.Plan) == "" {
		return fmt.Errorf("%w: missing plan", ErrMalformed)
	}
	return nil
}
