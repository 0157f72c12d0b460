package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Stripe verifies "Stripe-Signature: t=<unix>,v1=<hex>" where the MAC covers
// "<t>.<body>", and maps subscription lifecycle events to usage effects.
type Stripe struct {
	Secret    string
	Tolerance time.Duration
}

func (Stripe) Name() string { return "stripe" }

type stripePayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			PeriodStart        int64             `json:"period_start"`
			PeriodEnd          int64             `json:"period_end"`
			CurrentPeriodStart int64             `json:"current_period_start"`
			CurrentPeriodEnd   int64             `json:"current_period_end"`
			Metadata           map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

var stripeTypes = map[string]string{
	"invoice.paid":                  TypeUsageReset,
	"invoice.payment_succeeded":     TypeUsageReset,
	"customer.subscription.created": TypePlanChanged,
	"customer.subscription.updated": TypePlanChanged,
	"customer.subscription.deleted": TypeSubCanceled,
}

func (s Stripe) Parse(h http.Header, body []byte, now time.Time) (Event, error) {
	if err := s.verify(h.Get("Stripe-Signature"), body, now); err != nil {
		return Event{}, err
	}
	var p stripePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	obj := p.Data.Object
	ev := Event{
		Provider: s.Name(),
		ID:       p.ID,
		RawType:  p.Type,
		TenantID: strings.TrimSpace(obj.Metadata["tenant_id"]),
		Plan:     obj.Metadata["plan"],
		Type:     TypeUnrecognised,
	}
	if t, ok := stripeTypes[p.Type]; ok {
		ev.Type = t
	}
	start, end := obj.PeriodStart, obj.PeriodEnd
	if start == 0 {
		start, end = obj.CurrentPeriodStart, obj.CurrentPeriodEnd
	}
	if start > 0 {
		ev.PeriodStart = time.Unix(start, 0).UTC()
	}
	if end > 0 {
		ev.PeriodEnd = time.Unix(end, 0).UTC()
	}
	return ev, validate(ev)
}

func (s Stripe) verify(header string, body []byte, now time.Time) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(sigs) == 0 {
		return ErrBadSignature
	}
	if s.Tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > s.Tolerance || age < -s.Tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
		}
	}
	signed := make([]byte, 0, len(ts)+1+len(body))
	signed = append(append(append(signed, ts...), '.'), body...)
	for _, sig := range sigs {
		if verifyHex(s.Secret, signed, sig) {
			return nil
		}
	}
	return ErrBadSignature
}

// Sign returns the hex HMAC-SHA256 of msg under secret.
func Sign(secret string, msg []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(msg)
	return hex.EncodeToString(m.Sum(nil))
}

// verifyHex compares sig against the MAC of msg in constant time. An empty
// secret never verifies.
func verifyHex(secret string, msg []byte, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(msg)
	return hmac.Equal(got, m.Sum(nil))
}
