package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/observability"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/sysutil"
	"github.com/tbourn/go-support-chat/internal/usage"
)

// Result reports what happened to a delivery.
type Result struct {
	Duplicate bool
	Applied   bool // an effect ran; false for duplicates and ignored types
}

// Recorder applies webhook effects and records the delivery in one
// transaction. The existence check happens before any effect, and the record
// is written only after every effect succeeded.
type Recorder struct {
	DB     *gorm.DB
	Ledger *usage.Ledger
	Now    func() time.Time
}

// NewRecorder returns a Recorder over db.
func NewRecorder(db *gorm.DB, ledger *usage.Ledger) *Recorder {
	return &Recorder{DB: db, Ledger: ledger, Now: func() time.Time { return time.Now().UTC() }}
}

var errLostRace = errors.New("billing: concurrent delivery recorded first")

// Process handles one verified delivery. Redelivering the same event returns
// Duplicate without reapplying anything. A *usage.PlanChangeError leaves the
// event unrecorded so the provider retries after the tenant frees quota.
func (r *Recorder) Process(ctx context.Context, ev Event, payload []byte) (Result, error) {
	ctx, span := otel.Tracer("billing/Recorder").Start(ctx, "Process", trace.WithAttributes(
		attribute.String("billing.provider", ev.Provider),
		attribute.String("billing.event_id", ev.ID),
		attribute.String("billing.event_type", ev.Type),
	))
	defer span.End()

	var res Result
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := repo.WebhookEventExists(ctx, tx, ev.Provider, ev.ID)
		if err != nil {
			return err
		}
		if seen {
			res.Duplicate = true
			return nil
		}

		applied, err := r.apply(ctx, r.Ledger.WithTx(tx), ev)
		if err != nil {
			return err
		}
		res.Applied = applied

		_, err = repo.CreateWebhookEvent(ctx, tx, ev.Provider, ev.ID, ev.RawType, ev.TenantID, payload)
		if errors.Is(err, repo.ErrDuplicate) {
			return errLostRace
		}
		return err
	})
	if errors.Is(err, errLostRace) {
		res, err = Result{Duplicate: true}, nil
	}

	switch {
	case err != nil:
		var pce *usage.PlanChangeError
		if errors.As(err, &pce) {
			observability.ObserveWebhook(ev.Provider, "rejected")
		} else {
			observability.ObserveWebhook(ev.Provider, "error")
		}
		observability.FailSpan(span, err)
		return Result{}, err
	case res.Duplicate:
		observability.ObserveWebhook(ev.Provider, "duplicate")
	case res.Applied:
		observability.ObserveWebhook(ev.Provider, "applied")
	default:
		observability.ObserveWebhook(ev.Provider, "ignored")
	}
	span.SetAttributes(attribute.Bool("billing.duplicate", res.Duplicate))
	return res, nil
}

// apply runs ev's effect. Every effect sets absolute values, so running it a
// second time after a crash before the record insert is harmless.
func (r *Recorder) apply(ctx context.Context, l *usage.Ledger, ev Event) (bool, error) {
	switch ev.Type {
	case TypeUsageReset:
		if _, err := l.EnsureSubscription(ctx, ev.TenantID, usage.PlanFree); err != nil {
			return false, err
		}
		start, end := ev.PeriodStart, ev.PeriodEnd
		if start.IsZero() {
			start = r.now()
		}
		if end.IsZero() || !end.After(start) {
			end = start.AddDate(0, 1, 0)
		}
		return true, l.ResetPeriod(ctx, ev.TenantID, start, end)

	case TypePlanChanged, TypeSubCanceled:
		plan := ev.Plan
		if ev.Type == TypeSubCanceled {
			plan = usage.PlanFree
		}
		if _, err := usage.LookupPlan(plan); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if _, err := l.EnsureSubscription(ctx, ev.TenantID, plan); err != nil {
			return false, err
		}
		return true, l.ChangePlan(ctx, ev.TenantID, plan)
	}

	sysutil.Logger(ctx).Info().
		Str("provider", ev.Provider).
		Str("event_type", ev.RawType).
		Msg("billing event ignored")
	return false, nil
}

func (r *Recorder) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

// Sweep deletes delivery records older than retention.
func (r *Recorder) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := repo.DeleteWebhookEventsBefore(ctx, r.DB, r.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweep webhook events: %w", err)
	}
	return n, nil
}
