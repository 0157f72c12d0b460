// Package usage is the per-tenant usage ledger. A unit of usage is reserved
// atomically before billable work starts and is then either committed or
// rolled back exactly once.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/observability"
	"github.com/tbourn/go-support-chat/internal/repo"
)

// Reservation is a claimed unit of usage.
type Reservation struct {
	ID       string
	TenantID string
	Kind     string
}

// Ledger applies usage changes to tenant subscription rows.
type Ledger struct {
	DB  *gorm.DB
	Now func() time.Time
}

// New returns a Ledger over db.
func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a Ledger whose operations run inside tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{DB: tx, Now: l.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now()
}

func tracer() trace.Tracer { return otel.Tracer("usage/Ledger") }

// Reserve claims one unit of kind for tenantID. The limit check and the
// increment are one conditional UPDATE and the pending reservation is written
// in the same transaction, so N concurrent callers with M units left get
// exactly M reservations. On a full quota it returns *QuotaExceededError.
func (l *Ledger) Reserve(ctx context.Context, tenantID, kind string) (*Reservation, error) {
	ctx, span := tracer().Start(ctx, "Reserve", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("usage.kind", kind),
	))
	defer span.End()

	var res *Reservation
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.IncrementUsage(ctx, tx, tenantID, kind)
		if err != nil {
			return err
		}
		if !ok {
			return l.rejection(ctx, tx, tenantID, kind)
		}
		r, err := repo.CreateReservation(ctx, tx, tenantID, kind)
		if err != nil {
			return err
		}
		res = &Reservation{ID: r.ID, TenantID: tenantID, Kind: kind}
		return nil
	})
	if err != nil {
		var qe *QuotaExceededError
		if errors.As(err, &qe) {
			observability.ObserveReservation(kind, "rejected")
		}
		observability.FailSpan(span, err)
		return nil, err
	}
	observability.ObserveReservation(kind, "reserved")
	return res, nil
}

// rejection explains why IncrementUsage matched no row.
func (l *Ledger) rejection(ctx context.Context, tx *gorm.DB, tenantID, kind string) error {
	sub, err := repo.GetSubscription(ctx, tx, tenantID, false)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	limit := sub.MessageLimit
	if kind == domain.KindChatbot {
		limit = sub.ChatbotLimit
	}
	return &QuotaExceededError{Kind: kind, Plan: sub.Plan, Limit: limit}
}

// Commit closes r. The unit was already counted at reserve time.
func (l *Ledger) Commit(ctx context.Context, r *Reservation) error {
	ctx, span := tracer().Start(ctx, "Commit", trace.WithAttributes(attribute.String("reservation.id", r.ID)))
	defer span.End()

	ok, err := repo.CloseReservation(ctx, l.DB, r.ID, domain.ReservationCommitted)
	if err != nil {
		observability.FailSpan(span, err)
		return err
	}
	if !ok {
		return ErrReservationClosed
	}
	observability.ObserveReservation(r.Kind, "committed")
	return nil
}

// Rollback closes r and returns its unit to the tenant, clamped at zero. Only
// a pending reservation is decremented, so repeated calls are harmless.
func (l *Ledger) Rollback(ctx context.Context, r *Reservation) error {
	ctx, span := tracer().Start(ctx, "Rollback", trace.WithAttributes(attribute.String("reservation.id", r.ID)))
	defer span.End()

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.CloseReservation(ctx, tx, r.ID, domain.ReservationRolledBack)
		if err != nil {
			return err
		}
		if !ok {
			return ErrReservationClosed
		}
		return repo.DecrementUsage(ctx, tx, r.TenantID, r.Kind)
	})
	if err != nil {
		observability.FailSpan(span, err)
		return err
	}
	observability.ObserveReservation(r.Kind, "rolledback")
	return nil
}

// DecrementOnDelete releases one unit of kind when a billable resource is
// deleted. It is independent of any reservation.
func (l *Ledger) DecrementOnDelete(ctx context.Context, tenantID, kind string) error {
	ctx, span := tracer().Start(ctx, "DecrementOnDelete", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("usage.kind", kind),
	))
	defer span.End()

	err := repo.DecrementUsage(ctx, l.DB, tenantID, kind)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrTenantNotFound
	}
	observability.FailSpan(span, err)
	return err
}

// Snapshot returns the tenant's current plan and counters.
func (l *Ledger) Snapshot(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	sub, err := repo.GetSubscription(ctx, l.DB, tenantID, false)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return sub, err
}

// EnsureSubscription creates the tenant's subscription on plan when none
// exists and returns the stored row either way.
func (l *Ledger) EnsureSubscription(ctx context.Context, tenantID, planName string) (*domain.Subscription, error) {
	p, err := LookupPlan(planName)
	if err != nil {
		return nil, err
	}
	now := l.now()
	sub := &domain.Subscription{
		TenantID:     tenantID,
		Plan:         p.Name,
		MessageLimit: p.MessageLimit,
		ChatbotLimit: p.ChatbotLimit,
		PeriodStart:  now,
		PeriodEnd:    now.AddDate(0, 1, 0),
	}
	if err := repo.CreateSubscription(ctx, l.DB, sub); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		return nil, err
	}
	return repo.GetSubscription(ctx, l.DB, tenantID, false)
}

// ResetPeriod zeroes the message counter and starts a new billing period.
func (l *Ledger) ResetPeriod(ctx context.Context, tenantID string, start, end time.Time) error {
	err := repo.ResetMessageUsage(ctx, l.DB, tenantID, start, end)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTenantNotFound
	}
	return err
}

// ValidatePlanChange checks that the tenant's current usage fits newPlan and
// returns *PlanChangeError describing the first resource that does not.
func (l *Ledger) ValidatePlanChange(ctx context.Context, tenantID, newPlan string) error {
	p, err := LookupPlan(newPlan)
	if err != nil {
		return err
	}
	sub, err := repo.GetSubscription(ctx, l.DB, tenantID, true)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	return checkFits(sub, p)
}

func checkFits(sub *domain.Subscription, p Plan) error {
	used := map[string]int{domain.KindChatbot: sub.ChatbotsCount, domain.KindMessage: sub.MessagesCount}
	for _, kind := range []string{domain.KindChatbot, domain.KindMessage} {
		if limit := p.Limit(kind); limit >= 0 && used[kind] > limit {
			return &PlanChangeError{From: sub.Plan, To: p.Name, Kind: kind, Current: used[kind], Limit: limit}
		}
	}
	return nil
}

// ChangePlan validates and applies newPlan under a row lock.
func (l *Ledger) ChangePlan(ctx context.Context, tenantID, newPlan string) error {
	ctx, span := tracer().Start(ctx, "ChangePlan", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("plan", newPlan),
	))
	defer span.End()

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txl := l.WithTx(tx)
		if err := txl.ValidatePlanChange(ctx, tenantID, newPlan); err != nil {
			return err
		}
		p, _ := LookupPlan(newPlan)
		if err := repo.SetPlan(ctx, tx, tenantID, p.Name, p.MessageLimit, p.ChatbotLimit); err != nil {
			return fmt.Errorf("set plan: %w", err)
		}
		return nil
	})
	observability.FailSpan(span, err)
	return err
}
