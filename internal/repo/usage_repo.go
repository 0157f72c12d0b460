package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// usageColumns maps a resource kind to its (counter, limit) columns.
func usageColumns(kind string) (count, limit string, err error) {
	switch kind {
	case domain.KindMessage:
		return "messages_count", "message_limit", nil
	case domain.KindChatbot:
		return "chatbots_count", "chatbot_limit", nil
	}
	return "", "", fmt.Errorf("unknown usage kind %q", kind)
}

// GetSubscription loads a tenant's subscription row. With forUpdate the row
// is locked for the rest of the surrounding transaction (ignored by SQLite).
func GetSubscription(ctx context.Context, db *gorm.DB, tenantID string, forUpdate bool) (*domain.Subscription, error) {
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var s domain.Subscription
	if err := q.Where("tenant_id = ?", tenantID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSubscription inserts a subscription row. Returns ErrDuplicate if the
// tenant already has one.
func CreateSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	s.UpdatedAt = time.Now().UTC()
	// ON CONFLICT DO NOTHING keeps an enclosing postgres transaction usable.
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s)
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// IncrementUsage adds one unit to the kind's counter only if the counter is
// below its limit (or the limit is negative). The check and the increment are
// a single statement, so concurrent callers can never overshoot. It reports
// whether a row was updated.
func IncrementUsage(ctx context.Context, db *gorm.DB, tenantID, kind string) (bool, error) {
	count, limit, err := usageColumns(kind)
	if err != nil {
		return false, err
	}
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Where(fmt.Sprintf("(%s < 0 OR %s < %s)", limit, count, limit)).
		Updates(map[string]any{
			count:        gorm.Expr(count + " + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementUsage subtracts one unit from the kind's counter, clamped at zero.
// Returns ErrNotFound when the tenant has no subscription row.
func DecrementUsage(ctx context.Context, db *gorm.DB, tenantID, kind string) error {
	count, _, err := usageColumns(kind)
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{
			count:        gorm.Expr(fmt.Sprintf("CASE WHEN %s > 0 THEN %s - 1 ELSE 0 END", count, count)),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetMessageUsage zeroes the message counter and sets the billing period.
// Setting absolute values keeps the effect idempotent.
func ResetMessageUsage(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{
			"messages_count": 0,
			"period_start":   start.UTC(),
			"period_end":     end.UTC(),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPlan overwrites plan and limits.
func SetPlan(ctx context.Context, db *gorm.DB, tenantID, plan string, messageLimit, chatbotLimit int) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{
			"plan":          plan,
			"message_limit": messageLimit,
			"chatbot_limit": chatbotLimit,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateReservation inserts a pending reservation.
func CreateReservation(ctx context.Context, db *gorm.DB, tenantID, kind string) (*domain.UsageReservation, error) {
	r := &domain.UsageReservation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      kind,
		Status:    domain.ReservationPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// CloseReservation moves a pending reservation to status. It reports false
// when the reservation was already closed (or does not exist).
func CloseReservation(ctx context.Context, db *gorm.DB, id, status string) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.UsageReservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationPending).
		Updates(map[string]any{"status": status, "closed_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
