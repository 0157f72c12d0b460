package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// WebhookEventExists reports whether (provider, eventID) was already recorded.
func WebhookEventExists(ctx context.Context, db *gorm.DB, provider, eventID string) (bool, error) {
	var rec domain.WebhookEvent
	err := db.WithContext(ctx).
		Select("id").
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateWebhookEvent records a processed delivery. Returns ErrDuplicate when a
// concurrent delivery of the same event won the insert.
func CreateWebhookEvent(ctx context.Context, db *gorm.DB, provider, eventID, eventType, tenantID string, payload []byte) (*domain.WebhookEvent, error) {
	rec := &domain.WebhookEvent{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		TenantID:    tenantID,
		Payload:     datatypes.JSON(payload),
		ProcessedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// DeleteWebhookEventsBefore removes records processed before cutoff.
func DeleteWebhookEventsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("processed_at < ?", cutoff.UTC()).Delete(&domain.WebhookEvent{})
	return res.RowsAffected, res.Error
}
