package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// CreateChatbot inserts b, assigning an ID when empty.
func CreateChatbot(ctx context.Context, db *gorm.DB, b *domain.Chatbot) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	return db.WithContext(ctx).Create(b).Error
}

// GetChatbot fetches a chatbot by ID, or ErrNotFound.
func GetChatbot(ctx context.Context, db *gorm.DB, id string) (*domain.Chatbot, error) {
	var b domain.Chatbot
	if err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListChatbotsPage returns one page of a tenant's chatbots, newest first.
func ListChatbotsPage(ctx context.Context, db *gorm.DB, tenantID string, offset, limit int) ([]domain.Chatbot, error) {
	var out []domain.Chatbot
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountChatbots returns the number of live chatbots owned by tenantID.
func CountChatbots(ctx context.Context, db *gorm.DB, tenantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chatbot{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error
	return total, err
}

// DeleteChatbot soft-deletes a tenant's chatbot. Returns ErrNotFound if no
// live row matched.
func DeleteChatbot(ctx context.Context, db *gorm.DB, id, tenantID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&domain.Chatbot{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
