package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// CreateFeedback inserts a rating for messageID. Returns ErrDuplicate when
// the message was already rated.
func CreateFeedback(ctx context.Context, db *gorm.DB, messageID, sessionID string, value int) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		MessageID: messageID,
		SessionID: sessionID,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return fb, nil
}

// GetConversation fetches a conversation by ID.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
