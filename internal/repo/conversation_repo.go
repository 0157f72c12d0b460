package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// GetOrCreateConversation returns the conversation for (chatbotID, sessionID),
// creating it on first use. A lost insert race falls back to the winner's row.
func GetOrCreateConversation(ctx context.Context, db *gorm.DB, tenantID, chatbotID, sessionID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("chatbot_id = ? AND session_id = ?", chatbotID, sessionID).
		First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	c = domain.Conversation{
		ID:        uuid.NewString(),
		ChatbotID: chatbotID,
		SessionID: sessionID,
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(&c).Error; err != nil {
		if !IsUniqueViolation(err) {
			return nil, err
		}
		var winner domain.Conversation
		if err := db.WithContext(ctx).
			Where("chatbot_id = ? AND session_id = ?", chatbotID, sessionID).
			First(&winner).Error; err != nil {
			return nil, err
		}
		return &winner, nil
	}
	return &c, nil
}

// CreateMessage inserts a new turn stamped with the current time.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, role, content string, sources []string) (*domain.Message, error) {
	return CreateMessageAt(ctx, db, time.Now().UTC(), conversationID, role, content, sources)
}

// CreateMessageAt inserts a new turn stamped with at. Turns written together
// need distinct stamps to keep their order in ListRecentMessages.
func CreateMessageAt(ctx context.Context, db *gorm.DB, at time.Time, conversationID, role, content string, sources []string) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Sources:        sources,
		CreatedAt:      at,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListRecentMessages returns at most limit most-recent turns of a
// conversation, ordered oldest first (CreatedAt ASC, ID ASC).
func ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
