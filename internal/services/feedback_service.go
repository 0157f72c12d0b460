package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
)

// Feedback errors.
var (
	ErrInvalidFeedback   = errors.New("feedback value must be -1 or 1")
	ErrMessageNotFound   = errors.New("message not found")
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")
	ErrDuplicateFeedback = errors.New("feedback already exists")
)

// FeedbackService records visitor ratings of assistant answers.
type FeedbackService struct {
	DB *gorm.DB
}

// Leave rates messageID for the visitor identified by (chatbotID, sessionID).
//   - value must be -1 or 1, else ErrInvalidFeedback.
//   - The message must exist, else ErrMessageNotFound.
//   - It must be an assistant turn of that visitor's conversation, else
//     ErrForbiddenFeedback.
//   - A message is rated at most once, else ErrDuplicateFeedback.
func (s *FeedbackService) Leave(ctx context.Context, chatbotID, sessionID, messageID string, value int) error {
	if value != -1 && value != 1 {
		return ErrInvalidFeedback
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		conv, err := repo.GetConversation(ctx, tx, msg.ConversationID)
		if err != nil {
			return err
		}
		if conv.ChatbotID != chatbotID || conv.SessionID != sessionID || msg.Role != domain.RoleAssistant {
			return ErrForbiddenFeedback
		}
		if _, err := repo.CreateFeedback(ctx, tx, messageID, sessionID, value); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
}
