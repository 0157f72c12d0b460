package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/repo"
)

// Transcript is conversation-history storage as the orchestrator sees it:
// a bounded read of recent turns and one append per finished exchange.
type Transcript interface {
	Open(ctx context.Context, tenantID, chatbotID, sessionID string) (*domain.Conversation, error)
	Recent(ctx context.Context, conversationID string, limit int) ([]llm.Message, error)
	Append(ctx context.Context, conversationID, question, answer string, sources []string) (*domain.Message, error)
}

// ConversationService stores conversations and their turns.
type ConversationService struct {
	DB *gorm.DB
}

// NewConversationService returns a ConversationService over db.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

func convTracer() trace.Tracer { return otel.Tracer("services/ConversationService") }

// Open returns the conversation for (chatbotID, sessionID), creating it on
// first use.
func (s *ConversationService) Open(ctx context.Context, tenantID, chatbotID, sessionID string) (*domain.Conversation, error) {
	ctx, span := convTracer().Start(ctx, "Open", trace.WithAttributes(
		attribute.String("chatbot.id", chatbotID),
		attribute.String("session.id", sessionID),
	))
	defer span.End()
	return repo.GetOrCreateConversation(ctx, s.DB, tenantID, chatbotID, sessionID)
}

// Recent returns up to limit most recent turns, oldest first.
func (s *ConversationService) Recent(ctx context.Context, conversationID string, limit int) ([]llm.Message, error) {
	ctx, span := convTracer().Start(ctx, "Recent", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("limit", limit),
	))
	defer span.End()

	rows, err := repo.ListRecentMessages(ctx, s.DB, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Append stores the user question and the assistant answer together and
// returns the assistant turn.
func (s *ConversationService) Append(ctx context.Context, conversationID, question, answer string, sources []string) (*domain.Message, error) {
	ctx, span := convTracer().Start(ctx, "Append", trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	now := time.Now().UTC()
	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateMessageAt(ctx, tx, now, conversationID, domain.RoleUser, question, nil); err != nil {
			return err
		}
		m, err := repo.CreateMessageAt(ctx, tx, now.Add(time.Microsecond), conversationID, domain.RoleAssistant, answer, sources)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}
