package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tbourn/go-support-chat/internal/billing"
	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/services"
)

// ChatService answers visitor messages.
type ChatService interface {
	Answer(ctx context.Context, req services.ChatRequest) (*services.Reply, error)
	Stream(ctx context.Context, req services.ChatRequest, sink services.Sink) (services.StreamResult, error)
}

// ChatbotService manages a tenant's chatbots.
type ChatbotService interface {
	Create(ctx context.Context, tenantID string, in services.ChatbotInput) (*domain.Chatbot, error)
	ListPage(ctx context.Context, tenantID string, page, pageSize int) ([]domain.Chatbot, int64, error)
	Stats(ctx context.Context, tenantID string) (int64, *time.Time, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// KnowledgeService edits a tenant's knowledge base.
type KnowledgeService interface {
	UpsertEntry(ctx context.Context, tenantID string, in services.EntryInput) (*domain.KnowledgeEntry, error)
	IngestMarkdown(ctx context.Context, tenantID, sourceURL string, body io.Reader) (int, error)
}

// FeedbackService records visitor ratings.
type FeedbackService interface {
	Leave(ctx context.Context, chatbotID, sessionID, messageID string, value int) error
}

// UsageReader reads a tenant's plan and counters.
type UsageReader interface {
	Snapshot(ctx context.Context, tenantID string) (*domain.Subscription, error)
}

// WebhookParser verifies and normalises a provider delivery.
type WebhookParser interface {
	Parse(provider string, h http.Header, body []byte, now time.Time) (billing.Event, error)
}

// WebhookRecorder applies a verified delivery exactly once.
type WebhookRecorder interface {
	Process(ctx context.Context, ev billing.Event, payload []byte) (billing.Result, error)
}

// Deps are the services behind the handlers. Now defaults to time.Now.
type Deps struct {
	Chat      ChatService
	Chatbots  ChatbotService
	Knowledge KnowledgeService
	Feedback  FeedbackService
	Usage     UsageReader
	Parsers   WebhookParser
	Recorder  WebhookRecorder
	Now       func() time.Time
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	Deps
}

// New returns Handlers bound to d.
func New(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{Deps: d}
}
