package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/sysutil"
	"github.com/tbourn/go-support-chat/internal/usage"
)

// ChatbotInput is the writable part of a chatbot.
type ChatbotInput struct {
	Name         string
	Provider     string
	Model        string
	Instructions string
	Temperature  *float64
}

// ChatbotService creates and deletes chatbots against the tenant's quota.
type ChatbotService struct {
	DB       *gorm.DB
	Ledger   *usage.Ledger
	Provider interface{ Names() []string }

	NameMaxLen int
}

// NewChatbotService returns a ChatbotService. providers, when set, restricts
// the provider names a chatbot may pin.
func NewChatbotService(db *gorm.DB, ledger *usage.Ledger, providers interface{ Names() []string }) *ChatbotService {
	return &ChatbotService{DB: db, Ledger: ledger, Provider: providers, NameMaxLen: 80}
}

func botTracer() trace.Tracer { return otel.Tracer("services/ChatbotService") }

func (s *ChatbotService) validate(in *ChatbotInput) error {
	in.Name = normalizeName(in.Name)
	if in.Name == "" {
		return invalid("name", "is required")
	}
	if s.NameMaxLen > 0 && utf8.RuneCountInString(in.Name) > s.NameMaxLen {
		return invalid("name", fmt.Sprintf("exceeds %d characters", s.NameMaxLen))
	}
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if in.Provider != "" && s.Provider != nil {
		if !slices.Contains(s.Provider.Names(), in.Provider) {
			return invalid("provider", fmt.Sprintf("unknown provider %q", in.Provider))
		}
	}
	in.Model = strings.TrimSpace(in.Model)
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return invalid("temperature", "must be between 0 and 2")
	}
	if in.Provider == "" && in.Model != "" && s.Provider != nil {
		// An unpinned model must map to a registered provider family or the default.
		if p := llm.CapabilitiesFor(in.Model).Provider; p != "" {
			if !slices.Contains(s.Provider.Names(), p) {
				return invalid("model", fmt.Sprintf("provider %q for model %q is not configured", p, in.Model))
			}
		}
	}
	return nil
}

// Create reserves one chatbot unit, inserts the chatbot and commits. A failed
// insert rolls the reservation back. Tenants without a subscription start on
// the free plan.
func (s *ChatbotService) Create(ctx context.Context, tenantID string, in ChatbotInput) (*domain.Chatbot, error) {
	ctx, span := botTracer().Start(ctx, "Create", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	if strings.TrimSpace(tenantID) == "" {
		return nil, invalid("tenant", "is required")
	}
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	if _, err := s.Ledger.EnsureSubscription(ctx, tenantID, usage.PlanFree); err != nil {
		return nil, fmt.Errorf("ensure subscription: %w", err)
	}
	res, err := s.Ledger.Reserve(ctx, tenantID, domain.KindChatbot)
	if err != nil {
		return nil, err
	}

	b := &domain.Chatbot{
		TenantID:     tenantID,
		Name:         in.Name,
		Provider:     in.Provider,
		Model:        in.Model,
		Instructions: strings.TrimSpace(in.Instructions),
		Temperature:  in.Temperature,
	}
	if err := repo.CreateChatbot(ctx, s.DB, b); err != nil {
		sctx, cancel := settleCtx(ctx)
		defer cancel()
		if rerr := s.Ledger.Rollback(sctx, res); rerr != nil {
			sysutil.Logger(ctx).Error().Err(rerr).Str("reservation_id", res.ID).Msg("usage rollback failed")
		}
		return nil, fmt.Errorf("create chatbot: %w", err)
	}
	sctx, cancel := settleCtx(ctx)
	defer cancel()
	if err := s.Ledger.Commit(sctx, res); err != nil {
		sysutil.Logger(ctx).Error().Err(err).Str("reservation_id", res.ID).Msg("usage commit failed")
	}
	return b, nil
}

// Get returns a tenant's chatbot.
func (s *ChatbotService) Get(ctx context.Context, tenantID, id string) (*domain.Chatbot, error) {
	b, err := repo.GetChatbot(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && b.TenantID != tenantID) {
		return nil, ErrChatbotNotFound
	}
	return b, err
}

// ListPage returns a page of a tenant's chatbots, newest first, and the
// total count. Invalid page arguments fall back to page 1 of 20.
func (s *ChatbotService) ListPage(ctx context.Context, tenantID string, page, pageSize int) ([]domain.Chatbot, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	total, err := repo.CountChatbots(ctx, s.DB, tenantID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Chatbot{}, 0, nil
	}
	items, err := repo.ListChatbotsPage(ctx, s.DB, tenantID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the count and latest update time of a tenant's chatbots.
func (s *ChatbotService) Stats(ctx context.Context, tenantID string) (int64, *time.Time, error) {
	return repo.ChatbotsStats(ctx, s.DB, tenantID)
}

// Delete removes the chatbot and releases its quota unit in one transaction.
func (s *ChatbotService) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := botTracer().Start(ctx, "Delete", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("chatbot.id", id),
	))
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteChatbot(ctx, tx, id, tenantID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrChatbotNotFound
			}
			return err
		}
		return s.Ledger.WithTx(tx).DecrementOnDelete(ctx, tenantID, domain.KindChatbot)
	})
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeName trims and collapses internal whitespace.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}
