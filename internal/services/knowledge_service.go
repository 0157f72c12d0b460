package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/search"
)

// Invalidator drops cached context for a tenant.
type Invalidator interface {
	Invalidate(tenantID string)
}

// EntryInput is an exact-match Q&A entry.
type EntryInput struct {
	Question string
	Answer   string
	Category string
	Priority int
	Enabled  *bool
}

// KnowledgeService edits a tenant's knowledge and invalidates cached context
// after every change.
type KnowledgeService struct {
	DB    *gorm.DB
	Cache Invalidator
}

// NewKnowledgeService returns a KnowledgeService over db.
func NewKnowledgeService(db *gorm.DB, cache Invalidator) *KnowledgeService {
	return &KnowledgeService{DB: db, Cache: cache}
}

func (s *KnowledgeService) invalidate(tenantID string) {
	if s.Cache != nil {
		s.Cache.Invalidate(tenantID)
	}
}

// UpsertEntry stores an entry keyed by its question text.
func (s *KnowledgeService) UpsertEntry(ctx context.Context, tenantID string, in EntryInput) (*domain.KnowledgeEntry, error) {
	ctx, span := otel.Tracer("services/KnowledgeService").Start(ctx, "UpsertEntry",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	q := normalizeName(in.Question)
	a := strings.TrimSpace(in.Answer)
	switch {
	case strings.TrimSpace(tenantID) == "":
		return nil, invalid("tenant", "is required")
	case q == "":
		return nil, invalid("question", "is required")
	case a == "":
		return nil, invalid("answer", "is required")
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	e := &domain.KnowledgeEntry{
		TenantID: tenantID,
		Question: q,
		Answer:   a,
		Category: strings.TrimSpace(in.Category),
		Priority: in.Priority,
		Enabled:  enabled,
	}
	if err := repo.UpsertKnowledgeEntry(ctx, s.DB, e); err != nil {
		return nil, fmt.Errorf("upsert knowledge entry: %w", err)
	}
	s.invalidate(tenantID)
	return e, nil
}

// IngestMarkdown replaces the chunks stored for sourceURL with the chunks of
// body and returns how many were stored.
func (s *KnowledgeService) IngestMarkdown(ctx context.Context, tenantID, sourceURL string, body io.Reader) (int, error) {
	ctx, span := otel.Tracer("services/KnowledgeService").Start(ctx, "IngestMarkdown",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("source.url", sourceURL),
		))
	defer span.End()

	if strings.TrimSpace(tenantID) == "" {
		return 0, invalid("tenant", "is required")
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if u, err := url.Parse(sourceURL); err != nil || u.Scheme == "" || u.Host == "" {
		return 0, invalid("sourceUrl", "must be an absolute URL")
	}
	chunks, err := search.ChunkMarkdown(body)
	if err != nil {
		return 0, fmt.Errorf("chunk content: %w", err)
	}
	if len(chunks) == 0 {
		return 0, invalid("content", "has no text")
	}
	stored, err := repo.ReplaceContentChunks(ctx, s.DB, tenantID, sourceURL, chunks)
	if err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	s.invalidate(tenantID)
	return len(stored), nil
}
