// Package knowledge resolves the grounding context for a visitor question.
// It merges operator-curated Q&A entries and semantic content chunks into one
// bounded ChatContext. Resolution never fails: lookup errors degrade to an
// empty context and the caller answers in training mode.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/tbourn/go-support-chat/internal/sysutil"
)

// TruncationMarker is appended when the semantic context exceeds the budget.
const TruncationMarker = "\n\n[Content truncated]"

// SourceLabelPrefix prefixes the source of a curated-answer context.
const SourceLabelPrefix = "Knowledge Base: "

// ExactMatch is a curated Q&A entry ranked against a question.
type ExactMatch struct {
	ID         string
	Question   string
	Answer     string
	Category   string
	Priority   int
	Similarity float64
}

// Chunk is a ranked snippet of scraped content.
type Chunk struct {
	Content    string
	SourceURL  string
	Similarity float64
}

// Store is the knowledge collaborator. Both searches return matches ranked
// best first with Similarity >= threshold, at most limit items.
type Store interface {
	SearchExact(ctx context.Context, tenantID, text string, limit int, threshold float64) ([]ExactMatch, error)
	SearchSemantic(ctx context.Context, tenantID, text string, limit int, threshold float64) ([]Chunk, error)
}

// Cache is a best-effort byte cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string)
}

// ChatContext is the grounding material for one answer. It is built fresh per
// request and never mutated after Resolve returns.
type ChatContext struct {
	RelevantContent   string   `json:"relevant_content"`
	Sources           []string `json:"sources"`
	IsManualKnowledge bool     `json:"is_manual_knowledge"`
}

// Empty reports whether the context carries no knowledge.
func (c ChatContext) Empty() bool { return strings.TrimSpace(c.RelevantContent) == "" }

// Options tunes resolution.
type Options struct {
	ExactThreshold    float64
	SemanticThreshold float64
	TopK              int
	MaxChars          int
	CacheTTL          time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ExactThreshold:    0.8,
		SemanticThreshold: 0.6,
		TopK:              3,
		MaxChars:          4000,
		CacheTTL:          5 * time.Minute,
	}
}

// Resolver builds ChatContexts. It is safe for concurrent use.
type Resolver struct {
	store Store
	cache Cache
	opts  Options

	group singleflight.Group
	fold  cases.Caser
	mu    sync.Mutex

	generations sync.Map // tenantID -> *atomic.Uint64
}

// NewResolver wires a Resolver. cache may be nil.
func NewResolver(store Store, cache Cache, opts Options) *Resolver {
	d := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = d.TopK
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = d.MaxChars
	}
	return &Resolver{store: store, cache: cache, opts: opts, fold: cases.Fold()}
}

// Resolve returns the context for question within tenantID. Identical
// concurrent lookups share one store round trip.
func (r *Resolver) Resolve(ctx context.Context, tenantID, question string) ChatContext {
	ctx, span := otel.Tracer("knowledge/Resolver").Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	key := r.cacheKey(tenantID, question)
	if cc, ok := r.fromCache(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cc
	}

	// The shared lookup must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do(key, func() (any, error) {
		cc, err := r.build(shared, tenantID, question)
		if err != nil {
			sysutil.Logger(ctx).Warn().Err(err).Str("tenant_id", tenantID).Msg("knowledge lookup failed; using empty context")
			return ChatContext{}, nil
		}
		r.toCache(shared, key, cc)
		return cc, nil
	})
	cc := v.(ChatContext)
	span.SetAttributes(
		attribute.Bool("context.manual", cc.IsManualKnowledge),
		attribute.Int("context.sources", len(cc.Sources)),
	)
	return cc.clone()
}

// Invalidate makes every cached context of tenantID unreachable.
func (r *Resolver) Invalidate(tenantID string) {
	r.generation(tenantID).Add(1)
}

func (r *Resolver) build(ctx context.Context, tenantID, question string) (ChatContext, error) {
	exact, err := r.store.SearchExact(ctx, tenantID, question, 1, r.opts.ExactThreshold)
	if err != nil {
		return ChatContext{}, fmt.Errorf("search exact: %w", err)
	}
	if len(exact) > 0 && exact[0].Similarity >= r.opts.ExactThreshold {
		top := exact[0]
		return ChatContext{
			RelevantContent:   top.Answer,
			Sources:           []string{SourceLabelPrefix + top.Question},
			IsManualKnowledge: true,
		}, nil
	}

	chunks, err := r.store.SearchSemantic(ctx, tenantID, question, r.opts.TopK, r.opts.SemanticThreshold)
	if err != nil {
		return ChatContext{}, fmt.Errorf("search semantic: %w", err)
	}
	if len(chunks) > r.opts.TopK {
		chunks = chunks[:r.opts.TopK]
	}

	parts := make([]string, 0, len(chunks))
	urls := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		parts = append(parts, "["+strconv.Itoa(len(parts)+1)+"] "+c.Content)
		urls = append(urls, c.SourceURL)
	}
	if len(parts) == 0 {
		return ChatContext{}, nil
	}
	return ChatContext{
		RelevantContent: Truncate(strings.Join(parts, "\n\n"), r.opts.MaxChars),
		Sources:         DedupeSources(urls),
	}, nil
}

// Truncate cuts s to at most max runes and appends TruncationMarker when it
// had to cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// DedupeSources drops blank and repeated identifiers, keeping first-seen order.
func DedupeSources(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormalizeQuestion case-folds q and collapses whitespace.
func (r *Resolver) NormalizeQuestion(q string) string {
	r.mu.Lock()
	folded := r.fold.String(q)
	r.mu.Unlock()
	return strings.Join(strings.Fields(folded), " ")
}

func (r *Resolver) cacheKey(tenantID, question string) string {
	n := r.generation(tenantID).Load()
	return "ctx:" + tenantID + ":" + strconv.FormatUint(n, 10) + ":" + r.NormalizeQuestion(question)
}

func (r *Resolver) generation(tenantID string) *atomic.Uint64 {
	v, _ := r.generations.LoadOrStore(tenantID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (r *Resolver) fromCache(ctx context.Context, key string) (ChatContext, bool) {
	if r.cache == nil || r.opts.CacheTTL <= 0 {
		return ChatContext{}, false
	}
	b, ok := r.cache.Get(ctx, key)
	if !ok {
		return ChatContext{}, false
	}
	var cc ChatContext
	if err := json.Unmarshal(b, &cc); err != nil {
		r.cache.Delete(ctx, key)
		return ChatContext{}, false
	}
	return cc, true
}

func (r *Resolver) toCache(ctx context.Context, key string, cc ChatContext) {
	if r.cache == nil || r.opts.CacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(cc)
	if err != nil {
		return
	}
	r.cache.Set(ctx, key, b, r.opts.CacheTTL)
}

func (c ChatContext) clone() ChatContext {
	if c.Sources != nil {
		c.Sources = append([]string(nil), c.Sources...)
	}
	return c
}
