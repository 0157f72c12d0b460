// Package app is the composition root: it builds every service of the
// support-chat API from a Config and a database handle.
package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/billing"
	"github.com/tbourn/go-support-chat/internal/cache"
	"github.com/tbourn/go-support-chat/internal/config"
	"github.com/tbourn/go-support-chat/internal/http/handlers"
	"github.com/tbourn/go-support-chat/internal/knowledge"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/sysutil"
	"github.com/tbourn/go-support-chat/internal/usage"
)

// maxMessageRunes bounds one visitor message.
const maxMessageRunes = 4000

// App holds the wired services.
type App struct {
	Config config.Config
	DB     *gorm.DB

	Cache     *cache.Cache
	Ledger    *usage.Ledger
	Resolver  *knowledge.Resolver
	Providers *llm.Registry

	Chat      *services.ChatService
	Chatbots  *services.ChatbotService
	Knowledge *services.KnowledgeService
	Feedback  *services.FeedbackService
	Recorder  *billing.Recorder
	Parsers   billing.Parsers
}

// Providers builds the upstream clients named in cfg. Both are always
// registered; a client without an API key fails its calls, which surface
// to visitors as the generic failure message.
func Providers(cfg config.ProviderConfig) []llm.Provider {
	return []llm.Provider{
		llm.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.HTTPTimeout),
		llm.NewAnthropic(cfg.AnthropicBaseURL, cfg.AnthropicKey, cfg.AnthropicVersion, cfg.HTTPTimeout),
	}
}

// New wires the services over db. providers defaults to Providers(cfg).
func New(cfg config.Config, db *gorm.DB, providers ...llm.Provider) (*App, error) {
	if len(providers) == 0 {
		providers = Providers(cfg.Provider)
	}
	c, err := cache.New(cfg.Context.CacheBytes)
	if err != nil {
		return nil, fmt.Errorf("context cache: %w", err)
	}

	ledger := usage.New(db)
	resolver := knowledge.NewResolver(repo.NewKnowledgeStore(db), c, knowledge.Options{
		ExactThreshold:    cfg.Context.ExactThreshold,
		SemanticThreshold: cfg.Context.SemanticThreshold,
		TopK:              cfg.Context.TopK,
		MaxChars:          cfg.Context.MaxChars,
		CacheTTL:          cfg.Context.CacheTTL,
	})
	registry := llm.NewRegistry(cfg.Provider.Default, providers...)

	a := &App{
		Config:    cfg,
		DB:        db,
		Cache:     c,
		Ledger:    ledger,
		Resolver:  resolver,
		Providers: registry,
		Chat: &services.ChatService{
			DB:         db,
			Ledger:     ledger,
			Context:    resolver,
			Providers:  registry,
			Adapter:    llm.NewAdapter(cfg.Stream.IdleTimeout, cfg.Stream.MaxDuration),
			Transcript: services.NewConversationService(db),
			Defaults: services.ModelDefaults{
				Provider:        cfg.Provider.Default,
				Model:           cfg.Provider.DefaultModel,
				Temperature:     cfg.Provider.Temperature,
				MaxOutputTokens: cfg.Provider.MaxOutputTokens,
			},
			MaxMessageRunes: maxMessageRunes,
			IdempotencyTTL:  cfg.IdempotencyTTL,
		},
		Chatbots:  services.NewChatbotService(db, ledger, registry),
		Knowledge: services.NewKnowledgeService(db, resolver),
		Feedback:  &services.FeedbackService{DB: db},
		Recorder:  billing.NewRecorder(db, ledger),
		Parsers: billing.NewParsers(
			billing.Stripe{Secret: cfg.Billing.StripeSecret, Tolerance: cfg.Billing.Tolerance},
			billing.Generic{Secret: cfg.Billing.GenericSecret},
		),
	}
	return a, nil
}

// Handlers returns the HTTP handlers bound to the services.
func (a *App) Handlers() *handlers.Handlers {
	return handlers.New(handlers.Deps{
		Chat:      a.Chat,
		Chatbots:  a.Chatbots,
		Knowledge: a.Knowledge,
		Feedback:  a.Feedback,
		Usage:     a.Ledger,
		Parsers:   a.Parsers,
		Recorder:  a.Recorder,
	})
}

// Sweep deletes webhook records past retention and expired idempotency
// records.
func (a *App) Sweep(ctx context.Context) error {
	webhooks, err := a.Recorder.Sweep(ctx, a.Config.Billing.Retention)
	if err != nil {
		return fmt.Errorf("sweep webhooks: %w", err)
	}
	keys, err := repo.PurgeExpiredIdempotency(ctx, a.DB, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("purge idempotency: %w", err)
	}
	sysutil.Logger(ctx).Info().
		Int64("webhook_events", webhooks).
		Int64("idempotency_keys", keys).
		Msg("retention sweep")
	return nil
}

// RunMaintenance calls Sweep every interval until ctx ends.
func (a *App) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.Sweep(ctx); err != nil {
				sysutil.Logger(ctx).Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}

// Close releases the cache and the database pool.
func (a *App) Close() error {
	a.Cache.Close()
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
