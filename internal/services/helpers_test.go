package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/knowledge"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/usage"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stubProvider scripts upstream behaviour.
type stubProvider struct {
	mu       sync.Mutex
	calls    int
	last     llm.Request
	complete func(req llm.Request) (string, error)
	stream   func(ctx context.Context, req llm.Request) (<-chan llm.Event, error)
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) note(req llm.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = req
}

func (p *stubProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	p.note(req)
	return p.complete(req)
}

func (p *stubProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	p.note(req)
	return p.stream(ctx, req)
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// events emits evs in order, sleeping pauses[i] before the i-th one.
func events(ctx context.Context, pauses []time.Duration, evs ...llm.Event) <-chan llm.Event {
	ch := make(chan llm.Event)
	go func() {
		defer close(ch)
		for i, ev := range evs {
			if i < len(pauses) && pauses[i] > 0 {
				select {
				case <-time.After(pauses[i]):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

type resolverFunc func(ctx context.Context, tenantID, question string) knowledge.ChatContext

func (f resolverFunc) Resolve(ctx context.Context, tenantID, question string) knowledge.ChatContext {
	return f(ctx, tenantID, question)
}

func staticContext(cc knowledge.ChatContext) ContextResolver {
	return resolverFunc(func(context.Context, string, string) knowledge.ChatContext { return cc })
}

// recordingSink captures stream events. failAt makes the n-th Chunk fail.
type recordingSink struct {
	chunks []string
	done   []string
	errs   []string
	failAt int
	n      int
}

func (s *recordingSink) Chunk(c string) error {
	s.n++
	if s.failAt > 0 && s.n >= s.failAt {
		return errors.New("broken pipe")
	}
	s.chunks = append(s.chunks, c)
	return nil
}

func (s *recordingSink) Done(id string) error {
	s.done = append(s.done, id)
	return nil
}

func (s *recordingSink) Error(msg string) error {
	s.errs = append(s.errs, msg)
	return nil
}

func (s *recordingSink) terminals() int { return len(s.done) + len(s.errs) }

// chatFixture is a ChatService over a seeded tenant t1 with chatbot bot-1.
type chatFixture struct {
	db     *gorm.DB
	svc    *ChatService
	prov   *stubProvider
	ledger *usage.Ledger
}

func newChatFixture(t *testing.T, prov *stubProvider, cc ContextResolver) *chatFixture {
	t.Helper()
	db := newServiceDB(t)
	db.Create(&domain.Subscription{TenantID: "t1", Plan: "starter", MessagesCount: 3, MessageLimit: 10, ChatbotLimit: 3, ChatbotsCount: 1})
	temp := 0.2
	db.Create(&domain.Chatbot{ID: "bot-1", TenantID: "t1", Name: "Help", Provider: "stub", Model: "gpt-4o-mini",
		Instructions: "You are Acme support.", Temperature: &temp})

	ledger := usage.New(db)
	svc := &ChatService{
		DB:         db,
		Ledger:     ledger,
		Context:    cc,
		Providers:  llm.NewRegistry("stub", prov),
		Adapter:    llm.NewAdapter(100*time.Millisecond, 2*time.Second),
		Transcript: NewConversationService(db),
		Defaults:   ModelDefaults{Provider: "stub", Model: "gpt-4o-mini", Temperature: 0.7, MaxOutputTokens: 256},

		MaxMessageRunes: 500,
		IdempotencyTTL:  time.Hour,
	}
	return &chatFixture{db: db, svc: svc, prov: prov, ledger: ledger}
}

func (f *chatFixture) messagesUsed(t *testing.T) int {
	t.Helper()
	var s domain.Subscription
	if err := f.db.First(&s, "tenant_id = ?", "t1").Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	return s.MessagesCount
}

func (f *chatFixture) reservations(t *testing.T, status string) int64 {
	t.Helper()
	var n int64
	f.db.Model(&domain.UsageReservation{}).Where("status = ?", status).Count(&n)
	return n
}

func (f *chatFixture) turns(t *testing.T) []domain.Message {
	t.Helper()
	var out []domain.Message
	f.db.Order("created_at asc").Find(&out)
	return out
}

func req(msg string) ChatRequest {
	return ChatRequest{ChatbotID: "bot-1", SessionID: "s1", Message: msg}
}
