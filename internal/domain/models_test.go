package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Chatbot{}.TableName():          "chatbots",
		KnowledgeEntry{}.TableName():   "knowledge_entries",
		ContentChunk{}.TableName():     "content_chunks",
		Conversation{}.TableName():     "conversations",
		Message{}.TableName():          "messages",
		Subscription{}.TableName():     "subscriptions",
		UsageReservation{}.TableName(): "usage_reservations",
		WebhookEvent{}.TableName():     "webhook_events",
		Idempotency{}.TableName():      "idempotency",
		Feedback{}.TableName():         "feedback",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	models := []any{
		&Chatbot{}, &KnowledgeEntry{}, &ContentChunk{}, &Conversation{}, &Message{}, &Feedback{},
		&Subscription{}, &UsageReservation{}, &WebhookEvent{}, &Idempotency{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range models {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&Feedback{}, "ux_feedback_message") {
		t.Fatalf("expected unique index on feedback")
	}
	if !m.HasIndex(&WebhookEvent{}, "ux_webhook_provider_event") {
		t.Fatalf("expected unique index on webhook_events")
	}
	if !m.HasIndex(&Conversation{}, "ux_bot_session") {
		t.Fatalf("expected unique index on conversations")
	}
	if !m.HasIndex(&Idempotency{}, "ux_bot_session_key") {
		t.Fatalf("expected unique index on idempotency")
	}
}

func TestWebhookEvent_UniquePerProvider(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&WebhookEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	now := time.Now().UTC()
	ok1 := &WebhookEvent{ID: "1", Provider: "stripe", EventID: "evt_1", EventType: "invoice.paid", ProcessedAt: now}
	ok2 := &WebhookEvent{ID: "2", Provider: "generic", EventID: "evt_1", EventType: "invoice.paid", ProcessedAt: now}
	dup := &WebhookEvent{ID: "3", Provider: "stripe", EventID: "evt_1", EventType: "invoice.paid", ProcessedAt: now}
	if err := db.Create(ok1).Error; err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := db.Create(ok2).Error; err != nil {
		t.Fatalf("same event id from another provider must be allowed: %v", err)
	}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (provider, event_id)")
	}
}

func TestMessage_SourcesRoundTrip_AndCascade(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	conv := &Conversation{ID: "c1", ChatbotID: "b1", SessionID: "s1", TenantID: "t1"}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("create conv: %v", err)
	}
	msg := &Message{ID: "m1", ConversationID: "c1", Role: RoleAssistant, Content: "hi", Sources: []string{"https://a", "https://b"}}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("create msg: %v", err)
	}
	var got Message
	if err := db.First(&got, "id = ?", "m1").Error; err != nil {
		t.Fatalf("load msg: %v", err)
	}
	if len(got.Sources) != 2 || got.Sources[1] != "https://b" {
		t.Fatalf("sources round-trip mismatch: %#v", got.Sources)
	}
	bad := &Message{ID: "m2", ConversationID: "c1", Role: "system", Content: "x"}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected role check constraint violation")
	}
	if err := db.Delete(&Conversation{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete conv: %v", err)
	}
	var n int64
	db.Model(&Message{}).Where("conversation_id = ?", "c1").Count(&n)
	if n != 0 {
		t.Fatalf("expected cascade delete of messages, got %d", n)
	}
}
