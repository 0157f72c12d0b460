package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/repo"
)

type countingInvalidator map[string]int

func (c countingInvalidator) Invalidate(tenantID string) { c[tenantID]++ }

func TestKnowledgeUpsertEntry(t *testing.T) {
	db := newServiceDB(t)
	inv := countingInvalidator{}
	svc := NewKnowledgeService(db, inv)
	ctx := context.Background()

	e, err := svc.UpsertEntry(ctx, "t1", EntryInput{Question: " Returns? ", Answer: "30 days", Priority: 2})
	if err != nil || e.Question != "Returns?" || !e.Enabled {
		t.Fatalf("UpsertEntry = %+v, %v", e, err)
	}
	off := false
	e2, err := svc.UpsertEntry(ctx, "t1", EntryInput{Question: "Returns?", Answer: "45 days", Enabled: &off})
	if err != nil || e2.ID != e.ID {
		t.Fatalf("second upsert must update in place: %+v %v", e2, err)
	}
	if list, _ := repo.ListKnowledgeEntries(ctx, db, "t1"); len(list) != 0 {
		t.Fatalf("disabled entries must not be listed: %+v", list)
	}
	if inv["t1"] != 2 {
		t.Fatalf("invalidations = %d", inv["t1"])
	}

	var ve *ValidationError
	if _, err := svc.UpsertEntry(ctx, "t1", EntryInput{Question: "q"}); !errors.As(err, &ve) {
		t.Fatalf("missing answer: %v", err)
	}
}

func TestKnowledgeIngestMarkdown(t *testing.T) {
	db := newServiceDB(t)
	inv := countingInvalidator{}
	svc := NewKnowledgeService(db, inv)
	ctx := context.Background()

	md := "# Shipping\nWe ship worldwide.\n\n| Plan | Price |\n|---|---|\n| Pro | $20 |\n"
	n, err := svc.IngestMarkdown(ctx, "t1", "https://acme.test/shipping", strings.NewReader(md))
	if err != nil || n == 0 {
		t.Fatalf("IngestMarkdown = %d, %v", n, err)
	}
	chunks, _ := repo.ListContentChunks(ctx, db, "t1")
	if len(chunks) != n {
		t.Fatalf("stored %d chunks, reported %d", len(chunks), n)
	}
	joined := ""
	for _, c := range chunks {
		joined += c.Content + "\n"
	}
	if !strings.Contains(joined, "Plan: Pro") || !strings.Contains(joined, "We ship worldwide.") {
		t.Fatalf("chunks = %q", joined)
	}
	if inv["t1"] != 1 {
		t.Fatalf("invalidations = %d", inv["t1"])
	}

	var ve *ValidationError
	if _, err := svc.IngestMarkdown(ctx, "t1", "not a url", strings.NewReader(md)); !errors.As(err, &ve) {
		t.Fatalf("bad url: %v", err)
	}
	if _, err := svc.IngestMarkdown(ctx, "t1", "https://acme.test/empty", strings.NewReader("  \n")); !errors.As(err, &ve) {
		t.Fatalf("empty content: %v", err)
	}
}

func TestFeedbackLeave(t *testing.T) {
	db := newServiceDB(t)
	conv := NewConversationService(db)
	fb := &FeedbackService{DB: db}
	ctx := context.Background()

	c, err := conv.Open(ctx, "t1", "bot-1", "s1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	answer, err := conv.Append(ctx, c.ID, "q?", "a.", []string{"src"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	var question domain.Message
	db.Where("conversation_id = ? AND role = ?", c.ID, domain.RoleUser).First(&question)

	cases := []struct {
		name                      string
		bot, session, msg         string
		value                     int
		want                      error
	}{
		{"bad value", "bot-1", "s1", answer.ID, 0, ErrInvalidFeedback},
		{"missing", "bot-1", "s1", "nope", 1, ErrMessageNotFound},
		{"other session", "bot-1", "s2", answer.ID, 1, ErrForbiddenFeedback},
		{"user turn", "bot-1", "s1", question.ID, 1, ErrForbiddenFeedback},
		{"ok", "bot-1", "s1", answer.ID, -1, nil},
		{"twice", "bot-1", "s1", answer.ID, 1, ErrDuplicateFeedback},
	}
	for _, tc := range cases {
		if err := fb.Leave(ctx, tc.bot, tc.session, tc.msg, tc.value); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestConversationRecent(t *testing.T) {
	db := newServiceDB(t)
	conv := NewConversationService(db)
	ctx := context.Background()
	c, _ := conv.Open(ctx, "t1", "bot-1", "s1")
	for _, q := range []string{"one", "two", "three"} {
		if _, err := conv.Append(ctx, c.ID, q, "re: "+q, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := conv.Recent(ctx, c.ID, 4)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "two"}, {Role: llm.RoleAssistant, Content: "re: two"},
		{Role: llm.RoleUser, Content: "three"}, {Role: llm.RoleAssistant, Content: "re: three"},
	}
	if len(got) != len(want) {
		t.Fatalf("Recent = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Recent[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
