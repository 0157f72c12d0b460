package repo

import (
	"context"
	"testing"

	"github.com/tbourn/go-support-chat/internal/domain"
)

func TestKnowledgeStore_SearchExact(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, e := range []*domain.KnowledgeEntry{
		{TenantID: "t1", Question: "Returns?", Answer: "30 days", Priority: 1, Enabled: true},
		{TenantID: "t1", Question: "Shipping time?", Answer: "2 days", Enabled: true},
		{TenantID: "t2", Question: "Returns?", Answer: "never", Enabled: true},
	} {
		if err := UpsertKnowledgeEntry(ctx, db, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	disabled := &domain.KnowledgeEntry{TenantID: "t1", Question: "Secret returns?", Answer: "hidden", Enabled: true}
	_ = UpsertKnowledgeEntry(ctx, db, disabled)
	db.Model(&domain.KnowledgeEntry{}).Where("id = ?", disabled.ID).Update("enabled", false)

	st := NewKnowledgeStore(db)
	got, err := st.SearchExact(ctx, "t1", "returns", 1, 0.8)
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if len(got) != 1 || got[0].Answer != "30 days" || got[0].Similarity != 1 {
		t.Fatalf("unexpected matches: %+v", got)
	}

	// Upsert replaces the answer for the same question.
	_ = UpsertKnowledgeEntry(ctx, db, &domain.KnowledgeEntry{TenantID: "t1", Question: "Returns?", Answer: "60 days", Enabled: true})
	got, _ = st.SearchExact(ctx, "t1", "Returns?", 5, 0.8)
	if len(got) != 1 || got[0].Answer != "60 days" {
		t.Fatalf("upsert did not replace answer: %+v", got)
	}

	if none, _ := st.SearchExact(ctx, "empty", "returns", 1, 0.8); len(none) != 0 {
		t.Fatalf("tenant without entries should match nothing")
	}
}

func TestKnowledgeStore_SearchSemantic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := ReplaceContentChunks(ctx, db, "t1", "https://shop/returns", []string{
		"Refunds are issued within thirty days of delivery.",
		"Our store opens at nine.",
	}); err != nil {
		t.Fatalf("ReplaceContentChunks: %v", err)
	}
	_, _ = ReplaceContentChunks(ctx, db, "t1", "https://shop/faq", []string{"Refunds take thirty days to process."})

	st := NewKnowledgeStore(db)
	got, err := st.SearchSemantic(ctx, "t1", "refunds thirty days", 3, 0.6)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %+v", got)
	}
	for _, c := range got {
		if c.SourceURL == "" || c.Similarity < 0.6 {
			t.Fatalf("bad chunk: %+v", c)
		}
	}

	// Replacing a source drops its old chunks.
	_, _ = ReplaceContentChunks(ctx, db, "t1", "https://shop/returns", nil)
	got, _ = st.SearchSemantic(ctx, "t1", "refunds thirty days", 3, 0.6)
	if len(got) != 1 || got[0].SourceURL != "https://shop/faq" {
		t.Fatalf("unexpected chunks after replace: %+v", got)
	}
}
