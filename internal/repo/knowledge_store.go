package repo

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/knowledge"
	"github.com/tbourn/go-support-chat/internal/search"
)

// KnowledgeStore serves knowledge lookups from the database, ranking a
// tenant's rows with the in-memory search index. Curated questions are
// scored with Jaccard similarity, content chunks with query coverage.
type KnowledgeStore struct {
	DB *gorm.DB
}

// NewKnowledgeStore returns a KnowledgeStore over db.
func NewKnowledgeStore(db *gorm.DB) *KnowledgeStore { return &KnowledgeStore{DB: db} }

var _ knowledge.Store = (*KnowledgeStore)(nil)

// SearchExact ranks the tenant's enabled Q&A entries by question similarity.
// Equal scores prefer higher priority.
func (s *KnowledgeStore) SearchExact(ctx context.Context, tenantID, text string, limit int, threshold float64) ([]knowledge.ExactMatch, error) {
	entries, err := ListKnowledgeEntries(ctx, s.DB, tenantID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	docs := make([]search.Document, 0, len(entries))
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		docs = append(docs, search.Document{ID: e.ID, Text: e.Question})
		byID[e.ID] = i
	}
	hits := search.NewIndex(docs, search.WithScorer(search.Jaccard)).TopK(text, len(docs), threshold)

	out := make([]knowledge.ExactMatch, 0, len(hits))
	for _, h := range hits {
		e := entries[byID[h.Doc.ID]]
		out = append(out, knowledge.ExactMatch{
			ID:         e.ID,
			Question:   e.Question,
			Answer:     e.Answer,
			Category:   e.Category,
			Priority:   e.Priority,
			Similarity: h.Score,
		})
	}
	sortByScoreThenPriority(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchSemantic ranks the tenant's content chunks against text.
func (s *KnowledgeStore) SearchSemantic(ctx context.Context, tenantID, text string, limit int, threshold float64) ([]knowledge.Chunk, error) {
	chunks, err := ListContentChunks(ctx, s.DB, tenantID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	docs := make([]search.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, search.Document{ID: c.ID, Text: c.Content, Source: c.SourceURL})
	}
	hits := search.NewIndex(docs, search.WithScorer(search.Coverage)).TopK(text, limit, threshold)

	out := make([]knowledge.Chunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, knowledge.Chunk{Content: h.Doc.Text, SourceURL: h.Doc.Source, Similarity: h.Score})
	}
	return out, nil
}

func sortByScoreThenPriority(m []knowledge.ExactMatch) {
	sort.SliceStable(m, func(a, b int) bool {
		if m[a].Similarity != m[b].Similarity {
			return m[a].Similarity > m[b].Similarity
		}
		return m[a].Priority > m[b].Priority
	})
}
