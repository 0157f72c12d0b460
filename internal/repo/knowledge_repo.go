package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// UpsertKnowledgeEntry inserts a Q&A entry, or updates the tenant's existing
// entry with the same question text.
func UpsertKnowledgeEntry(ctx context.Context, db *gorm.DB, e *domain.KnowledgeEntry) error {
	now := time.Now().UTC()
	var existing domain.KnowledgeEntry
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND question = ?", e.TenantID, e.Question).
		First(&existing).Error
	switch {
	case err == nil:
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
		e.UpdatedAt = now
		return db.WithContext(ctx).Save(e).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt, e.UpdatedAt = now, now
		return db.WithContext(ctx).Create(e).Error
	default:
		return err
	}
}

// ListKnowledgeEntries returns the tenant's enabled entries, highest priority first.
func ListKnowledgeEntries(ctx context.Context, db *gorm.DB, tenantID string) ([]domain.KnowledgeEntry, error) {
	var out []domain.KnowledgeEntry
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Order("priority desc, created_at asc").
		Find(&out).Error
	return out, err
}

// ReplaceContentChunks atomically swaps the chunks stored for one source URL.
func ReplaceContentChunks(ctx context.Context, db *gorm.DB, tenantID, sourceURL string, contents []string) ([]domain.ContentChunk, error) {
	chunks := make([]domain.ContentChunk, 0, len(contents))
	now := time.Now().UTC()
	for i, c := range contents {
		chunks = append(chunks, domain.ContentChunk{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			SourceURL: sourceURL,
			Position:  i,
			Content:   c,
			CreatedAt: now,
		})
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND source_url = ?", tenantID, sourceURL).
			Delete(&domain.ContentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListContentChunks returns every chunk stored for a tenant in source order.
func ListContentChunks(ctx context.Context, db *gorm.DB, tenantID string) ([]domain.ContentChunk, error) {
	var out []domain.ContentChunk
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("source_url asc, position asc").
		Find(&out).Error
	return out, err
}
