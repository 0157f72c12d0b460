package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ChatbotsStats returns how many live chatbots a tenant has and the latest
// UpdatedAt among them, for ETag generation. maxUpdatedAt is nil when the
// tenant has none.
func ChatbotsStats(ctx context.Context, db *gorm.DB, tenantID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Chatbot{}).Where("tenant_id = ?", tenantID)
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	// ORDER BY instead of MAX(): SQLite would return MAX() as TEXT.
	var row struct{ UpdatedAt time.Time }
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
