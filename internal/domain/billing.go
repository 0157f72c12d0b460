package domain

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent records a billing-provider delivery whose effects were applied.
// (provider, event_id) is unique; a row is only removed by the retention sweep.
type WebhookEvent struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	Provider    string         `json:"provider"     gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_provider_event,priority:1"`
	EventID     string         `json:"event_id"     gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_provider_event,priority:2"`
	EventType   string         `json:"event_type"   gorm:"type:varchar(100);not null;index"`
	TenantID    string         `json:"tenant_id"    gorm:"type:varchar(64);index"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt time.Time      `json:"processed_at" gorm:"not null;index"`
}

// TableName returns the database table name for WebhookEvent.
func (WebhookEvent) TableName() string { return "webhook_events" }
