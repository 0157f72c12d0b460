package domain

import "time"

// Idempotency stores the outcome of a chat message request keyed by the
// client's Idempotency-Key, scoped to (chatbot, session). A replay returns the
// stored assistant message without reserving usage again.
type Idempotency struct {
	ID             string    `gorm:"type:varchar(36);not null;primaryKey"`
	ChatbotID      string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_bot_session_key,priority:1"`
	SessionID      string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_bot_session_key,priority:2"`
	Key            string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_bot_session_key,priority:3"`
	ConversationID string    `gorm:"type:varchar(36);not null"`
	MessageID      string    `gorm:"type:varchar(36);not null"`
	Status         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
