// Package domain defines the persistence models of the support-chat service.
// These types are mapped with GORM and shared by the repository, ledger,
// billing and service layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chatbot is an operator-configured assistant embedded on a tenant's site.
// Provider and Model select the upstream language model; Instructions is the
// operator's system prompt.
type Chatbot struct {
	ID           string         `json:"id"           gorm:"type:char(36);primaryKey"`
	TenantID     string         `json:"tenant_id"    gorm:"type:varchar(64);not null;index:idx_tenant_bots"`
	Name         string         `json:"name"         gorm:"type:varchar(255);not null"`
	Provider     string         `json:"provider"     gorm:"type:varchar(32)"`
	Model        string         `json:"model"        gorm:"type:varchar(128)"`
	Instructions string         `json:"instructions" gorm:"type:text"`
	Temperature  *float64       `json:"temperature,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Chatbot.
func (Chatbot) TableName() string { return "chatbots" }

// KnowledgeEntry is an operator-curated Q&A pair. A confident match on
// Question makes Answer the authoritative reply context.
type KnowledgeEntry struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(64);not null;index:idx_tenant_knowledge"`
	Question  string    `json:"question"  gorm:"type:text;not null"`
	Answer    string    `json:"answer"    gorm:"type:text;not null"`
	Category  string    `json:"category"  gorm:"type:varchar(64)"`
	Priority  int       `json:"priority"  gorm:"not null;default:0"`
	Enabled   bool      `json:"enabled"   gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for KnowledgeEntry.
func (KnowledgeEntry) TableName() string { return "knowledge_entries" }

// ContentChunk is one paragraph of scraped site content.
type ContentChunk struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id"  gorm:"type:varchar(64);not null;index:idx_tenant_chunks,priority:1"`
	SourceURL string    `json:"source_url" gorm:"type:varchar(1024);not null;index:idx_tenant_chunks,priority:2"`
	Position  int       `json:"position"   gorm:"not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for ContentChunk.
func (ContentChunk) TableName() string { return "content_chunks" }

// Conversation groups the turns of one visitor session with one chatbot.
type Conversation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatbotID string    `json:"chatbot_id" gorm:"type:char(36);not null;uniqueIndex:ux_bot_session,priority:1"`
	SessionID string    `json:"session_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_bot_session,priority:2"`
	TenantID  string    `json:"tenant_id"  gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single turn of a conversation. Assistant turns carry the
// source labels the answer was grounded on.
type Message struct {
	ID             string                      `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string                      `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string                      `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string                      `json:"content"         gorm:"type:text;not null"`
	Sources        datatypes.JSONSlice[string] `json:"sources,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Feedback is a visitor's rating (-1 or 1) of one assistant answer. A
// message can be rated once.
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;uniqueIndex:ux_feedback_message"`
	SessionID string    `json:"session_id" gorm:"type:varchar(128);not null"`
	Value     int       `json:"value"      gorm:"not null;check:value IN (-1,1)"`
	CreatedAt time.Time `json:"created_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
