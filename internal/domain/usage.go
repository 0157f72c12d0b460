package domain

import "time"

// Usage resource kinds.
const (
	KindMessage = "message"
	KindChatbot = "chatbot"
)

// Reservation outcomes.
const (
	ReservationPending    = "pending"
	ReservationCommitted  = "committed"
	ReservationRolledBack = "rolledback"
)

// Unlimited marks a plan limit that is never enforced.
const Unlimited = -1

// Subscription is a tenant's plan and usage counter row. Limits are copied
// from the plan table whenever the plan changes, so a quota check is a single
// conditional UPDATE against this row.
type Subscription struct {
	TenantID      string    `json:"tenant_id"      gorm:"type:varchar(64);primaryKey"`
	Plan          string    `json:"plan"           gorm:"type:varchar(32);not null"`
	MessagesCount int       `json:"messages_count" gorm:"not null;default:0"`
	ChatbotsCount int       `json:"chatbots_count" gorm:"not null;default:0"`
	MessageLimit  int       `json:"message_limit"  gorm:"not null"`
	ChatbotLimit  int       `json:"chatbot_limit"  gorm:"not null"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// UsageReservation is one claimed unit of usage. It is created pending in the
// same transaction as the counter increment and closes exactly once.
type UsageReservation struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string     `json:"tenant_id"  gorm:"type:varchar(64);not null;index"`
	Kind      string     `json:"kind"       gorm:"type:varchar(16);not null;check:kind IN ('message','chatbot')"`
	Status    string     `json:"status"     gorm:"type:varchar(16);not null;index"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// TableName returns the database table name for UsageReservation.
func (UsageReservation) TableName() string { return "usage_reservations" }
