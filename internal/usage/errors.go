package usage

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ErrTenantNotFound is returned when the tenant has no subscription row.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrReservationClosed is returned when committing or rolling back a
// reservation that already reached a terminal state.
var ErrReservationClosed = errors.New("reservation already closed")

// QuotaExceededError reports that a plan limit was hit. No reservation exists
// when it is returned.
type QuotaExceededError struct {
	Kind  string
	Plan  string
	Limit int
}

func (e *QuotaExceededError) Error() string {
	noun := "messages"
	if e.Kind == domain.KindChatbot {
		noun = "chatbots"
	}
	return fmt.Sprintf("You've reached the limit of %d %s on your %s plan. Upgrade your plan to continue.", e.Limit, noun, e.Plan)
}

// PlanChangeError reports that the tenant's current usage does not fit the
// requested plan.
type PlanChangeError struct {
	From    string
	To      string
	Kind    string
	Current int
	Limit   int
}

func (e *PlanChangeError) Error() string {
	noun := "messages used this period"
	if e.Kind == domain.KindChatbot {
		noun = "chatbots"
	}
	return fmt.Sprintf("cannot change plan from %s to %s: %d %s but %s allows %d; reduce usage by %d first",
		e.From, e.To, e.Current, noun, e.To, e.Limit, e.Current-e.Limit)
}
