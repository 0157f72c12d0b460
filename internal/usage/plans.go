package usage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ErrUnknownPlan is returned for plan names outside the plan table.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan is a named set of limits. A negative limit is unlimited.
type Plan struct {
	Name         string
	MessageLimit int
	ChatbotLimit int
}

// Limit returns the plan's limit for kind.
func (p Plan) Limit(kind string) int {
	if kind == domain.KindChatbot {
		return p.ChatbotLimit
	}
	return p.MessageLimit
}

// Plan names.
const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

var plans = map[string]Plan{
	PlanFree:       {Name: PlanFree, MessageLimit: 100, ChatbotLimit: 1},
	PlanStarter:    {Name: PlanStarter, MessageLimit: 2000, ChatbotLimit: 3},
	PlanPro:        {Name: PlanPro, MessageLimit: 10000, ChatbotLimit: 10},
	PlanEnterprise: {Name: PlanEnterprise, MessageLimit: domain.Unlimited, ChatbotLimit: domain.Unlimited},
}

// LookupPlan returns the plan called name (case-insensitive).
func LookupPlan(name string) (Plan, error) {
	p, ok := plans[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
	return p, nil
}
