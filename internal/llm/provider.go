// Package llm adapts interchangeable upstream language-model providers to one
// completion and streaming contract. Providers are selected by name from a
// Registry; model-specific request parameters come from a rule table.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn sent upstream.
type Message struct {
	Role    string
	Content string
}

// Request is a provider-neutral call. System carries the instructions and
// grounding context; Messages ends with the current user turn.
type Request struct {
	Model           string
	System          string
	Messages        []Message
	Temperature     *float64
	MaxOutputTokens int
}

// Event is one item of a stream: a text fragment, or a terminal error.
type Event struct {
	Text string
	Err  error
}

// Provider is one upstream model vendor.
//
// Stream returns a channel that yields text fragments in order and is closed
// when the upstream response ends. An upstream failure after the call was
// accepted is delivered as a final Event with Err set. Cancelling ctx aborts
// the upstream request and closes the channel.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// ErrContextLength matches provider errors caused by an oversized prompt.
var ErrContextLength = errors.New("context length exceeded")

// ProviderError is a failed upstream call.
type ProviderError struct {
	Provider string
	Status   int
	Code     string
	Message  string
	Overflow bool
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Status > 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Code != "" {
		b.WriteString(": " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrContextLength) true for overflow rejections.
func (e *ProviderError) Is(target error) bool {
	return target == ErrContextLength && e.Overflow
}

// Temporary reports whether a retry could succeed (rate limits, 5xx).
func (e *ProviderError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// overflowPatterns lists, per provider, the error codes and message fragments
// that signal a prompt larger than the model's input window.
var overflowPatterns = map[string][]string{
	"openai": {
		"context_length_exceeded",
		"maximum context length",
		"too many tokens",
		"reduce the length of the messages",
		"string_above_max_length",
	},
	"anthropic": {
		"prompt is too long",
		"input is too long",
		"exceeds the context window",
		"context window",
		"too many total text bytes",
	},
}

// isOverflow matches code and message against the provider's patterns.
func isOverflow(provider, code, message string) bool {
	hay := strings.ToLower(code + " " + message)
	for _, p := range overflowPatterns[provider] {
		if strings.Contains(hay, p) {
			return true
		}
	}
	return false
}
