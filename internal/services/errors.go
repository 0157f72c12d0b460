// Package services holds the request-time chat pipeline and the supporting
// chatbot, knowledge and transcript operations. Errors here are mapped to HTTP
// results by the handlers.
package services

import (
	"errors"
	"fmt"
)

// ErrChatbotNotFound indicates the chatbot does not exist or was deleted.
var ErrChatbotNotFound = errors.New("chatbot not found")

// GenericFailureMessage is the only provider-failure text clients ever see.
const GenericFailureMessage = "Sorry, I couldn't generate a response right now."

// ValidationError is bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// ExternalServiceError wraps a provider or knowledge-store failure. Error
// keeps the cause for logs; Message is what clients get.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Message returns the client-safe text.
func (e *ExternalServiceError) Message() string { return GenericFailureMessage }
