package handlers

// Stable error codes. Clients branch on these, never on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeQuotaExceeded = "quota_exceeded"
	ErrCodePlanConflict  = "plan_conflict"
	ErrCodeAnswerFailed  = "answer_failed"
	ErrCodeBadSignature  = "bad_signature"
)
