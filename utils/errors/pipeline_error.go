// Package errors implements the tagged error taxonomy used across the
// pipeline. Every stage classifies failures into retryable and permanent
// kinds produced at the source of the error; the queue consumer uses the
// classification to decide whether to acknowledge a message.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed enumeration of pipeline error categories.
type Kind string

const (
	// KindValidation marks malformed input. Permanent.
	KindValidation Kind = "VALIDATION"
	// KindConfiguration marks a missing binding or secret. Permanent and
	// usually fatal to the deployment.
	KindConfiguration Kind = "CONFIGURATION"
	// KindAPI marks upstream API failures. Retryability depends on the
	// HTTP status: client errors are permanent, server errors retryable.
	KindAPI Kind = "API"
	// KindRateLimit marks a 429 from an upstream. Always retryable and may
	// carry a retry-after hint.
	KindRateLimit Kind = "RATE_LIMIT"
	// KindTimeout marks a deadline or network timeout. Retryable.
	KindTimeout Kind = "TIMEOUT"
	// KindDatabase marks a generic storage failure. Retryable.
	KindDatabase Kind = "DATABASE"
	// KindQueue marks a stream publish or delivery failure. Retryable.
	KindQueue Kind = "QUEUE"
	// KindDuplicate marks a uniqueness-constraint violation. Permanent and
	// benign: the row already exists, so the work is already done.
	KindDuplicate Kind = "DUPLICATE"
	// KindNotFound marks a missing entity. Permanent.
	KindNotFound Kind = "NOT_FOUND"
	// KindFeed marks a feed fetch or parse failure. Retryable.
	KindFeed Kind = "FEED"
	// KindSummarization wraps any failure during summary generation. Its
	// retryability is delegated to the wrapped cause.
	KindSummarization Kind = "SUMMARIZATION"
)

// PipelineError is the structured error carried between pipeline stages.
type PipelineError struct {
	Kind       Kind
	Op         string
	Message    string
	Cause      error
	StatusCode int
	RetryAfter time.Duration
	Context    map[string]any
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Op)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a new delivery attempt may succeed.
func (e *PipelineError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindDatabase, KindQueue, KindFeed:
		return true
	case KindAPI:
		// No status recorded means a transport-level failure.
		return e.StatusCode == 0 || e.StatusCode >= 500
	case KindSummarization:
		if e.Cause != nil {
			return IsRetryable(e.Cause)
		}
		return false
	default:
		return false
	}
}

// WithContext attaches identifying fields for structured logging.
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a permanent validation error.
func NewValidationError(op, message string) *PipelineError {
	return &PipelineError{Kind: KindValidation, Op: op, Message: message}
}

// NewConfigurationError creates a permanent configuration error.
func NewConfigurationError(op, message string) *PipelineError {
	return &PipelineError{Kind: KindConfiguration, Op: op, Message: message}
}

// NewAPIError creates an upstream API error classified by HTTP status.
func NewAPIError(op string, status int, message string, cause error) *PipelineError {
	return &PipelineError{Kind: KindAPI, Op: op, StatusCode: status, Message: message, Cause: cause}
}

// NewRateLimitError creates a retryable rate-limit error with an optional
// retry-after hint.
func NewRateLimitError(op string, retryAfter time.Duration, cause error) *PipelineError {
	return &PipelineError{Kind: KindRateLimit, Op: op, StatusCode: 429, RetryAfter: retryAfter, Cause: cause}
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(op string, cause error) *PipelineError {
	return &PipelineError{Kind: KindTimeout, Op: op, Cause: cause}
}

// NewDatabaseError creates a retryable storage error.
func NewDatabaseError(op string, cause error) *PipelineError {
	return &PipelineError{Kind: KindDatabase, Op: op, Cause: cause}
}

// NewQueueError creates a retryable queue transport error.
func NewQueueError(op string, cause error) *PipelineError {
	return &PipelineError{Kind: KindQueue, Op: op, Cause: cause}
}

// NewDuplicateError creates a benign duplicate-key error.
func NewDuplicateError(op, message string) *PipelineError {
	return &PipelineError{Kind: KindDuplicate, Op: op, Message: message}
}

// NewNotFoundError creates a permanent not-found error.
func NewNotFoundError(op, message string) *PipelineError {
	return &PipelineError{Kind: KindNotFound, Op: op, Message: message}
}

// NewFeedError creates a retryable feed fetch/parse error.
func NewFeedError(op string, cause error) *PipelineError {
	return &PipelineError{Kind: KindFeed, Op: op, Cause: cause}
}

// NewSummarizationError wraps a failure during summary generation, retaining
// the original error for diagnostics and retry classification.
func NewSummarizationError(op string, cause error) *PipelineError {
	return &PipelineError{Kind: KindSummarization, Op: op, Cause: cause}
}

// IsRetryable walks the error chain for a PipelineError and returns its
// classification. Unclassified errors fall back to text matching as a last
// resort; the tagged kind produced at the error source is always preferred.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}

	return classifyText(err)
}

// IsDuplicate reports whether the error chain contains a duplicate-key
// condition, which consumers treat as success-equivalent.
func IsDuplicate(err error) bool {
	var pe *PipelineError
	for errors.As(err, &pe) {
		if pe.Kind == KindDuplicate {
			return true
		}
		if pe.Cause == nil {
			break
		}
		err = pe.Cause
	}
	return false
}

// IsNotFound reports whether the error chain contains a not-found condition.
func IsNotFound(err error) bool {
	var pe *PipelineError
	for errors.As(err, &pe) {
		if pe.Kind == KindNotFound {
			return true
		}
		if pe.Cause == nil {
			break
		}
		err = pe.Cause
	}
	return false
}

// classifyText is the fallback classification over error text for errors
// that escaped the tagged taxonomy.
func classifyText(err error) bool {
	msg := strings.ToLower(err.Error())

	transient := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"broken pipe", "network",
	}
	for _, keyword := range transient {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}
