package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for run-level terminations.
var (
	ErrRunTimeout   = errors.New("run timeout exceeded")
	ErrRunCancelled = errors.New("run cancelled by caller")
)

// FailureKind classifies upstream capability failures.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureProvider    FailureKind = "provider_error"
	FailureRateLimited FailureKind = "rate_limited"
)

// ProviderError wraps a failure from an external capability (language
// model or search provider). Status carries the HTTP status code when
// the failure came from a response rather than the transport.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying: timeouts,
// rate limits, transport errors and 5xx responses. Other 4xx responses
// are permanent.
func (e *ProviderError) Transient() bool {
	if e.Kind == FailureTimeout || e.Kind == FailureRateLimited {
		return true
	}
	return e.Status == 0 || e.Status >= 500
}

// StructuredOutputError is returned when the language model failed to
// produce schema-conforming output within the attempt budget. It carries
// the last raw response for diagnostics.
type StructuredOutputError struct {
	Attempts    int
	RawResponse string
	Violations  []string
	Err         error
}

func (e *StructuredOutputError) Error() string {
	msg := fmt.Sprintf("structured output invalid after %d attempts", e.Attempts)
	if len(e.Violations) > 0 {
		msg += ": " + strings.Join(e.Violations, "; ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// RetrievalError is scoped to a single SubClaim: search retries were
// exhausted for it. Sibling SubClaims are unaffected.
type RetrievalError struct {
	SubClaimIndex int
	Query         string
	Err           error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed for sub-claim %d (query %q): %v", e.SubClaimIndex, e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RateLimitError is the caller-facing denial from the admission limiter.
type RateLimitError struct {
	Identity   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Identity, e.RetryAfter.Round(time.Second))
}

// ClaimValidationError rejects a claim before the pipeline starts.
type ClaimValidationError struct {
	Reason string
}

func (e *ClaimValidationError) Error() string { return "invalid claim: " + e.Reason }
