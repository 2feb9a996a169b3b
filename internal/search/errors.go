package search

import (
	"context"
	"errors"
	"net"

	"github.com/ppiankov/veracity/internal/model"
)

// classifyErr maps a transport-level error to a typed capability failure.
func classifyErr(provider string, err error) error {
	kind := model.FailureProvider
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = model.FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = model.FailureTimeout
	}
	return &model.ProviderError{Provider: provider, Kind: kind, Err: err}
}

// statusErr maps an HTTP status code to a typed capability failure.
// 5xx responses count as transient provider failures for retry purposes.
func statusErr(provider string, status int, err error) error {
	kind := model.FailureProvider
	switch {
	case status == 429:
		kind = model.FailureRateLimited
	case status == 408 || status == 504:
		kind = model.FailureTimeout
	}
	return &model.ProviderError{Provider: provider, Kind: kind, Status: status, Err: err}
}

// Transient reports whether an error is worth retrying: timeouts, rate
// limits, transport failures and 5xx responses.
func Transient(err error) bool {
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}
