package llm

import (
	"context"
	"errors"
	"net"

	"github.com/ppiankov/veracity/internal/model"
)

// Provider defines the interface for language-model capabilities. The
// pipeline only ever asks for text from a prompt; schema enforcement
// happens one layer up, in the structured package.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate produces a text completion for the given request
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest is the input for one generation call.
type GenerateRequest struct {
	// System is the role instruction for the call
	System string

	// Prompt is the user-facing task, including any schema instructions
	Prompt string

	// Model overrides the configured model when non-empty
	Model string

	// MaxTokens limits the response length (0 = provider default)
	MaxTokens int

	// Temperature controls sampling; structured calls want it low
	Temperature float32
}

// GenerateResponse is the raw output of one generation call.
type GenerateResponse struct {
	// Text is the raw completion text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption for cost accounting
	TokensUsed int
}

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
