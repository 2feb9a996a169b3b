package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// Result is one ranked document returned by a search provider.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"` // Snippet/extract returned by the provider
	Score   float64 `json:"score"`   // Provider relevance score
	Rank    int     `json:"rank"`    // 0-based position in this response
}

// Provider defines the interface for web-search capabilities.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Search runs one query and returns ranked results
	Search(ctx context.Context, query string) ([]Result, error)
}

// NewProvider creates a search provider based on configuration.
func NewProvider(config model.SearchConfig) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "tavily", "":
		return NewTavilyProvider(config)
	default:
		return nil, fmt.Errorf("unknown search provider: %s (supported: tavily)", config.Provider)
	}
}
