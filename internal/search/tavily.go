package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/veracity/internal/model"
)

const maxSnippetLen = 500

// TavilyProvider implements the Provider interface for the Tavily search API
type TavilyProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     model.SearchConfig
}

// Tavily API structures
type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

type tavilyError struct {
	Detail string `json:"detail"`
}

// NewTavilyProvider creates a new Tavily provider
func NewTavilyProvider(config model.SearchConfig) (*TavilyProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Tavily API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TavilyProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *TavilyProvider) Name() string {
	return "tavily"
}

// Search runs one query against the Tavily search API
func (p *TavilyProvider) Search(ctx context.Context, query string) ([]Result, error) {
	maxResults := p.config.MaxResultsPerQuery
	if maxResults <= 0 {
		maxResults = 5
	}

	apiReq := tavilyRequest{
		APIKey:      p.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyErr("tavily", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr tavilyError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Detail != "" {
			return nil, statusErr("tavily", resp.StatusCode, fmt.Errorf("%s", apiErr.Detail))
		}
		return nil, statusErr("tavily", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var apiResp tavilyResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(apiResp.Results))
	for i, r := range apiResp.Results {
		content := truncateRunes(r.Content, maxSnippetLen)
		results = append(results, Result{
			URL:     r.URL,
			Title:   r.Title,
			Content: content,
			Score:   r.Score,
			Rank:    i,
		})
	}

	return results, nil
}

// truncateRunes cuts s to at most max bytes without splitting a rune,
// so snippets stay valid UTF-8 for prompts and JSON.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
