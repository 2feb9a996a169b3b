package model

import "time"

// Config is the full runtime configuration. Every policy parameter the
// pipeline depends on (thresholds, weights, retry budgets, timeouts) is
// tunable here rather than hard-coded.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" mapstructure:"retrieve"`
	Evaluate  EvaluateConfig  `yaml:"evaluate" mapstructure:"evaluate"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
}

// LLMConfig configures the language-model capability.
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per LLM call
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"` // Structured output repair budget
}

// SearchConfig configures the web-search capability.
type SearchConfig struct {
	Provider           string        `yaml:"provider" mapstructure:"provider"` // tavily
	APIKey             string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL            string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per search call
	MaxResultsPerQuery int           `yaml:"max_results_per_query" mapstructure:"max_results_per_query"`
	Retries            int           `yaml:"retries" mapstructure:"retries"`
	BackoffBase        time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
}

// RetrieveConfig bounds evidence collection per SubClaim.
type RetrieveConfig struct {
	MaxEvidencePerSubClaim int  `yaml:"max_evidence_per_sub_claim" mapstructure:"max_evidence_per_sub_claim"`
	FetchPages             bool `yaml:"fetch_pages" mapstructure:"fetch_pages"` // Enrich snippets with robots-aware page text
}

// EvaluateConfig holds the deterministic aggregation thresholds that map
// the weighted stance score to a verdict category.
type EvaluateConfig struct {
	TrueThreshold  float64 `yaml:"true_threshold" mapstructure:"true_threshold"`   // score >= t -> true
	FalseThreshold float64 `yaml:"false_threshold" mapstructure:"false_threshold"` // score <= t -> false
	NeutralBand    float64 `yaml:"neutral_band" mapstructure:"neutral_band"`       // |score| < band with evidence -> weak signal

	// ForceFalseConfidence is the synthesis rule: any false SubVerdict
	// at or above this confidence forces the overall verdict to false.
	ForceFalseConfidence float64 `yaml:"force_false_confidence" mapstructure:"force_false_confidence"`
}

// ReviewConfig configures the optional human-in-the-loop stage.
type ReviewConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	HumanWeight float64       `yaml:"human_weight" mapstructure:"human_weight"` // Weight of human confidence in the merge
	WaitTimeout time.Duration `yaml:"wait_timeout" mapstructure:"wait_timeout"` // Max time to wait for review input
}

// HistoryConfig configures the historical claim store.
type HistoryConfig struct {
	Path          string  `yaml:"path" mapstructure:"path"`
	SimilarityCut float64 `yaml:"similarity_cut" mapstructure:"similarity_cut"` // BM25 rank cutoff (more negative = stricter)
	MaxResults    int     `yaml:"max_results" mapstructure:"max_results"`
	ShortCircuit  bool    `yaml:"short_circuit" mapstructure:"short_circuit"` // Serve cached verdicts for similar claims
}

// RateLimitConfig bounds claim submissions per identity.
type RateLimitConfig struct {
	ChecksPerHour float64 `yaml:"checks_per_hour" mapstructure:"checks_per_hour"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	MinClaimLen   int     `yaml:"min_claim_len" mapstructure:"min_claim_len"`
	MaxClaimLen   int     `yaml:"max_claim_len" mapstructure:"max_claim_len"`
}

// PipelineConfig bounds the orchestrator.
type PipelineConfig struct {
	Workers    int           `yaml:"workers" mapstructure:"workers"`         // Per-SubClaim fan-out cap
	RunTimeout time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"` // Whole-run budget
	EventBuf   int           `yaml:"event_buf" mapstructure:"event_buf"`     // Progress channel buffer
}

// CacheConfig configures the search-response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir,omitempty" mapstructure:"dir"` // Empty disables the disk layer
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// HTTPConfig configures outbound HTTP (page fetch, robots).
type HTTPConfig struct {
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultConfig returns sensible defaults for all tunables.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Timeout:     30 * time.Second,
			MaxTokens:   2048,
			MaxAttempts: 3,
		},
		Search: SearchConfig{
			Provider:           "tavily",
			Timeout:            30 * time.Second,
			MaxResultsPerQuery: 5,
			Retries:            3,
			BackoffBase:        time.Second,
		},
		Retrieve: RetrieveConfig{
			MaxEvidencePerSubClaim: 8,
			FetchPages:             false,
		},
		Evaluate: EvaluateConfig{
			TrueThreshold:        0.5,
			FalseThreshold:       -0.5,
			NeutralBand:          0.15,
			ForceFalseConfidence: 0.6,
		},
		Review: ReviewConfig{
			Enabled:     false,
			HumanWeight: 0.7,
			WaitTimeout: 2 * time.Minute,
		},
		History: HistoryConfig{
			Path:          "veracity.db",
			SimilarityCut: -1.5,
			MaxResults:    5,
			ShortCircuit:  true,
		},
		RateLimit: RateLimitConfig{
			ChecksPerHour: 30,
			Burst:         5,
			MinClaimLen:   10,
			MaxClaimLen:   500,
		},
		Pipeline: PipelineConfig{
			Workers:    4,
			RunTimeout: 3 * time.Minute,
			EventBuf:   32,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     6 * time.Hour,
		},
		HTTP: HTTPConfig{
			UserAgent:    "Veracity/0.1 (+https://github.com/ppiankov/veracity)",
			Timeout:      15 * time.Second,
			MaxBodyBytes: 2_000_000,
		},
	}
}
