package config

import "time"

// Config is the top-level drover configuration.
type Config struct {
	Models ModelsConfig `json:"models"`
	Agent  AgentConfig  `json:"agent"`
	Cache  CacheConfig  `json:"cache"`
	Gates  []GateConfig `json:"gates"`
	Run    RunConfig    `json:"run"`
}

// ModelsConfig names the model used by each specialized agent.
type ModelsConfig struct {
	Architect  string `json:"architect"`
	Researcher string `json:"researcher"`
	Coder      string `json:"coder"`
	QA         string `json:"qa"`
}

// AgentConfig controls the LLM transport.
type AgentConfig struct {
	APIKey      string  `json:"api_key"`
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     string  `json:"timeout"`
	MaxAttempts int     `json:"max_attempts"`
	BaseDelay   string  `json:"base_delay"`
}

// ParseTimeout returns the transport timeout as a duration.
func (a AgentConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ParseBaseDelay returns the retry base delay as a duration.
func (a AgentConfig) ParseBaseDelay() time.Duration {
	d, err := time.ParseDuration(a.BaseDelay)
	if err != nil {
		return time.Second
	}
	return d
}

// CacheConfig controls the blueprint cache.
type CacheConfig struct {
	TTL string `json:"ttl"`
}

// ParseTTL returns the cache TTL as a duration.
func (c CacheConfig) ParseTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GateConfig defines one progressive validation gate. An empty command makes
// the gate manual: it passes unless require_manual is set.
type GateConfig struct {
	Level         int    `json:"level"`
	Name          string `json:"name"`
	Command       string `json:"command"`
	Timeout       string `json:"timeout"`
	RequireManual bool   `json:"require_manual,omitempty"`
}

// ParseTimeout returns the per-command gate timeout as a duration.
func (g GateConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// RunConfig holds orchestrator limits.
type RunConfig struct {
	Parallelism         int    `json:"parallelism"`
	FailFast            bool   `json:"fail_fast"`
	FixAttempts         int    `json:"fix_attempts"`
	GracePeriod         string `json:"grace_period"`
	CheckpointRetention int    `json:"checkpoint_retention"`
	QAReview            bool   `json:"qa_review"`
}

// ParseGracePeriod returns the SIGTERM-to-SIGKILL grace period as a duration.
func (r RunConfig) ParseGracePeriod() time.Duration {
	d, err := time.ParseDuration(r.GracePeriod)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Models: ModelsConfig{
			Architect:  "claude-opus-4-5",
			Researcher: "claude-sonnet-4-5",
			Coder:      "claude-sonnet-4-5",
			QA:         "claude-sonnet-4-5",
		},
		Agent: AgentConfig{
			MaxTokens:   8192,
			Temperature: 0.1,
			Timeout:     "5m",
			MaxAttempts: 3,
			BaseDelay:   "1s",
		},
		Cache: CacheConfig{
			TTL: "24h",
		},
		Gates: []GateConfig{
			{Level: 1, Name: "syntax", Command: "make lint", Timeout: "5m"},
			{Level: 2, Name: "unit", Command: "make test-unit", Timeout: "5m"},
			{Level: 3, Name: "integration", Command: "make test-integration", Timeout: "5m"},
			{Level: 4, Name: "manual", Command: "", Timeout: "5m"},
		},
		Run: RunConfig{
			Parallelism:         1,
			FailFast:            false,
			FixAttempts:         3,
			GracePeriod:         "5s",
			CheckpointRetention: 10,
			QAReview:            true,
		},
	}
}
