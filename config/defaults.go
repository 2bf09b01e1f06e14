package config

import "time"

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Anthropic:  DefaultAnthropicConfig(),
		Perplexity: DefaultPerplexityConfig(),
		Redis:      DefaultRedisConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Research:   DefaultResearchConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultAnthropicConfig returns completion gateway defaults. The API key
// always comes from config or env.
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{
		BaseURL:   "https://api.anthropic.com/v1",
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 8000,
		Timeout:   120 * time.Second,
	}
}

// DefaultPerplexityConfig returns search gateway defaults.
func DefaultPerplexityConfig() PerplexityConfig {
	return PerplexityConfig{
		BaseURL: "https://api.perplexity.ai",
		Model:   "sonar-pro",
		Timeout: 60 * time.Second,
	}
}

// DefaultRedisConfig returns knowledge bank store defaults. The empty addr
// selects the in-memory bank.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:       10,
		MaxPerCategory: 200,
	}
}

// DefaultPipelineConfig returns stage generation defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		LLMTimeout: 180 * time.Second,
		KBTopN:     3,
	}
}

// DefaultResearchConfig returns fan-out defaults.
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		SpecialistMaxTokens: 6000,
		SearchTimeout:       60 * time.Second,
		LLMTimeout:          120 * time.Second,
		KBTopN:              3,
	}
}

// DefaultLogConfig returns logger defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}
