// Package config loads campaignflow configuration from YAML files with
// environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CAMPAIGNFLOW").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full campaignflow configuration.
type Config struct {
	// Anthropic is the chat completion gateway.
	Anthropic AnthropicConfig `yaml:"anthropic" env:"ANTHROPIC"`

	// Perplexity is the web search gateway used by research specialists.
	Perplexity PerplexityConfig `yaml:"perplexity" env:"PERPLEXITY"`

	// Redis backs the shared knowledge bank. Optional; an empty addr
	// falls back to the in-memory bank.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Pipeline tunes stage generation and knowledge bank usage.
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Research tunes the specialist fan-out.
	Research ResearchConfig `yaml:"research" env:"RESEARCH"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// AnthropicConfig configures the completion gateway.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" env:"API_KEY"`
	BaseURL   string `yaml:"base_url" env:"BASE_URL"`
	Model     string `yaml:"model" env:"MODEL"`
	MaxTokens int    `yaml:"max_tokens" env:"MAX_TOKENS"`
	// Timeout bounds each completion call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RequestsPerSecond throttles outbound calls; zero disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// PerplexityConfig configures the search gateway.
type PerplexityConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig configures the knowledge bank store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
	// MaxPerCategory caps stored entries per knowledge category.
	MaxPerCategory int `yaml:"max_per_category" env:"MAX_PER_CATEGORY"`
}

// PipelineConfig tunes stage generation.
type PipelineConfig struct {
	// MaxTokens caps each stage generation; zero uses the gateway default.
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// LLMTimeout bounds each stage generation call.
	LLMTimeout time.Duration `yaml:"llm_timeout" env:"LLM_TIMEOUT"`
	// KBTopN is how many knowledge bank entries feed each stage prompt.
	KBTopN int `yaml:"kb_top_n" env:"KB_TOP_N"`
	// DemoMode starts runs in guided mode with pre-scripted outputs.
	DemoMode bool `yaml:"demo_mode" env:"DEMO_MODE"`
}

// ResearchConfig tunes the specialist fan-out.
type ResearchConfig struct {
	// SpecialistMaxTokens caps each specialist generation.
	SpecialistMaxTokens int `yaml:"specialist_max_tokens" env:"SPECIALIST_MAX_TOKENS"`
	// SearchTimeout bounds each live search call.
	SearchTimeout time.Duration `yaml:"search_timeout" env:"SEARCH_TIMEOUT"`
	// LLMTimeout bounds each specialist generation call.
	LLMTimeout time.Duration `yaml:"llm_timeout" env:"LLM_TIMEOUT"`
	// KBTopN is how many knowledge bank entries feed each specialist.
	KBTopN int `yaml:"kb_top_n" env:"KB_TOP_N"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists zap sinks.
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// Loader builds a Config from defaults, an optional YAML file, and
// environment overrides.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CAMPAIGNFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults and env apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then YAML, then
// environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices only.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics. For main() wiring only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string

	if c.Pipeline.KBTopN < 0 {
		errs = append(errs, "pipeline.kb_top_n must not be negative")
	}
	if c.Pipeline.LLMTimeout < 0 {
		errs = append(errs, "pipeline.llm_timeout must not be negative")
	}
	if c.Anthropic.RequestsPerSecond < 0 {
		errs = append(errs, "anthropic.requests_per_second must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
