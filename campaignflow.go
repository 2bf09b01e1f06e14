// Package campaignflow wires the campaign orchestration engine from
// configuration: registry, prompt composer, LLM gateways, knowledge bank,
// reference library, research coordinator, and metrics.
//
// Usage:
//
//	cfg, err := config.NewLoader().WithConfigPath("config.yaml").Load()
//	eng, err := campaignflow.New(cfg, logger)
//	m := eng.NewRun()
//	err = m.Start(ctx, pipeline.StartConfig{...})
package campaignflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fleetworks/campaignflow/compose"
	"github.com/fleetworks/campaignflow/config"
	"github.com/fleetworks/campaignflow/internal/metrics"
	"github.com/fleetworks/campaignflow/knowledge"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/pipeline"
	"github.com/fleetworks/campaignflow/providers/anthropic"
	"github.com/fleetworks/campaignflow/providers/perplexity"
	"github.com/fleetworks/campaignflow/reference"
	"github.com/fleetworks/campaignflow/registry"
	"github.com/fleetworks/campaignflow/research"
)

// Engine is one fully wired deployment. Create runs with NewRun; the engine
// itself is safe to share.
type Engine struct {
	Registry   *registry.Registry
	Composer   *compose.Composer
	Provider   llm.Provider
	Search     llm.SearchProvider
	Knowledge  knowledge.Bank
	References reference.Store
	Research   *research.Coordinator
	Metrics    *metrics.Collector
	Scripted   pipeline.ScriptedSource
	Logger     *zap.Logger

	cfg *config.Config
}

// Option adjusts engine wiring beyond what config expresses.
type Option func(*Engine)

// WithProvider swaps the completion gateway (tests, alternative models).
func WithProvider(p llm.Provider) Option {
	return func(e *Engine) { e.Provider = p }
}

// WithSearch swaps the search gateway.
func WithSearch(s llm.SearchProvider) Option {
	return func(e *Engine) { e.Search = s }
}

// WithKnowledgeBank swaps the knowledge bank.
func WithKnowledgeBank(b knowledge.Bank) Option {
	return func(e *Engine) { e.Knowledge = b }
}

// WithReferenceDir loads the curated reference library from a directory.
func WithReferenceDir(root string) Option {
	return func(e *Engine) { e.References = reference.LoadDir(root, e.Logger) }
}

// WithMetricsRegisterer registers collectors somewhere other than the
// default prometheus registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.Metrics = metrics.NewCollector(reg) }
}

// New wires an engine from config. A nil config uses defaults; a nil logger
// is silent.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New()
	e := &Engine{
		Registry: reg,
		Composer: compose.New(reg),
		Logger:   logger,
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.Metrics == nil {
		e.Metrics = metrics.NewCollector(prometheus.DefaultRegisterer)
	}
	if e.Provider == nil {
		e.Provider = anthropic.New(anthropic.Config{
			APIKey:            cfg.Anthropic.APIKey,
			BaseURL:           cfg.Anthropic.BaseURL,
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			Timeout:           cfg.Anthropic.Timeout,
			RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		}, logger).WithMetrics(e.Metrics)
	}
	if e.Search == nil && cfg.Perplexity.APIKey != "" {
		e.Search = perplexity.New(perplexity.Config{
			APIKey:  cfg.Perplexity.APIKey,
			BaseURL: cfg.Perplexity.BaseURL,
			Model:   cfg.Perplexity.Model,
			Timeout: cfg.Perplexity.Timeout,
		}, logger).WithMetrics(e.Metrics)
	}

	if e.Knowledge == nil {
		if cfg.Redis.Addr != "" {
			bank, err := knowledge.NewRedisBank(knowledge.RedisConfig{
				Addr:           cfg.Redis.Addr,
				Password:       cfg.Redis.Password,
				DB:             cfg.Redis.DB,
				MaxPerCategory: cfg.Redis.MaxPerCategory,
			}, logger)
			if err != nil {
				return nil, err
			}
			e.Knowledge = bank
		} else {
			e.Knowledge = knowledge.NewMemoryBank()
		}
	}

	if e.Scripted == nil {
		demo, err := pipeline.LoadDemoData()
		if err != nil {
			return nil, err
		}
		e.Scripted = demo
	}

	e.Research = research.NewCoordinator(reg, e.Provider, e.Search, e.Knowledge, e.References, research.Config{
		SpecialistMaxTokens: cfg.Research.SpecialistMaxTokens,
		SearchTimeout:       cfg.Research.SearchTimeout,
		LLMTimeout:          cfg.Research.LLMTimeout,
		KBTopN:              cfg.Research.KBTopN,
	}, e.Metrics, logger)

	return e, nil
}

// NewRun creates a fresh pipeline machine over this engine's wiring. One
// machine drives exactly one run.
func (e *Engine) NewRun() *pipeline.Machine {
	return pipeline.NewMachine(pipeline.Deps{
		Registry:   e.Registry,
		Composer:   e.Composer,
		Provider:   e.Provider,
		Research:   e.Research,
		Knowledge:  e.Knowledge,
		References: e.References,
		Scripted:   e.Scripted,
		Metrics:    e.Metrics,
		Logger:     e.Logger,
	}, pipeline.Config{
		MaxTokens:  e.cfg.Pipeline.MaxTokens,
		LLMTimeout: e.cfg.Pipeline.LLMTimeout,
		KBTopN:     e.cfg.Pipeline.KBTopN,
	})
}
