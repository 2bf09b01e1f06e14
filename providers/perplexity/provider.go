// Package perplexity implements the llm.SearchProvider contract against the
// Perplexity chat completions API. Responses carry an optional citations
// array alongside the answer text.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetworks/campaignflow/internal/metrics"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/types"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar-pro"
)

// Config carries the gateway settings.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Provider is the Perplexity search gateway client.
type Provider struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a Perplexity provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "perplexity" }

// WithMetrics attaches the gateway instruments. A nil collector records
// nothing.
func (p *Provider) WithMetrics(m *metrics.Collector) *Provider {
	p.metrics = m
	return p
}

type pplxMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type pplxRequest struct {
	Model    string        `json:"model"`
	Messages []pplxMessage `json:"messages"`
}

type pplxResponse struct {
	Choices []struct {
		Message pplxMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations,omitempty"`
}

// Search frames the query with the specialist's domain prompt and returns
// content plus citations. Absent citations is a valid content-only answer.
func (p *Provider) Search(ctx context.Context, req *llm.SearchRequest) (*llm.SearchResult, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "perplexity api key not configured").WithGateway(p.Name())
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := pplxRequest{
		Model: p.cfg.Model,
		Messages: []pplxMessage{
			{Role: "system", Content: req.DomainPrompt + "\n\nProvide specific, sourced data points. Include numbers, dates, and named sources. Structure your response with clear headings."},
			{Role: "user", Content: req.Query},
		},
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	start := time.Now()
	outcome := "error"
	defer func() { p.metrics.RecordGatewayRequest(p.Name(), outcome, time.Since(start)) }()

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		p.logger.Warn("perplexity request failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return nil, llm.MapHTTPError(resp.StatusCode, string(data), p.Name())
	}

	var pr pplxResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed perplexity response").
			WithCause(err).
			WithRetryable(true).
			WithGateway(p.Name())
	}

	outcome = "success"
	result := &llm.SearchResult{Citations: pr.Citations}
	if len(pr.Choices) > 0 {
		result.Content = pr.Choices[0].Message.Content
	}
	return result, nil
}
