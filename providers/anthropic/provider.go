// Package anthropic implements the llm.Provider contract against the
// Anthropic Messages API.
//
// API particulars handled here:
//  1. Authentication via x-api-key header rather than Bearer token
//  2. The system prompt travels as a top-level field, not a message
//  3. Content arrives as an array of typed blocks that must be flattened
package anthropic

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
	"golang.org/x/time/rate"

	"github.com/fleetworks/campaignflow/internal/metrics"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/types"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 8000
	apiVersion       = "2023-06-01"
)

// Config carries the gateway settings.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	// RequestsPerSecond bounds client-side request rate. Zero disables the
	// limiter. The research fan-out can burst one request per specialist,
	// so the limiter burst matches a small registry.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Provider is the Anthropic chat gateway client.
type Provider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates an Anthropic provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 10)
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

func (p *Provider) Name() string { return "anthropic" }

// WithMetrics attaches the gateway instruments. A nil collector records
// nothing.
func (p *Provider) WithMetrics(m *metrics.Collector) *Provider {
	p.metrics = m
	return p
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Model   string             `json:"model"`
	Usage   *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicErrorResp struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Completion sends the composed system prompt plus conversation turns and
// returns the flattened assistant reply.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "anthropic api key not configured").WithGateway(p.Name())
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, llm.MapTransportError(err, p.Name())
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := anthropicRequest{
		Model:     chooseModel(req, p.cfg.Model),
		Messages:  convertMessages(req.Messages),
		System:    req.SystemPrompt,
		MaxTokens: chooseMaxTokens(req, p.cfg.MaxTokens),
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	start := time.Now()
	outcome := "error"
	defer func() { p.metrics.RecordGatewayRequest(p.Name(), outcome, time.Since(start)) }()

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		p.logger.Warn("anthropic request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, llm.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed anthropic response").
			WithCause(err).
			WithRetryable(true).
			WithGateway(p.Name())
	}

	outcome = "success"
	return flatten(ar), nil
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// convertMessages drops system turns; the system prompt travels top-level.
func convertMessages(msgs []types.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(msgs))
	for _, m := range types.ConversationTurns(msgs) {
		out = append(out, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func flatten(ar anthropicResponse) *llm.ChatResponse {
	var sb strings.Builder
	for _, c := range ar.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	resp := &llm.ChatResponse{Content: sb.String(), Model: ar.Model}
	if ar.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     ar.Usage.InputTokens,
			CompletionTokens: ar.Usage.OutputTokens,
		}
	}
	return resp
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var er anthropicErrorResp
	if err := json.Unmarshal(data, &er); err == nil && er.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", er.Error.Message, er.Error.Type)
	}
	return string(data)
}

func chooseModel(req *llm.ChatRequest, configModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return configModel
}

func chooseMaxTokens(req *llm.ChatRequest, configMax int) int {
	if req != nil && req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return configMax
}
