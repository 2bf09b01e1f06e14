// Package llm defines the gateway contracts the orchestration core calls
// through: a chat completion gateway (the per-stage and per-specialist model
// calls) and a web search gateway (live data enrichment for specialists).
// Concrete HTTP clients live under providers/.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fleetworks/campaignflow/types"
)

// ChatRequest is a single completion call. The system prompt is carried
// separately from the conversation turns.
type ChatRequest struct {
	Model        string          `json:"model"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Messages     []types.Message `json:"messages"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
}

// ChatUsage reports token accounting when the gateway provides it.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// ChatResponse is the flattened assistant reply.
type ChatResponse struct {
	Content string    `json:"content"`
	Model   string    `json:"model,omitempty"`
	Usage   ChatUsage `json:"usage,omitempty"`
}

// Provider is the uniform chat gateway surface. Implementations map their
// transport failures onto *types.Error so callers get one error taxonomy.
type Provider interface {
	// Completion sends a synchronous chat request and returns the full reply.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the gateway's unique identifier.
	Name() string
}

// SearchRequest frames a live-data question for a domain specialist.
type SearchRequest struct {
	DomainPrompt string        `json:"domain_prompt"`
	Query        string        `json:"query"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// SearchResult carries the answer text plus opaque citation identifiers
// (typically URLs). An empty citation list is a valid content-only answer.
type SearchResult struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
}

// SearchProvider is the uniform search gateway surface. It may be entirely
// absent (nil) — callers treat live search as an enhancement, never a
// dependency.
type SearchProvider interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Name() string
}

// MapHTTPError maps a gateway HTTP status onto the shared error taxonomy,
// tagging retryability the way the upstream semantics dictate.
func MapHTTPError(status int, msg, gateway string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return &types.Error{Code: types.ErrUnauthorized, Message: msg, HTTPStatus: status, Gateway: gateway}
	case http.StatusForbidden:
		return &types.Error{Code: types.ErrForbidden, Message: msg, HTTPStatus: status, Gateway: gateway}
	case http.StatusTooManyRequests:
		return &types.Error{Code: types.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Gateway: gateway}
	case http.StatusBadRequest:
		if strings.Contains(msg, "credit") || strings.Contains(msg, "quota") {
			return &types.Error{Code: types.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Gateway: gateway}
		}
		return &types.Error{Code: types.ErrInvalidRequest, Message: msg, HTTPStatus: status, Gateway: gateway}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &types.Error{Code: types.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Gateway: gateway}
	case 529: // Anthropic overloaded
		return &types.Error{Code: types.ErrModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Gateway: gateway}
	default:
		return &types.Error{Code: types.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Gateway: gateway}
	}
}

// MapTransportError wraps a transport-level failure (DNS, timeout, broken
// connection) into the shared taxonomy.
func MapTransportError(err error, gateway string) *types.Error {
	return types.NewError(types.ErrGatewayUnavailable, "gateway unreachable").
		WithCause(err).
		WithRetryable(true).
		WithGateway(gateway)
}
