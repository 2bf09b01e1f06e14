package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetworks/campaignflow/internal/metrics"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/types"
)

func TestSearch_Success(t *testing.T) {
	var gotReq pplxRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "BEV registrations rose 21% YoY."}},
			},
			"citations": []string{"https://example.org/smmt", "https://example.org/dft"},
		})
	}))
	defer srv.Close()

	p := New(Config{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
	res, err := p.Search(context.Background(), &llm.SearchRequest{
		DomainPrompt: "You are a specialist researcher in fleet economics.",
		Query:        "Current UK BEV adoption?",
	})
	require.NoError(t, err)

	assert.Equal(t, "BEV registrations rose 21% YoY.", res.Content)
	assert.Equal(t, []string{"https://example.org/smmt", "https://example.org/dft"}, res.Citations)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "fleet economics")
	assert.Equal(t, "sonar-pro", gotReq.Model)
}

func TestSearch_NoCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "content only"}},
			},
		})
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	res, err := p.Search(context.Background(), &llm.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "content only", res.Content)
	assert.Empty(t, res.Citations)
}

func TestSearch_GatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	_, err := p.Search(context.Background(), &llm.SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
}

func TestSearch_MissingAPIKey(t *testing.T) {
	p := New(Config{}, zap.NewNop())
	_, err := p.Search(context.Background(), &llm.SearchRequest{Query: "q"})
	assert.True(t, types.IsCode(err, types.ErrUnauthorized))
}

func TestSearch_RecordsGatewayMetrics(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	p := New(Config{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop()).
		WithMetrics(metrics.NewCollector(reg))

	_, err := p.Search(context.Background(), &llm.SearchRequest{Query: "q"})
	require.NoError(t, err)

	fail = true
	_, err = p.Search(context.Background(), &llm.SearchRequest{Query: "q"})
	require.Error(t, err)

	expected := `
# HELP campaignflow_gateway_requests_total Gateway calls by gateway name and outcome.
# TYPE campaignflow_gateway_requests_total counter
campaignflow_gateway_requests_total{gateway="perplexity",outcome="error"} 1
campaignflow_gateway_requests_total{gateway="perplexity",outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"campaignflow_gateway_requests_total"))
}
