package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetworks/campaignflow/knowledge"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/registry"
	"github.com/fleetworks/campaignflow/types"
)

// mockProvider implements llm.Provider with a function callback.
type mockProvider struct {
	completionFn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if m.completionFn != nil {
		return m.completionFn(ctx, req)
	}
	return &llm.ChatResponse{Content: "mock response"}, nil
}

// mockSearch implements llm.SearchProvider and records which specialists
// reached it (the domain prompt identifies the caller).
type mockSearch struct {
	mu       sync.Mutex
	prompts  []string
	searchFn func(ctx context.Context, req *llm.SearchRequest) (*llm.SearchResult, error)
}

func (m *mockSearch) Name() string { return "mock-search" }

func (m *mockSearch) Search(ctx context.Context, req *llm.SearchRequest) (*llm.SearchResult, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.DomainPrompt)
	m.mu.Unlock()
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return &llm.SearchResult{Content: "live data"}, nil
}

func (m *mockSearch) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func newCoordinator(provider llm.Provider, search llm.SearchProvider) *Coordinator {
	return NewCoordinator(registry.New(), provider, search, knowledge.NewMemoryBank(), nil, Config{}, nil, zap.NewNop())
}

func TestRunResearch_EmptyQuestion(t *testing.T) {
	c := newCoordinator(&mockProvider{}, nil)
	_, err := c.RunResearch(context.Background(), Request{Question: "  "})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}

// Search policies: "always" searches regardless of keywords, "optional"
// follows the heuristic, "never" never searches.
func TestRunResearch_SearchPolicies(t *testing.T) {
	search := &mockSearch{}
	c := newCoordinator(&mockProvider{}, search)

	// Question with no live-data keywords.
	res, err := c.RunResearch(context.Background(), Request{
		Question:  "describe typical fleet manager personas",
		TargetIDs: []string{"tco-fleet-economics", "audience-persona", "electrification-powertrain"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Failures)

	// Only the "always" specialist searched.
	assert.Equal(t, 1, search.callCount())
	assert.Contains(t, search.prompts[0], "Total Cost of Ownership")

	// With trigger keywords, the two "optional" specialists join in.
	search2 := &mockSearch{}
	c = newCoordinator(&mockProvider{}, search2)
	_, err = c.RunResearch(context.Background(), Request{
		Question:  "what are the latest BIK rates and pricing trends",
		TargetIDs: []string{"tco-fleet-economics", "audience-persona", "electrification-powertrain"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, search2.callCount())
}

func TestRunResearch_NoSearchProvider(t *testing.T) {
	c := newCoordinator(&mockProvider{}, nil)
	res, err := c.RunResearch(context.Background(), Request{
		Question:  "latest pricing trends",
		TargetIDs: []string{"tco-fleet-economics"},
	})
	require.NoError(t, err)
	require.Len(t, res.Contributors, 1)
	assert.False(t, res.Contributors[0].UsedSearch)
}

// Some specialists fail and the search gateway always fails; the digest
// still carries a section per survivor and reports the failure count.
func TestRunResearch_PartialFailure(t *testing.T) {
	provider := &mockProvider{
		completionFn: func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			if strings.Contains(req.SystemPrompt, "Sector Intelligence") {
				return nil, types.NewError(types.ErrUpstreamError, "model exploded").WithGateway("mock")
			}
			return &llm.ChatResponse{Content: "findings"}, nil
		},
	}
	search := &mockSearch{
		searchFn: func(context.Context, *llm.SearchRequest) (*llm.SearchResult, error) {
			return nil, errors.New("search down")
		},
	}
	c := newCoordinator(provider, search)

	res, err := c.RunResearch(context.Background(), Request{
		Question:  "current adoption statistics",
		TargetIDs: []string{"tco-fleet-economics", "sector-intelligence", "competitor-market"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Contributors, 2)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "sector-intelligence")

	// Digest: two sections, a failure note, and no leaked error detail.
	assert.Equal(t, 2, strings.Count(res.Digest, "\n## "))
	assert.Contains(t, res.Digest, "**Note:** 1 specialist(s) encountered errors.")
	assert.NotContains(t, res.Digest, "model exploded")

	// Search failed everywhere: the run degraded, nothing used search.
	for _, ctr := range res.Contributors {
		assert.False(t, ctr.UsedSearch)
	}
}

// Digest sections follow the caller-supplied target order even when
// completion order is inverted by latency.
func TestRunResearch_OrderPreservation(t *testing.T) {
	targets := []string{"electrification-powertrain", "tco-fleet-economics", "audience-persona", "sector-intelligence", "competitor-market"}

	provider := &mockProvider{
		completionFn: func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			// Later targets answer sooner.
			for i, id := range targets {
				if strings.Contains(req.SystemPrompt, domainFor(id)) {
					time.Sleep(time.Duration(len(targets)-i) * 20 * time.Millisecond)
					return &llm.ChatResponse{Content: fmt.Sprintf("SECTION-%d", i)}, nil
				}
			}
			return &llm.ChatResponse{Content: "unmatched"}, nil
		},
	}
	c := newCoordinator(provider, nil)

	res, err := c.RunResearch(context.Background(), Request{Question: "q", TargetIDs: targets})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, len(targets))

	last := -1
	for i := range targets {
		pos := strings.Index(res.Digest, fmt.Sprintf("SECTION-%d", i))
		require.GreaterOrEqual(t, pos, 0)
		assert.Greater(t, pos, last)
		last = pos
	}
	for i, o := range res.Outcomes {
		assert.Equal(t, targets[i], o.SpecialistID)
	}
}

func TestRunResearch_RunbookDefaults(t *testing.T) {
	c := newCoordinator(&mockProvider{}, nil)

	res, err := c.RunResearch(context.Background(), Request{Question: "q", Runbook: "Competitor Analysis"})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "competitor-market", res.Outcomes[0].SpecialistID)

	// Unmapped runbook fans out to all registered specialists.
	res, err = c.RunResearch(context.Background(), Request{Question: "q", Runbook: "Completely Novel Topic"})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 5)
}

func TestRunResearch_UnknownSpecialistIsIsolatedFailure(t *testing.T) {
	c := newCoordinator(&mockProvider{}, nil)
	res, err := c.RunResearch(context.Background(), Request{
		Question:  "q",
		TargetIDs: []string{"audience-persona", "made-up"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Contributors, 1)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "made-up")
}

func TestRunResearch_SourcesSection(t *testing.T) {
	search := &mockSearch{
		searchFn: func(_ context.Context, req *llm.SearchRequest) (*llm.SearchResult, error) {
			if strings.Contains(req.DomainPrompt, "Total Cost of Ownership") {
				return &llm.SearchResult{Content: "rates", Citations: []string{"https://example.org/hmrc"}}, nil
			}
			return &llm.SearchResult{Content: "content only"}, nil
		},
	}
	c := newCoordinator(&mockProvider{}, search)

	res, err := c.RunResearch(context.Background(), Request{
		Question:  "q",
		TargetIDs: []string{"tco-fleet-economics", "sector-intelligence"},
	})
	require.NoError(t, err)

	// Only citation-bearing specialists appear under Sources.
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "tco-fleet-economics", res.Sources[0].SpecialistID)
	assert.Contains(t, res.Digest, "### 🌐 Web Research Sources")
	assert.Contains(t, res.Digest, "1. https://example.org/hmrc")
	assert.Contains(t, res.Digest, "TCO & Fleet Economics 🌐")
}

func TestRunResearch_EnrichedQuestion(t *testing.T) {
	var got string
	provider := &mockProvider{
		completionFn: func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			got = req.Messages[0].Content
			return &llm.ChatResponse{Content: "ok"}, nil
		},
	}
	c := newCoordinator(provider, nil)

	_, err := c.RunResearch(context.Background(), Request{
		Question:  "adoption barriers",
		Context:   "electrification push",
		Runbook:   "Market & Audience",
		Persona:   "SME",
		Sector:    "Construction",
		TargetIDs: []string{"audience-persona"},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "Research Question: adoption barriers")
	assert.Contains(t, got, "Audience: SME — Construction")
	assert.Contains(t, got, "Runbook: Market & Audience")
}

// domainFor gives a distinctive substring of each specialist's prompt so
// the mock can identify its caller.
func domainFor(id string) string {
	switch id {
	case "electrification-powertrain":
		return "Electrification & Powertrain"
	case "tco-fleet-economics":
		return "TCO & Fleet Economics"
	case "audience-persona":
		return "Audience & Persona"
	case "sector-intelligence":
		return "Sector Intelligence"
	case "competitor-market":
		return "Competitor & Market"
	}
	return id
}
