package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetworks/campaignflow/types"
)

func TestAgent_FailsClosed(t *testing.T) {
	r := New()

	a, err := r.Agent("brief")
	require.NoError(t, err)
	assert.Equal(t, "Briefing Agent", a.Name)
	assert.NotEmpty(t, a.BasePrompt)

	_, err = r.Agent("launch")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestPipelineOrder(t *testing.T) {
	r := New()
	assert.Equal(t, []string{"brief", "strategy", "copy", "compliance"}, r.PipelineOrder())
}

func TestDownstreamOptions(t *testing.T) {
	r := New()

	opts, err := r.DownstreamOptions("brief")
	require.NoError(t, err)
	assert.Equal(t, []string{"strategy", "copy"}, opts)

	opts, err = r.DownstreamOptions("compliance")
	require.NoError(t, err)
	assert.Empty(t, opts)

	_, err = r.DownstreamOptions("nope")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestSpecialist_PromptsAndPolicies(t *testing.T) {
	r := New()

	s, err := r.Specialist("tco-fleet-economics")
	require.NoError(t, err)
	assert.Equal(t, SearchAlways, s.SearchPolicy)
	assert.NotEmpty(t, s.DomainPrompt)
	assert.NotEmpty(t, s.BasePrompt)

	s, err = r.Specialist("audience-persona")
	require.NoError(t, err)
	assert.Equal(t, SearchOptional, s.SearchPolicy)

	_, err = r.Specialist("unknown")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestSpecialistsForRunbook_TotalFunction(t *testing.T) {
	r := New()

	assert.Equal(t, []string{"competitor-market"}, r.SpecialistsForRunbook("Competitor Analysis"))
	assert.Equal(t, []string{"sector-intelligence", "audience-persona"}, r.SpecialistsForRunbook("Sector Deep Dive"))

	// Unmapped names fall back to all specialists, never error.
	all := r.SpecialistIDs()
	assert.Equal(t, all, r.SpecialistsForRunbook("No Such Runbook"))
	assert.Equal(t, all, r.SpecialistsForRunbook(""))
	assert.Len(t, all, 5)
}

func TestActivePipeline_NextPrev(t *testing.T) {
	r := New()
	pipeline := r.ActivePipeline(map[string]bool{"brief": true, "copy": true, "compliance": true})
	assert.Equal(t, []string{"brief", "copy", "compliance"}, pipeline)

	assert.Equal(t, "copy", NextIn(pipeline, "brief"))
	assert.Equal(t, "", NextIn(pipeline, "compliance"))
	assert.Equal(t, "", NextIn(pipeline, "strategy"))

	assert.Equal(t, "brief", PrevIn(pipeline, "copy"))
	assert.Equal(t, "", PrevIn(pipeline, "brief"))
}

func TestActivePipeline_NilKeepsEveryStage(t *testing.T) {
	r := New()
	assert.Equal(t, []string{"brief", "strategy", "copy", "compliance"}, r.ActivePipeline(nil))
	assert.Empty(t, r.ActivePipeline(map[string]bool{}))
}

func TestResearchPromptVariant(t *testing.T) {
	r := New()
	a, err := r.Agent(SynthesisStageID)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ResearchPrompt)

	b, err := r.Agent("brief")
	require.NoError(t, err)
	assert.Empty(t, b.ResearchPrompt)
}

func TestNurtureTrigger(t *testing.T) {
	assert.True(t, NurtureTrigger(ChannelCRM, "Nurture Journeys"))
	assert.False(t, NurtureTrigger(ChannelBrand, "Nurture Journeys"))
	assert.False(t, NurtureTrigger(ChannelCRM, "Website copy"))
}
