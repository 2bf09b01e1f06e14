package campaignflow

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/pipeline"
	"github.com/fleetworks/campaignflow/registry"
)

type stubProvider struct{}

func (stubProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "stub output"}, nil
}

func (stubProvider) Name() string { return "stub" }

func TestNew_DefaultWiring(t *testing.T) {
	eng, err := New(nil, zap.NewNop(),
		WithProvider(stubProvider{}),
		WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	assert.NotNil(t, eng.Registry)
	assert.NotNil(t, eng.Composer)
	assert.NotNil(t, eng.Knowledge, "empty redis addr falls back to the in-memory bank")
	assert.NotNil(t, eng.Research)
	assert.NotNil(t, eng.Scripted)
	assert.Nil(t, eng.Search, "search gateway is absent without an API key")
}

func TestEngine_GuidedRunEndToEnd(t *testing.T) {
	eng, err := New(nil, zap.NewNop(),
		WithProvider(stubProvider{}),
		WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	m := eng.NewRun()
	ctx := context.Background()

	prompt, ok := eng.Scripted.DemoPrompt(registry.ChannelCRM, "Nurture Journeys")
	require.True(t, ok)

	require.NoError(t, m.Start(ctx, pipeline.StartConfig{
		Channel:  registry.ChannelCRM,
		Runbook:  "Nurture Journeys",
		Prompt:   prompt,
		Mode:     pipeline.ModeMulti,
		DemoMode: true,
	}))

	for m.Run().State == pipeline.StateRunning {
		run := m.Run()
		targets := m.AvailableTargets(run.CurrentStage)
		target := ""
		if len(targets) > 0 {
			target = targets[0]
		}
		require.NoError(t, m.Approve(ctx, pipeline.ApproveRequest{Stage: run.CurrentStage, Target: target}))
	}

	run := m.Run()
	assert.Equal(t, pipeline.StateCompleted, run.State)
	assert.Len(t, run.Approved, 4, "every stage approved")
	require.NotEmpty(t, m.Audit().ByKind(pipeline.EventFinalize))
}
