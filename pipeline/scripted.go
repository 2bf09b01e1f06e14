package pipeline

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ScriptedSource supplies pre-scripted stage outputs for guided demo runs.
// A miss means the stage falls through to live generation.
type ScriptedSource interface {
	// Scripted returns the canned output for a channel/runbook/stage triple.
	Scripted(channel, runbook, stageID string) (string, bool)
	// DemoPrompt returns the canonical campaign prompt for a channel/runbook.
	DemoPrompt(channel, runbook string) (string, bool)
}

//go:embed demodata.yaml
var demoDataYAML []byte

type demoRunbook struct {
	DemoPrompt string            `yaml:"demo_prompt"`
	Outputs    map[string]string `yaml:"outputs"`
}

type demoChannel struct {
	Runbooks map[string]demoRunbook `yaml:"runbooks"`
}

// EmbeddedDemoData is a ScriptedSource backed by the curated demo outputs
// shipped with the binary. Outputs exist for the brief, copy and compliance
// stages of the non-research channels; the strategy stage always generates
// live so demos still show real synthesis.
type EmbeddedDemoData struct {
	channels map[string]demoChannel
}

// LoadDemoData parses the embedded demo outputs.
func LoadDemoData() (*EmbeddedDemoData, error) {
	var doc struct {
		Channels map[string]demoChannel `yaml:"channels"`
	}
	if err := yaml.Unmarshal(demoDataYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded demo data: %w", err)
	}
	return &EmbeddedDemoData{channels: doc.Channels}, nil
}

func (d *EmbeddedDemoData) Scripted(channel, runbook, stageID string) (string, bool) {
	ch, ok := d.channels[channel]
	if !ok {
		return "", false
	}
	rb, ok := ch.Runbooks[runbook]
	if !ok {
		return "", false
	}
	out, ok := rb.Outputs[stageID]
	if !ok || out == "" {
		return "", false
	}
	return out, true
}

func (d *EmbeddedDemoData) DemoPrompt(channel, runbook string) (string, bool) {
	ch, ok := d.channels[channel]
	if !ok {
		return "", false
	}
	rb, ok := ch.Runbooks[runbook]
	if !ok || rb.DemoPrompt == "" {
		return "", false
	}
	return rb.DemoPrompt, true
}
