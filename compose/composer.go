// Package compose builds the final system prompt for an agent or specialist
// invocation. Every injected piece of context is modelled as a tagged Block
// and rendered by a single deterministic renderer in a fixed order, so the
// output is byte-identical for identical inputs.
//
// Block order: orchestration framing → base prompt → sub-flow fragment →
// reference material → knowledge-bank context → upstream approved outputs →
// research digest. Empty optional blocks are omitted, never errors.
package compose

import (
	"fmt"
	"strings"

	"github.com/fleetworks/campaignflow/registry"
	"github.com/fleetworks/campaignflow/types"
)

// BlockKind tags the origin of an injected context block.
type BlockKind string

const (
	KindFraming   BlockKind = "framing"
	KindBase      BlockKind = "base"
	KindSubFlow   BlockKind = "subflow"
	KindReference BlockKind = "reference"
	KindKnowledge BlockKind = "knowledge"
	KindUpstream  BlockKind = "upstream"
	KindResearch  BlockKind = "research"
)

// Block is one injected prompt section. Labelled blocks render wrapped in
// BEGIN/END markers; unlabelled ones render verbatim.
type Block struct {
	Kind  BlockKind
	Label string
	Body  string
}

// Render joins blocks into the final prompt text. Deterministic and
// side-effect-free: same blocks, same output.
func Render(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b.Body) == "" {
			continue
		}
		if b.Label == "" {
			parts = append(parts, b.Body)
			continue
		}
		parts = append(parts, fmt.Sprintf("---BEGIN %s---\n%s\n---END %s---", b.Label, b.Body, b.Label))
	}
	return strings.Join(parts, "\n\n")
}

// State is the read-only slice of a pipeline run the composer consumes.
type State struct {
	Channel string
	Runbook string

	// Completed holds the stage ids whose outputs have been approved or
	// skipped. Approved carries the approved output text per stage; a
	// skipped stage is completed with no approved entry, and its upstream
	// block is simply omitted downstream.
	Completed map[string]bool
	Approved  map[string]string
}

// Extras carries the optional per-invocation context. Missing extras
// default to empty and their blocks are omitted.
type Extras struct {
	ReferenceContext string
	KnowledgeContext string
	ResearchDigest   string

	// ResearchMode switches the stage to its research prompt variant (when
	// one exists) and enables the research digest block. Set only for the
	// synthesis stage on the Research channel.
	ResearchMode bool

	// NurtureFlow requests the copy-stage nurture fragment; it is honoured
	// only when the channel/runbook trigger condition holds.
	NurtureFlow bool
}

// Composer assembles system prompts from registry definitions and run state.
type Composer struct {
	reg *registry.Registry
}

// New creates a Composer over the given registry.
func New(reg *registry.Registry) *Composer {
	return &Composer{reg: reg}
}

// Compose builds the system prompt for stageID. Unknown stage ids fail with
// INVALID_STAGE.
func (c *Composer) Compose(stageID string, st State, ex Extras) (string, error) {
	agent, err := c.reg.Agent(stageID)
	if err != nil {
		return "", types.Errorf(types.ErrInvalidStage, "compose: unknown stage: %s", stageID)
	}

	base := agent.BasePrompt
	roleName := agent.Name
	researchMode := ex.ResearchMode
	if researchMode && agent.ResearchPrompt != "" {
		base = agent.ResearchPrompt
		roleName = fmt.Sprintf("Research Analyst (%s — Research Mode)", agent.Name)
	}

	blocks := []Block{
		{Kind: KindFraming, Body: framing(roleName, researchMode, st.Runbook)},
		{Kind: KindBase, Body: base},
	}

	if ex.NurtureFlow && stageID == "copy" && registry.NurtureTrigger(st.Channel, st.Runbook) {
		blocks = append(blocks, Block{
			Kind:  KindSubFlow,
			Label: "NURTURE FLOW SUB-AGENT ACTIVE",
			Body:  registry.NurtureFlowPrompt(),
		})
	}

	// Reference and knowledge-bank context arrive pre-labelled from their
	// stores; include verbatim.
	blocks = append(blocks,
		Block{Kind: KindReference, Body: ex.ReferenceContext},
		Block{Kind: KindKnowledge, Body: ex.KnowledgeContext},
	)

	// Upstream approved outputs, only for the stages this agent consumes
	// and only once they are approved. Skipped stages leave no block.
	for _, upID := range agent.Consumes {
		if !st.Completed[upID] {
			continue
		}
		body, ok := st.Approved[upID]
		if !ok || body == "" {
			continue
		}
		up, err := c.reg.Agent(upID)
		if err != nil {
			continue
		}
		blocks = append(blocks, Block{
			Kind:  KindUpstream,
			Label: upstreamLabel(up, upID, st.Channel),
			Body:  body,
		})
	}

	if researchMode {
		blocks = append(blocks, Block{
			Kind:  KindResearch,
			Label: "SPECIALIST RESEARCH FINDINGS (compiled by Research Coordinator)",
			Body:  ex.ResearchDigest,
		})
	}

	return Render(blocks), nil
}

// ComposeSpecialist builds a research specialist's system prompt: identity
// framing, base prompt, optional reference/KB context, and the live search
// result with its citations when one was obtained.
func ComposeSpecialist(spec *registry.SpecialistDefinition, refContext, kbContext string, searchContent string, citations []string) string {
	blocks := []Block{
		{Kind: KindFraming, Body: fmt.Sprintf("[SPECIALIST CONTEXT]\nYou are the %s Specialist Agent.\n[END SPECIALIST CONTEXT]", spec.Name)},
		{Kind: KindBase, Body: spec.BasePrompt},
		{Kind: KindReference, Body: refContext},
		{Kind: KindKnowledge, Body: kbContext},
	}

	if searchContent != "" {
		var sb strings.Builder
		sb.WriteString(searchContent)
		if len(citations) > 0 {
			sb.WriteString("\n\nSources:")
			for i, c := range citations {
				sb.WriteString(fmt.Sprintf("\n[%d] %s", i+1, c))
			}
		}
		blocks = append(blocks, Block{
			Kind:  KindResearch,
			Label: "WEB RESEARCH (live data)",
			Body:  sb.String(),
		})
	}

	return Render(blocks)
}

func framing(roleName string, researchMode bool, runbook string) string {
	var sb strings.Builder
	sb.WriteString("[ORCHESTRATION CONTEXT]\n")
	sb.WriteString(fmt.Sprintf("You are the %s. You are operating inside a multi-agent marketing orchestration pipeline.\n", roleName))
	sb.WriteString("Your role is to produce YOUR OWN specialist output — not to route, hand off, or activate other agents.\n")
	sb.WriteString("Agent routing and handoff is handled by the orchestration layer, not by you.\n")
	sb.WriteString("Do NOT mention routing, handoff, or other agents in your output. Focus entirely on producing your deliverable.")
	if researchMode {
		sb.WriteString(fmt.Sprintf("\nYou are in RESEARCH MODE. The user has selected the Research channel with runbook: %q. Produce a comprehensive, C-suite-grade research briefing — not a strategy summary. Follow your research output standards precisely.", runbook))
	}
	sb.WriteString("\n[END ORCHESTRATION CONTEXT]")
	return sb.String()
}

func upstreamLabel(up *registry.AgentDefinition, upID, channel string) string {
	if upID == registry.SynthesisStageID && channel == registry.ChannelResearch {
		return "APPROVED RESEARCH (from Research Analyst — human-approved)"
	}
	return fmt.Sprintf("APPROVED OUTPUT (from upstream %s — human-approved)", up.Name)
}
