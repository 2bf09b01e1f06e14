// Package registry holds the static description of every agent and
// specialist in the campaign pipeline: ids, display names, base prompts,
// pipeline ordering, downstream routing, knowledge-bank categories, and the
// runbook→specialist mapping for research fan-outs.
//
// All lookups are pure and fail closed: an unknown id is an explicit
// NOT_FOUND error, never a silent default. The one deliberate exception is
// the runbook mapping, which is a total function — an unmapped runbook name
// falls back to every registered specialist.
package registry

import (
	_ "embed"
	"slices"

	"github.com/fleetworks/campaignflow/types"
)

//go:embed prompts/brief.md
var briefPrompt string

//go:embed prompts/strategy.md
var strategyPrompt string

//go:embed prompts/strategy-research.md
var strategyResearchPrompt string

//go:embed prompts/copy.md
var copyPrompt string

//go:embed prompts/compliance.md
var compliancePrompt string

//go:embed prompts/nurture-flow.md
var nurtureFlowPrompt string

//go:embed prompts/specialist-electrification-powertrain.md
var electrificationPrompt string

//go:embed prompts/specialist-tco-fleet-economics.md
var tcoPrompt string

//go:embed prompts/specialist-audience-persona.md
var audiencePrompt string

//go:embed prompts/specialist-sector-intelligence.md
var sectorPrompt string

//go:embed prompts/specialist-competitor-market.md
var competitorPrompt string

// SearchPolicy governs whether a specialist consults the search gateway.
type SearchPolicy string

const (
	// SearchAlways always invokes the search gateway.
	SearchAlways SearchPolicy = "always"
	// SearchOptional invokes the search gateway only when the question text
	// trips the live-data heuristic.
	SearchOptional SearchPolicy = "optional"
	// SearchNever never invokes the search gateway.
	SearchNever SearchPolicy = "never"
)

// AgentDefinition describes one user-facing pipeline stage. Loaded once at
// startup, never mutated.
type AgentDefinition struct {
	ID         string
	Name       string
	Short      string
	KBCategory string

	// BasePrompt is the default system prompt; ResearchPrompt, when
	// non-empty, replaces it while the stage runs in research mode.
	BasePrompt     string
	ResearchPrompt string

	// Downstream lists the stage ids reachable from this stage at approval.
	Downstream []string

	// Consumes lists the upstream stages whose approved outputs this stage
	// reads during prompt composition.
	Consumes []string
}

// SpecialistDefinition describes one research fan-out specialist.
type SpecialistDefinition struct {
	ID         string
	Name       string
	Icon       string
	KBCategory string
	BasePrompt string

	// DomainPrompt frames the search gateway call for this specialist.
	DomainPrompt string

	SearchPolicy SearchPolicy
}

// Registry is the immutable agent/specialist catalogue.
type Registry struct {
	agents          map[string]*AgentDefinition
	agentOrder      []string
	specialists     map[string]*SpecialistDefinition
	specialistOrder []string
	runbooks        map[string][]string
}

// New builds the default static registry.
func New() *Registry {
	r := &Registry{
		agents:      map[string]*AgentDefinition{},
		specialists: map[string]*SpecialistDefinition{},
		runbooks: map[string][]string{
			"Market & Audience":    {"audience-persona", "competitor-market"},
			"Competitor Analysis":  {"competitor-market"},
			"Product & Technology": {"electrification-powertrain"},
			"Sector Deep Dive":     {"sector-intelligence", "audience-persona"},
		},
	}

	for _, a := range []*AgentDefinition{
		{
			ID:         "brief",
			Name:       "Briefing Agent",
			Short:      "Structures input into actionable briefs",
			KBCategory: "Approved Briefs",
			BasePrompt: briefPrompt,
			Downstream: []string{"strategy", "copy"},
		},
		{
			ID:             "strategy",
			Name:           "Strategy Agent",
			Short:          "Evidence-led strategic direction",
			KBCategory:     "Strategic Research & Insights",
			BasePrompt:     strategyPrompt,
			ResearchPrompt: strategyResearchPrompt,
			Downstream:     []string{"copy"},
			Consumes:       []string{"brief"},
		},
		{
			ID:         "copy",
			Name:       "Copy Agent",
			Short:      "Transforms strategy into on-brand copy",
			KBCategory: "Approved Copy",
			BasePrompt: copyPrompt,
			Downstream: []string{"compliance"},
			Consumes:   []string{"strategy", "brief"},
		},
		{
			ID:         "compliance",
			Name:       "Compliance Agent",
			Short:      "Reviews for brand and legal compliance",
			KBCategory: "Compliance Rulings & Precedents",
			BasePrompt: compliancePrompt,
			Consumes:   []string{"copy"},
		},
	} {
		r.agents[a.ID] = a
		r.agentOrder = append(r.agentOrder, a.ID)
	}

	for _, s := range []*SpecialistDefinition{
		{
			ID:           "electrification-powertrain",
			Name:         "Electrification & Powertrain",
			Icon:         "⚡",
			KBCategory:   "Electrification & Powertrain Research",
			BasePrompt:   electrificationPrompt,
			DomainPrompt: "You are a specialist researcher in vehicle electrification, powertrains (HEV, PHEV, BEV, Hydrogen), charging infrastructure, and fleet transition. Provide current data, statistics, and evidence from reputable sources. Focus on the UK and European market.",
			SearchPolicy: SearchOptional,
		},
		{
			ID:           "tco-fleet-economics",
			Name:         "TCO & Fleet Economics",
			Icon:         "💰",
			KBCategory:   "TCO & Fleet Economics Research",
			BasePrompt:   tcoPrompt,
			DomainPrompt: "You are a specialist researcher in Total Cost of Ownership for commercial fleets, whole-life costs, BIK rates, fuel duty, tax incentives, and fleet budgeting. Provide current UK-specific data, rates, and regulations.",
			SearchPolicy: SearchAlways,
		},
		{
			ID:           "audience-persona",
			Name:         "Audience & Persona",
			Icon:         "👥",
			KBCategory:   "Audience & Persona Research",
			BasePrompt:   audiencePrompt,
			DomainPrompt: "You are a specialist researcher in B2B fleet decision-maker behaviours, SME fleet manager personas, procurement patterns, and buying journey insights. Focus on the UK commercial vehicle market.",
			SearchPolicy: SearchOptional,
		},
		{
			ID:           "sector-intelligence",
			Name:         "Sector Intelligence",
			Icon:         "🏗️",
			KBCategory:   "Sector Intelligence Research",
			BasePrompt:   sectorPrompt,
			DomainPrompt: "You are a specialist researcher in UK industry sectors that use commercial vehicle fleets: construction, logistics, retail, professional services, public sector. Provide current sector trends, operational patterns, and fleet usage data.",
			SearchPolicy: SearchAlways,
		},
		{
			ID:           "competitor-market",
			Name:         "Competitor & Market",
			Icon:         "📊",
			KBCategory:   "Competitor & Market Research",
			BasePrompt:   competitorPrompt,
			DomainPrompt: "You are a specialist researcher in the UK commercial vehicle market: OEM positioning, market share, model launches, pricing, fleet deals, and competitive messaging. Provide current and specific data.",
			SearchPolicy: SearchAlways,
		},
	} {
		r.specialists[s.ID] = s
		r.specialistOrder = append(r.specialistOrder, s.ID)
	}

	return r
}

// NurtureFlowPrompt is the copy-stage sub-flow fragment appended when the
// CRM nurture trigger condition holds.
func NurtureFlowPrompt() string { return nurtureFlowPrompt }

// Agent returns the agent definition for id, failing closed on unknown ids.
func (r *Registry) Agent(id string) (*AgentDefinition, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "unknown agent: %s", id)
	}
	return a, nil
}

// Specialist returns the specialist definition for id, failing closed.
func (r *Registry) Specialist(id string) (*SpecialistDefinition, error) {
	s, ok := r.specialists[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "unknown specialist: %s", id)
	}
	return s, nil
}

// HasAgent reports whether id names a registered agent.
func (r *Registry) HasAgent(id string) bool {
	_, ok := r.agents[id]
	return ok
}

// PipelineOrder returns the canonical pipeline stage ids, first to last.
func (r *Registry) PipelineOrder() []string {
	return slices.Clone(r.agentOrder)
}

// SpecialistIDs returns every registered specialist id in registration
// order.
func (r *Registry) SpecialistIDs() []string {
	return slices.Clone(r.specialistOrder)
}

// DownstreamOptions returns the stage ids reachable from id at approval.
func (r *Registry) DownstreamOptions(id string) ([]string, error) {
	a, err := r.Agent(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.Downstream), nil
}

// SpecialistsForRunbook resolves a runbook name to its target specialist
// set. Total over the runbook-name domain: unmapped names (including "")
// fall back to every registered specialist, never an error.
func (r *Registry) SpecialistsForRunbook(runbook string) []string {
	if ids, ok := r.runbooks[runbook]; ok {
		return slices.Clone(ids)
	}
	return r.SpecialistIDs()
}

// ActivePipeline filters the canonical order down to the enabled stages.
// A nil set keeps every stage.
func (r *Registry) ActivePipeline(enabled map[string]bool) []string {
	if enabled == nil {
		return slices.Clone(r.agentOrder)
	}
	out := make([]string, 0, len(r.agentOrder))
	for _, id := range r.agentOrder {
		if enabled[id] {
			out = append(out, id)
		}
	}
	return out
}

// NextIn returns the stage after id in pipeline, or "" at the end.
func NextIn(pipeline []string, id string) string {
	idx := slices.Index(pipeline, id)
	if idx == -1 || idx == len(pipeline)-1 {
		return ""
	}
	return pipeline[idx+1]
}

// PrevIn returns the stage before id in pipeline, or "" at the start.
func PrevIn(pipeline []string, id string) string {
	idx := slices.Index(pipeline, id)
	if idx <= 0 {
		return ""
	}
	return pipeline[idx-1]
}
