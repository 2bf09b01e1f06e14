package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetworks/campaignflow/compose"
	"github.com/fleetworks/campaignflow/internal/metrics"
	"github.com/fleetworks/campaignflow/knowledge"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/reference"
	"github.com/fleetworks/campaignflow/registry"
	"github.com/fleetworks/campaignflow/research"
	"github.com/fleetworks/campaignflow/types"
)

// Config tunes machine behaviour.
type Config struct {
	// MaxTokens caps stage generations; zero uses the provider default.
	MaxTokens int
	// LLMTimeout bounds each stage generation call.
	LLMTimeout time.Duration
	// KBTopN is how many knowledge bank entries feed each stage prompt.
	KBTopN int
}

// Deps wires the machine's collaborators. Registry, Composer and Provider
// are required; everything else degrades gracefully when nil.
type Deps struct {
	Registry   *registry.Registry
	Composer   *compose.Composer
	Provider   llm.Provider
	Research   *research.Coordinator
	Knowledge  knowledge.Bank
	References reference.Store
	Scripted   ScriptedSource
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Machine drives one campaign run through its stage pipeline. All state
// transitions happen under a single mutex; generation calls run outside the
// lock so a human action during a slow upstream reply is never blocked, and
// a late reply lands in its stage transcript without disturbing whatever
// transition happened meanwhile.
type Machine struct {
	mu  sync.Mutex
	run Run

	reg         *registry.Registry
	composer    *compose.Composer
	provider    llm.Provider
	coordinator *research.Coordinator
	bank        knowledge.Bank
	refs        reference.Store
	scripted    ScriptedSource
	metrics     *metrics.Collector
	audit       *AuditTrail
	logger      *zap.Logger
	cfg         Config
}

// NewMachine creates a machine for a single run. Reuse requires a new
// machine; runs are not resettable.
func NewMachine(deps Deps, cfg Config) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KBTopN <= 0 {
		cfg.KBTopN = knowledge.DefaultTopN
	}
	return &Machine{
		run:         Run{State: StateNotStarted},
		reg:         deps.Registry,
		composer:    deps.Composer,
		provider:    deps.Provider,
		coordinator: deps.Research,
		bank:        deps.Knowledge,
		refs:        deps.References,
		scripted:    deps.Scripted,
		metrics:     deps.Metrics,
		audit:       NewAuditTrail(logger),
		logger:      logger,
		cfg:         cfg,
	}
}

// Audit exposes the run's audit trail.
func (m *Machine) Audit() *AuditTrail { return m.audit }

// Run returns a deep-copy snapshot of the current run state.
func (m *Machine) Run() Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.snapshot()
}

// StartConfig describes a new run.
type StartConfig struct {
	Channel string
	Runbook string
	Persona string
	Sector  string
	Prompt  string

	Mode     Mode
	DemoMode bool

	// EnabledStages filters the registry pipeline in multi mode; nil keeps
	// every stage. Ignored in single mode.
	EnabledStages map[string]bool
	// SingleStage names the one agent to run in single mode.
	SingleStage string
}

// Start begins the run and invokes its first stage.
func (m *Machine) Start(ctx context.Context, sc StartConfig) error {
	m.mu.Lock()
	if m.run.State != StateNotStarted {
		m.mu.Unlock()
		return types.NewError(types.ErrPrecondition, "run already started")
	}
	if strings.TrimSpace(sc.Prompt) == "" {
		m.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "campaign prompt is required")
	}

	var stages []string
	switch sc.Mode {
	case ModeSingle:
		if !m.reg.HasAgent(sc.SingleStage) {
			m.mu.Unlock()
			return types.Errorf(types.ErrNotFound, "unknown agent %q", sc.SingleStage)
		}
		stages = []string{sc.SingleStage}
	case ModeMulti:
		stages = m.reg.ActivePipeline(sc.EnabledStages)
		if len(stages) == 0 {
			m.mu.Unlock()
			return types.NewError(types.ErrPrecondition, "no stages enabled in pipeline")
		}
	default:
		m.mu.Unlock()
		return types.Errorf(types.ErrInvalidRequest, "unknown mode %q", sc.Mode)
	}

	first := stages[0]
	m.run = Run{
		ID:           uuid.NewString(),
		Channel:      sc.Channel,
		Runbook:      sc.Runbook,
		Persona:      sc.Persona,
		Sector:       sc.Sector,
		Prompt:       sc.Prompt,
		Mode:         sc.Mode,
		DemoMode:     sc.DemoMode,
		NurtureFlow:  registry.NurtureTrigger(sc.Channel, sc.Runbook),
		ActiveStages: stages,
		CurrentStage: first,
		Completed:    map[string]bool{},
		Approved:     map[string]string{},
		Transcripts:  map[string][]types.Message{},
		State:        StateRunning,
	}

	if sc.Mode == ModeSingle {
		m.audit.Append(EventStart, first, "Workflow started in single-agent mode", map[string]any{
			"mode": string(ModeSingle), "channel": sc.Channel, "runbook": sc.Runbook, "demo_mode": sc.DemoMode,
		})
	} else {
		m.audit.Append(EventStart, first, fmt.Sprintf("Workflow started — pipeline: %s", m.pipelineLabel(stages)), map[string]any{
			"mode": string(ModeMulti), "channel": sc.Channel, "runbook": sc.Runbook,
			"persona": sc.Persona, "sector": sc.Sector, "demo_mode": sc.DemoMode, "pipeline": stages,
		})
	}
	m.recordPipelineEvent(string(EventStart))

	seed := sc.Prompt
	if sc.Mode == ModeMulti && (sc.Persona != "" || sc.Sector != "") {
		seed += fmt.Sprintf("\n\nAudience context — Persona: %s, Sector: %s", sc.Persona, sc.Sector)
	}
	m.run.Transcripts[first] = []types.Message{types.NewUserMessage(seed)}

	inv, err := m.prepareInvocation(first)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.execute(ctx, inv)
}

// Invoke re-runs generation for the current stage without adding a human
// turn. Used to retry after a gateway error.
func (m *Machine) Invoke(ctx context.Context, stageID string) error {
	m.mu.Lock()
	if err := m.requireCurrent(stageID); err != nil {
		m.mu.Unlock()
		return err
	}
	inv, err := m.prepareInvocation(stageID)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.execute(ctx, inv)
}

// Refine appends a human steering message to the current stage and
// regenerates. The stage must not be completed yet.
func (m *Machine) Refine(ctx context.Context, stageID, message string) error {
	m.mu.Lock()
	if err := m.requireCurrent(stageID); err != nil {
		m.mu.Unlock()
		return err
	}
	if strings.TrimSpace(message) == "" {
		m.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "refinement message is empty")
	}
	agent, err := m.reg.Agent(stageID)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.audit.Append(EventRefine, stageID, fmt.Sprintf("Human refinement request sent to %s", agent.Name), nil)
	m.recordPipelineEvent(string(EventRefine))
	m.run.Transcripts[stageID] = append(m.run.Transcripts[stageID], types.NewUserMessage(message))

	inv, err := m.prepareInvocation(stageID)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.execute(ctx, inv)
}

// ApproveRequest parameterises an approval gate decision.
type ApproveRequest struct {
	Stage string
	// Target is the stage to hand off to; empty finalizes the run. Targets
	// are forced empty when no downstream option remains.
	Target string

	// SaveToKB persists the approved output to the knowledge bank under the
	// stage's category.
	SaveToKB bool
	Tag      string
}

// Approve records the human approval of the current stage's latest output,
// then either hands off to the chosen downstream stage or finalizes the run.
func (m *Machine) Approve(ctx context.Context, req ApproveRequest) error {
	m.mu.Lock()
	if err := m.requireCurrent(req.Stage); err != nil {
		m.mu.Unlock()
		return err
	}
	agent, err := m.reg.Agent(req.Stage)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	content, ok := m.run.lastAssistantTurn(req.Stage)
	if !ok {
		m.mu.Unlock()
		return types.NewError(types.ErrPrecondition, "stage has no output to approve")
	}

	targets := m.availableTargets(req.Stage)
	if len(targets) == 0 {
		req.Target = ""
	}
	if req.Target != "" {
		valid := false
		for _, t := range targets {
			if t == req.Target {
				valid = true
				break
			}
		}
		if !valid {
			m.mu.Unlock()
			return types.Errorf(types.ErrPrecondition, "stage %q is not a valid handoff target from %q", req.Target, req.Stage)
		}
	}

	conf, hasConf := ExtractConfidence(content)
	meta := map[string]any{"saved_to_kb": req.SaveToKB}
	if hasConf {
		meta["confidence"] = conf
	}
	m.audit.Append(EventApprove, req.Stage, fmt.Sprintf("%s output approved by human reviewer", agent.Name), meta)
	m.recordPipelineEvent(string(EventApprove))

	m.run.Approved[req.Stage] = content
	m.run.Completed[req.Stage] = true

	kbNote := ""
	if req.SaveToKB {
		kbNote = " (saved to KB)"
	}
	m.run.Transcripts[req.Stage] = append(m.run.Transcripts[req.Stage],
		types.NewSystemMessage(fmt.Sprintf("Output approved ✓%s", kbNote)))

	if req.Target == "" {
		m.audit.Append(EventFinalize, req.Stage, "Workflow finalised — all outputs approved", nil)
		m.recordPipelineEvent(string(EventFinalize))
		m.run.CurrentStage = ""
		m.run.State = StateCompleted
		m.mu.Unlock()
		m.saveToKnowledgeBank(ctx, req, agent, content)
		return nil
	}

	target, err := m.reg.Agent(req.Target)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.audit.Append(EventHandoff, req.Stage, fmt.Sprintf("Handoff: %s → %s", agent.Name, target.Name), map[string]any{
		"target_stage": req.Target,
	})
	m.recordPipelineEvent(string(EventHandoff))

	handoff := fmt.Sprintf("You are the %s. The human reviewer has approved the output from the %s (provided in your system context). Please now produce your %s deliverable based on that approved upstream output. Do not attempt to route or hand off to other agents — just produce your specialist output.",
		target.Name, agent.Name, target.Name)
	m.run.Transcripts[req.Target] = append(m.run.Transcripts[req.Target],
		types.NewSystemMessage(fmt.Sprintf("Received approved output from %s", agent.Name)),
		types.NewUserMessage(handoff))
	m.run.CurrentStage = req.Target

	inv, err := m.prepareInvocation(req.Target)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.saveToKnowledgeBank(ctx, req, agent, content)
	return m.execute(ctx, inv)
}

// Skip marks the current stage completed without approval and moves to the
// next stage in pipeline order. Multi mode only; the last stage cannot be
// skipped.
func (m *Machine) Skip(ctx context.Context, stageID string) error {
	m.mu.Lock()
	if err := m.requireCurrent(stageID); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.run.Mode != ModeMulti {
		m.mu.Unlock()
		return types.NewError(types.ErrPrecondition, "skip is only available in multi-agent mode")
	}
	next := m.run.nextActive(stageID)
	if next == "" {
		m.mu.Unlock()
		return types.NewError(types.ErrPrecondition, "no next stage to skip to")
	}
	agent, err := m.reg.Agent(stageID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	nextAgent, err := m.reg.Agent(next)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.audit.Append(EventSkip, stageID, fmt.Sprintf("%s skipped by human reviewer", agent.Name), map[string]any{
		"next_stage": next,
	})
	m.recordPipelineEvent(string(EventSkip))

	m.run.Transcripts[stageID] = append(m.run.Transcripts[stageID], types.NewSystemMessage("Agent skipped →"))
	m.run.Completed[stageID] = true

	handoff := fmt.Sprintf("You are the %s. The previous agent (%s) was skipped by the reviewer. Please produce your %s deliverable. Use whatever approved upstream context is available in your system prompt. Do not attempt to route or hand off to other agents.",
		nextAgent.Name, agent.Name, nextAgent.Name)
	m.run.Transcripts[next] = append(m.run.Transcripts[next],
		types.NewSystemMessage(fmt.Sprintf("%s was skipped", agent.Name)),
		types.NewUserMessage(handoff))
	m.run.CurrentStage = next

	inv, err := m.prepareInvocation(next)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.execute(ctx, inv)
}

// GoBack reopens the previous pipeline stage: its completion and approval
// are erased, and it becomes current again with its transcript intact. No
// generation happens; the reviewer refines or re-approves from there.
func (m *Machine) GoBack(stageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireCurrent(stageID); err != nil {
		return err
	}
	if m.run.Mode != ModeMulti {
		return types.NewError(types.ErrPrecondition, "go back is only available in multi-agent mode")
	}
	prev := m.run.prevActive(stageID)
	if prev == "" {
		return types.NewError(types.ErrPrecondition, "no previous stage to return to")
	}

	delete(m.run.Completed, prev)
	delete(m.run.Approved, prev)
	m.run.CurrentStage = prev
	m.audit.Append(EventBack, stageID, fmt.Sprintf("Returned to previous stage %s", prev), map[string]any{
		"previous_stage": prev,
	})
	m.recordPipelineEvent(string(EventBack))
	return nil
}

// AvailableTargets lists the downstream stages the current stage may hand
// off to right now. Empty means approval will finalize.
func (m *Machine) AvailableTargets(stageID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableTargets(stageID)
}

func (m *Machine) availableTargets(stageID string) []string {
	if m.run.Mode != ModeMulti {
		return nil
	}
	ds, err := m.reg.DownstreamOptions(stageID)
	if err != nil {
		return nil
	}
	var out []string
	for _, id := range ds {
		if m.run.isActive(id) && !m.run.Completed[id] {
			out = append(out, id)
		}
	}
	return out
}

// requireCurrent checks the common operation preconditions under the lock.
func (m *Machine) requireCurrent(stageID string) error {
	if m.run.State != StateRunning {
		return types.Errorf(types.ErrPrecondition, "run is %s", m.run.State)
	}
	if stageID != m.run.CurrentStage {
		return types.Errorf(types.ErrPrecondition, "stage %q is not current (current: %q)", stageID, m.run.CurrentStage)
	}
	if m.run.Completed[stageID] {
		return types.Errorf(types.ErrPrecondition, "stage %q is already completed", stageID)
	}
	return nil
}

func (m *Machine) pipelineLabel(stages []string) string {
	names := make([]string, 0, len(stages))
	for _, id := range stages {
		if a, err := m.reg.Agent(id); err == nil {
			names = append(names, strings.ReplaceAll(a.Name, " Agent", ""))
		} else {
			names = append(names, id)
		}
	}
	return strings.Join(names, " → ")
}

func (m *Machine) recordPipelineEvent(event string) {
	if m.metrics != nil {
		m.metrics.RecordPipelineEvent(event)
	}
}

// invocation is the immutable work order built under the lock. execute only
// reads it, so the machine stays free for human actions while generation is
// in flight.
type invocation struct {
	stageID string
	agent   *registry.AgentDefinition

	state      compose.State
	transcript []types.Message

	prompt  string
	persona string
	sector  string

	nurture      bool
	researchMode bool
	runResearch  bool

	scriptedOut string
	scriptedOK  bool
}

// prepareInvocation snapshots everything a generation call needs. Caller
// holds the lock.
func (m *Machine) prepareInvocation(stageID string) (*invocation, error) {
	agent, err := m.reg.Agent(stageID)
	if err != nil {
		return nil, err
	}

	researchMode := m.run.Channel == registry.ChannelResearch
	firstCall := !m.run.hasAssistantTurn(stageID)

	inv := &invocation{
		stageID: stageID,
		agent:   agent,
		state: compose.State{
			Channel:   m.run.Channel,
			Runbook:   m.run.Runbook,
			Completed: make(map[string]bool, len(m.run.Completed)),
			Approved:  make(map[string]string, len(m.run.Approved)),
		},
		transcript:   types.ConversationTurns(m.run.Transcripts[stageID]),
		prompt:       m.run.Prompt,
		persona:      m.run.Persona,
		sector:       m.run.Sector,
		nurture:      m.run.NurtureFlow,
		researchMode: researchMode,
		runResearch:  researchMode && stageID == registry.SynthesisStageID && firstCall && m.coordinator != nil,
	}
	for k, v := range m.run.Completed {
		inv.state.Completed[k] = v
	}
	for k, v := range m.run.Approved {
		inv.state.Approved[k] = v
	}

	if m.run.DemoMode && !researchMode && firstCall && m.scripted != nil {
		inv.scriptedOut, inv.scriptedOK = m.scripted.Scripted(m.run.Channel, m.run.Runbook, stageID)
	}
	return inv, nil
}

// execute performs the generation for a prepared invocation. It runs with
// the lock released; every mutation it makes re-acquires the lock and only
// ever appends to the stage transcript and the audit trail.
func (m *Machine) execute(ctx context.Context, inv *invocation) error {
	if inv.scriptedOK {
		m.applyOutput(inv.stageID, inv.agent, inv.scriptedOut, "scripted", "pre-scripted")
		return nil
	}

	digest := ""
	if inv.runResearch {
		digest = m.runResearchFanout(ctx, inv)
	}

	kbCtx := ""
	if m.bank != nil {
		var err error
		kbCtx, err = knowledge.Context(ctx, m.bank, inv.agent.KBCategory, m.cfg.KBTopN)
		if err != nil {
			m.logger.Warn("knowledge bank unavailable, composing without it",
				zap.String("stage", inv.stageID), zap.Error(err))
			kbCtx = ""
		}
	}
	refCtx := reference.Context(m.refs, inv.stageID, inv.state.Channel, inv.prompt)

	systemPrompt, err := m.composer.Compose(inv.stageID, inv.state, compose.Extras{
		ReferenceContext: refCtx,
		KnowledgeContext: kbCtx,
		ResearchDigest:   digest,
		ResearchMode:     inv.researchMode,
		NurtureFlow:      inv.nurture,
	})
	if err != nil {
		return err
	}

	resp, err := m.provider.Completion(ctx, &llm.ChatRequest{
		MaxTokens:    m.cfg.MaxTokens,
		SystemPrompt: systemPrompt,
		Messages:     inv.transcript,
		Timeout:      m.cfg.LLMTimeout,
	})
	if err != nil {
		errMsg := fmt.Sprintf("API error: %s", err.Error())
		m.mu.Lock()
		m.audit.Append(EventError, inv.stageID, fmt.Sprintf("Error: %s", errMsg), nil)
		m.run.Transcripts[inv.stageID] = append(m.run.Transcripts[inv.stageID],
			types.NewAssistantMessage(fmt.Sprintf("⚠️ %s", errMsg)))
		m.mu.Unlock()
		m.recordPipelineEvent(string(EventError))
		return err
	}

	m.applyOutput(inv.stageID, inv.agent, resp.Content, "live", "live API")
	return nil
}

// applyOutput appends an assistant turn and its audit record. It never
// touches CurrentStage or Completed: a reply that arrives after the human
// has already moved on lands in its stage transcript and nothing else.
func (m *Machine) applyOutput(stageID string, agent *registry.AgentDefinition, content, source, sourceLabel string) {
	conf, hasConf := ExtractConfidence(content)
	meta := map[string]any{"source": source, "output_length": len(content)}
	if hasConf {
		meta["confidence"] = conf
	}

	m.mu.Lock()
	m.run.Transcripts[stageID] = append(m.run.Transcripts[stageID], types.NewAssistantMessage(content))
	m.audit.Append(EventOutput, stageID, fmt.Sprintf("%s produced output (%s)", agent.Name, sourceLabel), meta)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordStageInvocation(stageID, source)
	}
}

// runResearchFanout fans out to the specialists before the synthesis stage
// generates. Failures degrade to an empty digest; the stage still runs.
func (m *Machine) runResearchFanout(ctx context.Context, inv *invocation) string {
	m.mu.Lock()
	m.run.Transcripts[inv.stageID] = append(m.run.Transcripts[inv.stageID],
		types.NewSystemMessage("Activating specialist research agents..."))
	m.mu.Unlock()

	res, err := m.coordinator.RunResearch(ctx, research.Request{
		Question: inv.prompt,
		Runbook:  inv.state.Runbook,
		Persona:  inv.persona,
		Sector:   inv.sector,
	})
	if err != nil {
		m.mu.Lock()
		m.audit.Append(EventError, inv.stageID, fmt.Sprintf("Research orchestration error: %s", err.Error()), nil)
		m.run.Transcripts[inv.stageID] = append(m.run.Transcripts[inv.stageID],
			types.NewSystemMessage("Research encountered an error — proceeding without specialist input"))
		m.mu.Unlock()
		return ""
	}

	names := make([]string, 0, len(res.Contributors))
	for _, c := range res.Contributors {
		names = append(names, c.Name)
	}
	m.mu.Lock()
	m.audit.Append(EventResearch, inv.stageID,
		fmt.Sprintf("Research completed — %d specialist(s) contributed", len(res.Contributors)),
		map[string]any{"contributors": names, "failures": res.Failures})
	m.run.Transcripts[inv.stageID] = append(m.run.Transcripts[inv.stageID],
		types.NewSystemMessage(fmt.Sprintf("Research complete — contributors: %s", strings.Join(names, ", "))))
	m.mu.Unlock()
	m.recordPipelineEvent(string(EventResearch))
	return res.Digest
}

// saveToKnowledgeBank persists an approved output when requested. Failures
// are logged and audited but never fail the approval.
func (m *Machine) saveToKnowledgeBank(ctx context.Context, req ApproveRequest, agent *registry.AgentDefinition, content string) {
	if !req.SaveToKB || m.bank == nil {
		return
	}
	tag := req.Tag
	if tag == "" {
		tag = fmt.Sprintf("%s output", agent.Name)
	}
	m.mu.Lock()
	md := map[string]string{
		"agent":   agent.ID,
		"channel": m.run.Channel,
		"runbook": m.run.Runbook,
		"persona": m.run.Persona,
		"sector":  m.run.Sector,
	}
	m.mu.Unlock()

	if err := m.bank.Write(ctx, agent.KBCategory, tag, content, md); err != nil {
		m.logger.Warn("knowledge bank save failed",
			zap.String("stage", agent.ID), zap.String("category", agent.KBCategory), zap.Error(err))
		return
	}
	m.audit.Append(EventKBSave, agent.ID, fmt.Sprintf("Saved to Knowledge Bank: %s", agent.KBCategory), map[string]any{
		"tag": tag, "category": agent.KBCategory,
	})
	if m.metrics != nil {
		m.metrics.RecordKnowledgeWrite()
	}
}
