package pipeline

import (
	"github.com/fleetworks/campaignflow/types"
)

// Mode selects how many stages a run walks through.
type Mode string

const (
	// ModeMulti runs the full active pipeline with handoffs between stages.
	ModeMulti Mode = "multi"
	// ModeSingle runs exactly one agent with no handoff routing.
	ModeSingle Mode = "single"
)

// State is the lifecycle of a run.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
)

// Run is the full serializable state of one campaign pipeline execution.
// ActiveStages is frozen at start; toggling agents later never affects a run
// in flight. All maps are keyed by stage id.
type Run struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Runbook string `json:"runbook"`
	Persona string `json:"persona,omitempty"`
	Sector  string `json:"sector,omitempty"`
	Prompt  string `json:"prompt"`

	Mode        Mode `json:"mode"`
	DemoMode    bool `json:"demo_mode"`
	NurtureFlow bool `json:"nurture_flow"`

	ActiveStages []string                   `json:"active_stages"`
	CurrentStage string                     `json:"current_stage,omitempty"`
	Completed    map[string]bool            `json:"completed"`
	Approved     map[string]string          `json:"approved"`
	Transcripts  map[string][]types.Message `json:"transcripts"`

	State State `json:"state"`
}

// snapshot returns a deep copy safe to read after the machine lock is
// released.
func (r *Run) snapshot() Run {
	cp := *r
	cp.ActiveStages = append([]string(nil), r.ActiveStages...)
	cp.Completed = make(map[string]bool, len(r.Completed))
	for k, v := range r.Completed {
		cp.Completed[k] = v
	}
	cp.Approved = make(map[string]string, len(r.Approved))
	for k, v := range r.Approved {
		cp.Approved[k] = v
	}
	cp.Transcripts = make(map[string][]types.Message, len(r.Transcripts))
	for k, v := range r.Transcripts {
		cp.Transcripts[k] = append([]types.Message(nil), v...)
	}
	return cp
}

// isActive reports whether stageID is part of this run's frozen pipeline.
func (r *Run) isActive(stageID string) bool {
	for _, id := range r.ActiveStages {
		if id == stageID {
			return true
		}
	}
	return false
}

// nextActive returns the stage after stageID in the frozen pipeline order,
// or "" when stageID is last or absent.
func (r *Run) nextActive(stageID string) string {
	for i, id := range r.ActiveStages {
		if id == stageID && i+1 < len(r.ActiveStages) {
			return r.ActiveStages[i+1]
		}
	}
	return ""
}

// prevActive returns the stage before stageID, or "" when first or absent.
func (r *Run) prevActive(stageID string) string {
	for i, id := range r.ActiveStages {
		if id == stageID && i > 0 {
			return r.ActiveStages[i-1]
		}
	}
	return ""
}

// hasAssistantTurn reports whether the stage transcript already contains
// agent output.
func (r *Run) hasAssistantTurn(stageID string) bool {
	for _, msg := range r.Transcripts[stageID] {
		if msg.Role == types.RoleAssistant {
			return true
		}
	}
	return false
}

// lastAssistantTurn returns the most recent agent output for the stage.
func (r *Run) lastAssistantTurn(stageID string) (string, bool) {
	turns := r.Transcripts[stageID]
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == types.RoleAssistant {
			return turns[i].Content, true
		}
	}
	return "", false
}
