package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind classifies audit trail entries.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventOutput   EventKind = "output"
	EventApprove  EventKind = "approve"
	EventHandoff  EventKind = "handoff"
	EventSkip     EventKind = "skip"
	EventBack     EventKind = "back"
	EventRefine   EventKind = "refine"
	EventFinalize EventKind = "finalise"
	EventResearch EventKind = "research"
	EventError    EventKind = "error"
	EventKBSave   EventKind = "kb-save"
)

// AuditEntry is a single append-only record of pipeline activity. Meta holds
// kind-specific detail (confidence, output source, handoff target) and stays
// JSON-serializable.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      EventKind      `json:"kind"`
	StageID   string         `json:"stage_id,omitempty"`
	Detail    string         `json:"detail"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// AuditTrail records every state transition and agent output in order.
// Entries are never mutated or removed after append; reads return copies so
// callers can hold snapshots across later appends.
type AuditTrail struct {
	mu      sync.RWMutex
	entries []AuditEntry
	logger  *zap.Logger
}

func NewAuditTrail(logger *zap.Logger) *AuditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{logger: logger}
}

// Append records an entry and returns it with id and timestamp assigned.
func (t *AuditTrail) Append(kind EventKind, stageID, detail string, meta map[string]any) AuditEntry {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		StageID:   stageID,
		Detail:    detail,
		Meta:      meta,
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()

	t.logger.Debug("audit entry recorded",
		zap.String("kind", string(kind)),
		zap.String("stage", stageID),
		zap.String("detail", detail))
	return entry
}

// Entries returns a snapshot copy of the full trail in append order.
func (t *AuditTrail) Entries() []AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ByKind returns a snapshot of entries matching the given kind, in order.
func (t *AuditTrail) ByKind(kind EventKind) []AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []AuditEntry
	for _, e := range t.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of recorded entries.
func (t *AuditTrail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
