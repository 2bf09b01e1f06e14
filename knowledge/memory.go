package knowledge

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryBank is an in-process Bank for tests and demo runs.
type MemoryBank struct {
	mu      sync.RWMutex
	entries map[string][]Entry

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewMemoryBank creates an empty in-memory bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		entries: map[string][]Entry{},
		now:     time.Now,
	}
}

// QueryTopN implements Bank.
func (b *MemoryBank) QueryTopN(_ context.Context, category string, n int) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := slices.Clone(b.entries[category])
	slices.SortStableFunc(all, func(a, c Entry) int {
		return c.Timestamp.Compare(a.Timestamp) // most recent first
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Write implements Bank.
func (b *MemoryBank) Write(_ context.Context, category, label, body string, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[category] = append(b.entries[category], Entry{
		Label:     label,
		Body:      body,
		Timestamp: b.now(),
		Metadata:  metadata,
	})
	return nil
}

// Count returns the number of entries stored under category.
func (b *MemoryBank) Count(category string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries[category])
}
