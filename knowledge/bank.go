// Package knowledge provides the knowledge bank: a category-keyed store of
// past approved outputs, queried most-recent-first for prompt injection.
// Writing happens on human approval; the orchestration core only ever reads
// a top-N digest.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTopN is how many entries a category contributes to a prompt.
const DefaultTopN = 3

// Entry is one stored approved output.
type Entry struct {
	Label     string            `json:"label"`
	Body      string            `json:"body"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Bank is the category-keyed store contract.
type Bank interface {
	// QueryTopN returns up to n entries for category, most recent first.
	// An unknown category yields an empty list, not an error.
	QueryTopN(ctx context.Context, category string, n int) ([]Entry, error)

	// Write appends an approved output under category.
	Write(ctx context.Context, category, label, body string, metadata map[string]string) error
}

// ContextBlock formats entries as a system-prompt injection block. Empty
// input yields "" so the composer omits the block entirely.
func ContextBlock(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("--- KNOWLEDGE BANK REFERENCE ---\n")
	sb.WriteString("The following approved outputs from previous campaigns may be relevant.\n")
	sb.WriteString("Use these as quality benchmarks and reference material, not as templates to copy:\n")
	for i, e := range entries {
		label := e.Label
		if label == "" {
			label = "Untitled"
		}
		sb.WriteString(fmt.Sprintf("\n[KB Entry %d: %s — %s]\n%s\n[END KB Entry %d]\n",
			i+1, label, e.Timestamp.Format("2 Jan 2006"), e.Body, i+1))
	}
	sb.WriteString("--- END KNOWLEDGE BANK ---")
	return sb.String()
}

// Context queries bank for the category's top entries and formats them.
// A nil bank or empty category yields "".
func Context(ctx context.Context, bank Bank, category string, n int) (string, error) {
	if bank == nil || category == "" {
		return "", nil
	}
	if n <= 0 {
		n = DefaultTopN
	}
	entries, err := bank.QueryTopN(ctx, category, n)
	if err != nil {
		return "", err
	}
	return ContextBlock(entries), nil
}
