// Package reference provides the reference store: curated text blocks
// (brand guidelines, personas, product knowledge, compliance rules) selected
// per stage, channel, and campaign context. The orchestration core treats
// returned blocks as opaque text — selection here, no interpretation there.
package reference

import (
	"regexp"
	"strings"
)

// Block is one curated reference document.
type Block struct {
	Label string
	Body  string
}

// Store is the lookup contract. Implementations are pure reads.
type Store interface {
	// Lookup returns the blocks relevant to stageID on channelHint given
	// the campaign context text, in a stable order. Empty means "nothing
	// relevant" and is not an error.
	Lookup(stageID, channelHint, contextText string) []Block
}

// Rule gates one document. A document is included when every set gate
// matches: stage (empty = any stage), channel (empty = any channel), and
// keyword pattern over the lowercased context+channel text (nil = always).
type Rule struct {
	Label   string
	Body    string
	Stage   string
	Channel string
	Keyword *regexp.Regexp
}

// StaticStore is a rule-gated in-memory Store.
type StaticStore struct {
	rules []Rule
}

// NewStaticStore creates a store over the given rules; rule order is the
// lookup output order.
func NewStaticStore(rules []Rule) *StaticStore {
	return &StaticStore{rules: rules}
}

// Lookup implements Store.
func (s *StaticStore) Lookup(stageID, channelHint, contextText string) []Block {
	ctx := strings.ToLower(contextText + " " + channelHint)

	var out []Block
	for _, r := range s.rules {
		if r.Stage != "" && r.Stage != stageID {
			continue
		}
		if r.Channel != "" && r.Channel != channelHint {
			continue
		}
		if r.Keyword != nil && !r.Keyword.MatchString(ctx) {
			continue
		}
		if strings.TrimSpace(r.Body) == "" {
			continue
		}
		out = append(out, Block{Label: r.Label, Body: r.Body})
	}
	return out
}

// ContextBlock formats blocks as a system-prompt injection section. Empty
// input yields "" so the composer omits the section.
func ContextBlock(blocks []Block) string {
	if len(blocks) == 0 {
		return ""
	}

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, "[REFERENCE: "+b.Label+"]\n"+b.Body+"\n[END REFERENCE: "+b.Label+"]")
	}

	return "--- REFERENCE MATERIAL ---\n" +
		"The following reference documents provide brand guidelines, product knowledge, personas, and compliance rules. " +
		"Use these to ground your output in accurate, on-brand information.\n\n" +
		strings.Join(parts, "\n\n") +
		"\n--- END REFERENCE MATERIAL ---"
}

// Context looks up and formats in one step. A nil store yields "".
func Context(store Store, stageID, channelHint, contextText string) string {
	if store == nil {
		return ""
	}
	return ContextBlock(store.Lookup(stageID, channelHint, contextText))
}
