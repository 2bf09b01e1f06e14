package reference

import (
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

var (
	electrificationPattern = regexp.MustCompile(`electrif|hybrid|bev|phev|hydrogen|powertrain|ev\b`)
	hiluxPattern           = regexp.MustCompile(`hilux`)
	priusPattern           = regexp.MustCompile(`prius`)
)

// wellKnownDocs maps the curated reference library layout onto gating
// rules. Brand content and personas apply everywhere; tone-of-voice docs
// bind to the copy stage per channel; compliance guidelines bind to the
// compliance stage; product docs gate on campaign context keywords.
var wellKnownDocs = []struct {
	path string
	rule Rule
}{
	{path: "brand/better-business-content.md", rule: Rule{Label: "Toyota Professional Better Business Content"}},
	{path: "personas/fleet-personas.md", rule: Rule{Label: "Fleet Personas"}},
	{path: "tone-of-voice/tone-of-voice-brand.md", rule: Rule{Label: "Tone of Voice (Brand)", Stage: "copy", Channel: "Brand"}},
	{path: "tone-of-voice/tone-of-voice-crm.md", rule: Rule{Label: "Tone of Voice (CRM)", Stage: "copy", Channel: "CRM"}},
	{path: "tone-of-voice/tone-of-voice-digital.md", rule: Rule{Label: "Tone of Voice (Digital)", Stage: "copy", Channel: "Digital"}},
	{path: "compliance/compliance-legal.md", rule: Rule{Label: "Compliance & Legal Guidelines", Stage: "compliance"}},
	{path: "product/electrification.md", rule: Rule{Label: "Electrification & Powertrain", Keyword: electrificationPattern}},
	{path: "product/hilux-content.md", rule: Rule{Label: "Hilux Product Content", Keyword: hiluxPattern}},
	{path: "product/prius-content.md", rule: Rule{Label: "Prius Product Content", Keyword: priusPattern}},
}

// LoadDir builds a store from the well-known reference library layout under
// root. Missing files are skipped; a directory with no readable documents
// yields an empty store, which is valid and simply contributes nothing.
func LoadDir(root string, logger *zap.Logger) *StaticStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	var rules []Rule
	for _, doc := range wellKnownDocs {
		data, err := os.ReadFile(filepath.Join(root, doc.path))
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("skipping unreadable reference document",
					zap.String("path", doc.path), zap.Error(err))
			}
			continue
		}
		r := doc.rule
		r.Body = string(data)
		rules = append(rules, r)
	}

	logger.Debug("reference library loaded", zap.Int("documents", len(rules)))
	return NewStaticStore(rules)
}
