package registry

// Channel names the marketing surface a run targets. The Research channel
// routes the synthesis stage into research mode.
const (
	ChannelBrand    = "Brand"
	ChannelCRM      = "CRM"
	ChannelDigital  = "Digital"
	ChannelResearch = "Research"
)

// ChannelRunbooks maps each channel to its selectable runbooks.
var ChannelRunbooks = map[string][]string{
	ChannelBrand:    {"Thought Leadership"},
	ChannelCRM:      {"Nurture Journeys"},
	ChannelDigital:  {"Website copy"},
	ChannelResearch: {"Market & Audience", "Competitor Analysis", "Product & Technology", "Sector Deep Dive"},
}

// DefaultRunbooks maps each channel to its default runbook.
var DefaultRunbooks = map[string]string{
	ChannelBrand:    "Thought Leadership",
	ChannelCRM:      "Nurture Journeys",
	ChannelDigital:  "Website copy",
	ChannelResearch: "Market & Audience",
}

// Personas are the selectable audience personas.
var Personas = []string{"SME", "Fleet Manager", "Corporate"}

// Sectors are the selectable audience sectors.
var Sectors = []string{
	"Construction",
	"Logistics",
	"Retail & Wholesale",
	"Professional Services",
	"SME General Business",
}

// SynthesisStageID is the stage that folds a research digest into its
// prompt when a run operates on the Research channel.
const SynthesisStageID = "strategy"

// NurtureTrigger reports whether the copy-stage nurture sub-flow condition
// holds for the given channel and runbook.
func NurtureTrigger(channel, runbook string) bool {
	return channel == ChannelCRM && runbook == "Nurture Journeys"
}
