package pipeline

import (
	"regexp"
	"strconv"
)

// Confidence score markers, in match priority: markdown table cell, then
// labelled inline, then bare "confidence:" mentions.
var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\*\*Confidence\s+score\*\*\s*\|\s*([\d.]+)`),
	regexp.MustCompile(`(?i)Confidence\s+score[:\s]+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)confidence[:\s]+(\d+(?:\.\d+)?)`),
}

// ExtractConfidence scans agent output for a confidence score in [0,1].
// Returns ok=false when no labelled score is present or the value is out of
// range. Pure; never panics on arbitrary text.
func ExtractConfidence(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	for _, pat := range confidencePatterns {
		m := pat.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		val, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if val >= 0 && val <= 1 {
			return val, true
		}
	}
	return 0, false
}
