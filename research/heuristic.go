package research

import "strings"

// liveDataSignals are the terms that mark a question as needing current
// market data. A tunable heuristic, not a contract: membership can change
// without affecting correctness, so long as NeedsLiveData stays pure.
var liveDataSignals = []string{
	"current", "latest", "recent", "2024", "2025", "2026",
	"today", "this year", "market share", "price", "pricing",
	"rate", "rates", "regulation", "policy", "incentive",
	"trend", "forecast", "competitor", "launch", "announce",
	"bik", "ulez", "zev", "mandate", "subsidy", "grant",
	"statistic", "data point", "benchmark", "study",
}

// NeedsLiveData reports whether text carries temporal, market, or
// regulatory signals that justify a live search. Pure and deterministic.
func NeedsLiveData(text string) bool {
	lower := strings.ToLower(text)
	for _, s := range liveDataSignals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
