package agent

import (
	"slices"

	"makoto/internal/api"
)

// ConfidenceThreshold is the minimum confidence for an analysed mode to be
// switched on.
const ConfidenceThreshold = 0.5

var analysisModes = map[string]api.Mode{
	api.AnalysisWeb:   api.ModeWebCrawl,
	api.AnalysisImage: api.ModeImage,
	api.AnalysisRAG:   api.ModeRAG,
}

// SelectModes merges the modes recommended by an agent analysis into the
// active set. Active modes (including agent itself) are always kept;
// recommended modes are appended in analysis order without duplicates.
// Search keywords come from the web recommendation, if any.
func SelectModes(active []api.Mode, analysis *api.AnalyzeResponse) ([]api.Mode, []string) {
	modes := slices.Clone(active)
	if analysis == nil {
		return modes, nil
	}

	var keywords []string
	for _, m := range analysis.Modes {
		if m.Confidence <= ConfidenceThreshold || m.Type == api.AnalysisNone {
			continue
		}
		mode, ok := analysisModes[m.Type]
		if !ok {
			continue
		}
		if !slices.Contains(modes, mode) {
			modes = append(modes, mode)
		}
		if m.Type == api.AnalysisWeb && len(m.SearchKeywords) > 0 {
			keywords = m.SearchKeywords
		}
	}
	return modes, keywords
}

// PrimaryMode returns the analysed type with the highest confidence above
// the threshold, or "" if none qualifies.
func PrimaryMode(modes []api.ModeAnalysis) string {
	best := ""
	bestConf := ConfidenceThreshold
	for _, m := range modes {
		if m.Confidence > bestConf {
			best, bestConf = m.Type, m.Confidence
		}
	}
	return best
}
