package types

// Confidence buckets a result score into a coarse label callers can use to
// explain why a result surfaced, not just its rank.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Confidence thresholds on the final fused score
const (
	HighConfidenceThreshold   = 0.8
	MediumConfidenceThreshold = 0.5
)

// ConfidenceForScore maps a normalized score to its confidence label
func ConfidenceForScore(score float64) Confidence {
	switch {
	case score >= HighConfidenceThreshold:
		return ConfidenceHigh
	case score >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SearchResult represents a single ranked search result
type SearchResult struct {
	// Identification
	UnitID string
	Rank   int // Position in result set (1-based)

	// Scoring
	Score         float64 // Final fused score
	SemanticScore float64 // Normalized vector-similarity contribution
	KeywordScore  float64 // Normalized keyword contribution
	Confidence    Confidence

	// Diagnostics: which query terms matched, populated in keyword and
	// hybrid modes
	MatchedKeywords []string

	// Metadata
	Unit *SemanticUnit
}

// Validate checks if the search result is well formed
func (sr *SearchResult) Validate() error {
	if sr.UnitID == "" {
		return ErrInvalidUnitID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidScore
	}
	if sr.Unit == nil {
		return ErrMissingUnit
	}
	return nil
}
