package models

// MatchRule names the decision rule that accepted a pair
type MatchRule string

const (
	MatchRuleExactEmail          MatchRule = "exact_email"
	MatchRuleExactOrganizationID MatchRule = "exact_organization_id"
	MatchRuleFuzzy               MatchRule = "fuzzy"
)

// EntitySimilarity is the scorer's verdict for two normalized records
type EntitySimilarity struct {
	FieldScores   map[FieldType]float64 `json:"field_scores"`
	Overall       float64               `json:"overall"`
	MatchedFields []FieldType           `json:"matched_fields"`
	Reason        string                `json:"reason"`
}

// HasMatch reports whether any compared field reached its threshold
func (s EntitySimilarity) HasMatch() bool {
	return len(s.MatchedFields) > 0
}

// MatchPair is an accepted edge between two records. RecordA always sorts before RecordB.
type MatchPair struct {
	RecordA       string                `json:"record_a"`
	RecordB       string                `json:"record_b"`
	FieldScores   map[FieldType]float64 `json:"field_scores"`
	Confidence    float64               `json:"confidence"`
	MatchedFields []FieldType           `json:"matched_fields"`
	Reason        string                `json:"reason"`
	Rule          MatchRule             `json:"rule"`
	Conflicts     []FieldType           `json:"conflicts,omitempty"` // exact keys that disagree despite the accepting rule
	Review        bool                  `json:"review,omitempty"`    // accepted inside the review band
	Spanning      bool                  `json:"spanning,omitempty"`  // joined two components during clustering
}

// Touches reports whether the pair has recordID as an endpoint
func (p MatchPair) Touches(recordID string) bool {
	return p.RecordA == recordID || p.RecordB == recordID
}

// Other returns the endpoint that is not recordID
func (p MatchPair) Other(recordID string) string {
	if p.RecordA == recordID {
		return p.RecordB
	}
	return p.RecordA
}
