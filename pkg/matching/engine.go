// Package matching scores normalized record pairs and decides which pairs become merge edges
package matching

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Engine applies the similarity scorer and the merge decision rules to record pairs.
// It holds no per-run state and is safe for concurrent use.
type Engine struct {
	scorer *Scorer
}

// NewEngine creates a new match engine
func NewEngine() *Engine {
	return &Engine{scorer: NewScorer()}
}

// Scorer exposes the underlying string scorer
func (e *Engine) Scorer() *Scorer {
	return e.scorer
}

// Compare computes per-field and weighted similarity of two normalized records.
// Only configured fields present on both sides are compared.
func (e *Engine) Compare(a, b *models.NormalizedRecord, cfg *models.ResolutionConfig) models.EntitySimilarity {
	sim := models.EntitySimilarity{
		FieldScores: make(map[models.FieldType]float64),
	}

	for _, field := range models.ScoredFields {
		rule, ok := cfg.Rule(field)
		if !ok {
			continue
		}
		va, okA := a.Get(field)
		vb, okB := b.Get(field)
		if !okA || !okB {
			continue
		}

		score := e.scorer.JaroWinkler(va, vb, cfg.PrefixScale)
		sim.FieldScores[field] = score
		if score >= rule.Threshold {
			sim.MatchedFields = append(sim.MatchedFields, field)
		}
	}

	sim.Overall = e.scorer.WeightedScore(sim.FieldScores, cfg)
	sim.Reason = similarityReason(sim, cfg)
	return sim
}

// ShouldMerge evaluates the decision rules in fixed order: exact email, exact
// organization id, then fuzzy scoring. It returns the accepted edge, or false
// when the pair is rejected.
func (e *Engine) ShouldMerge(a, b *models.NormalizedRecord, cfg *models.ResolutionConfig) (models.MatchPair, bool) {
	if a.ID > b.ID {
		a, b = b, a
	}

	if cfg.ExactEmailMatch {
		if pair, ok := exactPair(a, b, models.FieldEmail, models.MatchRuleExactEmail); ok {
			if cfg.ExactOrgIDMatch && disagree(a, b, models.FieldOrganizationID) {
				pair.Conflicts = []models.FieldType{models.FieldOrganizationID}
			}
			return pair, true
		}
	}

	if cfg.ExactOrgIDMatch {
		if pair, ok := exactPair(a, b, models.FieldOrganizationID, models.MatchRuleExactOrganizationID); ok {
			if cfg.ExactEmailMatch && disagree(a, b, models.FieldEmail) {
				pair.Conflicts = []models.FieldType{models.FieldEmail}
			}
			return pair, true
		}
	}

	sim := e.Compare(a, b, cfg)
	if !sim.HasMatch() {
		return models.MatchPair{}, false
	}

	pair := models.MatchPair{
		RecordA:       a.ID,
		RecordB:       b.ID,
		FieldScores:   sim.FieldScores,
		Confidence:    sim.Overall,
		MatchedFields: sim.MatchedFields,
		Reason:        sim.Reason,
		Rule:          models.MatchRuleFuzzy,
	}

	switch {
	case sim.Overall >= cfg.MinAutoMergeConfidence:
		return pair, true
	case cfg.ReviewBandEnabled() && sim.Overall >= cfg.MinReviewConfidence:
		pair.Review = true
		return pair, true
	default:
		return models.MatchPair{}, false
	}
}

func exactPair(a, b *models.NormalizedRecord, field models.FieldType, rule models.MatchRule) (models.MatchPair, bool) {
	va, okA := a.Get(field)
	vb, okB := b.Get(field)
	if !okA || !okB || va != vb {
		return models.MatchPair{}, false
	}

	reason := "exact email match"
	if field == models.FieldOrganizationID {
		reason = "exact organization id match"
	}

	return models.MatchPair{
		RecordA:       a.ID,
		RecordB:       b.ID,
		FieldScores:   map[models.FieldType]float64{field: 1.0},
		Confidence:    1.0,
		MatchedFields: []models.FieldType{field},
		Reason:        reason,
		Rule:          rule,
	}, true
}

// disagree reports whether both records carry different values for field
func disagree(a, b *models.NormalizedRecord, field models.FieldType) bool {
	va, okA := a.Get(field)
	vb, okB := b.Get(field)
	return okA && okB && va != vb
}

func similarityReason(sim models.EntitySimilarity, cfg *models.ResolutionConfig) string {
	if len(sim.FieldScores) == 0 {
		return "no comparable fields"
	}

	var sb strings.Builder
	if len(sim.MatchedFields) == 0 {
		sb.WriteString("no fields matched")
	} else {
		names := make([]string, len(sim.MatchedFields))
		for i, f := range sim.MatchedFields {
			names[i] = string(f)
		}
		sb.WriteString("matched ")
		sb.WriteString(strings.Join(names, ", "))
	}

	if sim.Overall >= cfg.MinAutoMergeConfidence {
		fmt.Fprintf(&sb, "; confidence %.3f meets auto-merge threshold %.2f", sim.Overall, cfg.MinAutoMergeConfidence)
	} else {
		fmt.Fprintf(&sb, "; confidence %.3f below auto-merge threshold %.2f", sim.Overall, cfg.MinAutoMergeConfidence)
	}
	return sb.String()
}
