package matching

import (
	"fmt"
	"testing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, fields map[models.FieldType]string) *models.NormalizedRecord {
	return &models.NormalizedRecord{ID: id, Fields: fields}
}

func defaultConfig() *models.ResolutionConfig {
	cfg := models.DefaultResolutionConfig()
	return &cfg
}

func TestCompare_OnlyComparedFieldsCount(t *testing.T) {
	e := NewEngine()
	cfg := defaultConfig()

	a := record("a", map[models.FieldType]string{models.FieldName: "jonathan smith", models.FieldPhone: "5551234567"})
	b := record("b", map[models.FieldType]string{models.FieldName: "jonathan smith", models.FieldEmail: "js@example.com"})

	sim := e.Compare(a, b, cfg)
	assert.Equal(t, map[models.FieldType]float64{models.FieldName: 1.0}, sim.FieldScores)
	assert.Equal(t, 1.0, sim.Overall)
	assert.Equal(t, []models.FieldType{models.FieldName}, sim.MatchedFields)
	assert.Contains(t, sim.Reason, "matched name")
	assert.Contains(t, sim.Reason, "meets auto-merge threshold")
}

func TestCompare_NoComparableFields(t *testing.T) {
	e := NewEngine()
	a := record("a", map[models.FieldType]string{models.FieldName: "ada"})
	b := record("b", map[models.FieldType]string{models.FieldEmail: "ada@example.com"})

	sim := e.Compare(a, b, defaultConfig())
	assert.Zero(t, sim.Overall)
	assert.Empty(t, sim.MatchedFields)
	assert.False(t, sim.HasMatch())
	assert.Equal(t, "no comparable fields", sim.Reason)
}

func TestCompare_Symmetric(t *testing.T) {
	e := NewEngine()
	cfg := defaultConfig()

	records := []*models.NormalizedRecord{
		record("1", map[models.FieldType]string{models.FieldName: "martha jones", models.FieldAddress: "12 n main st"}),
		record("2", map[models.FieldType]string{models.FieldName: "marhta jones", models.FieldAddress: "12 main st"}),
		record("3", map[models.FieldType]string{models.FieldName: "dwayne johnson", models.FieldPhone: "5551234567"}),
		record("4", map[models.FieldType]string{models.FieldName: "duane johnson", models.FieldPhone: "5551234568"}),
		record("5", map[models.FieldType]string{models.FieldOrganization: "acme", models.FieldEmail: "a@acme.io"}),
		record("6", map[models.FieldType]string{models.FieldName: "zoë", models.FieldEmail: "z@acme.io"}),
	}

	for i := range records {
		for j := range records {
			t.Run(fmt.Sprintf("%s-%s", records[i].ID, records[j].ID), func(t *testing.T) {
				assert.Equal(t, e.Compare(records[i], records[j], cfg), e.Compare(records[j], records[i], cfg))

				pairAB, okAB := e.ShouldMerge(records[i], records[j], cfg)
				pairBA, okBA := e.ShouldMerge(records[j], records[i], cfg)
				assert.Equal(t, okAB, okBA)
				assert.Equal(t, pairAB, pairBA)
			})
		}
	}
}

func TestShouldMerge_ExactEmailPrecedence(t *testing.T) {
	e := NewEngine()
	cfg := defaultConfig()

	a := record("b-rec", map[models.FieldType]string{
		models.FieldEmail:          "shared@example.com",
		models.FieldName:           "alice cooper",
		models.FieldPhone:          "1111111111",
		models.FieldOrganizationID: "org1",
	})
	b := record("a-rec", map[models.FieldType]string{
		models.FieldEmail:          "shared@example.com",
		models.FieldName:           "zed zimmerman",
		models.FieldPhone:          "9999999999",
		models.FieldOrganizationID: "org1",
	})

	pair, ok := e.ShouldMerge(a, b, cfg)
	require.True(t, ok)
	assert.Equal(t, 1.0, pair.Confidence)
	assert.Equal(t, models.MatchRuleExactEmail, pair.Rule)
	assert.Equal(t, "exact email match", pair.Reason)
	assert.Equal(t, "a-rec", pair.RecordA)
	assert.Equal(t, "b-rec", pair.RecordB)
	assert.Empty(t, pair.Conflicts)
}

func TestShouldMerge_ExactOrganizationID(t *testing.T) {
	e := NewEngine()
	a := record("a", map[models.FieldType]string{models.FieldOrganizationID: "org-7", models.FieldName: "initech"})
	b := record("b", map[models.FieldType]string{models.FieldOrganizationID: "org-7", models.FieldName: "globex"})

	t.Run("enabled", func(t *testing.T) {
		pair, ok := e.ShouldMerge(a, b, defaultConfig())
		require.True(t, ok)
		assert.Equal(t, models.MatchRuleExactOrganizationID, pair.Rule)
		assert.Equal(t, 1.0, pair.Confidence)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.ExactOrgIDMatch = false
		_, ok := e.ShouldMerge(a, b, cfg)
		assert.False(t, ok)
	})

	t.Run("email beats organization id", func(t *testing.T) {
		a2 := record("a", map[models.FieldType]string{models.FieldOrganizationID: "org-7", models.FieldEmail: "x@y.io"})
		b2 := record("b", map[models.FieldType]string{models.FieldOrganizationID: "org-7", models.FieldEmail: "x@y.io"})
		pair, ok := e.ShouldMerge(a2, b2, defaultConfig())
		require.True(t, ok)
		assert.Equal(t, models.MatchRuleExactEmail, pair.Rule)
	})
}

func TestShouldMerge_ConflictingExactSignals(t *testing.T) {
	e := NewEngine()
	a := record("a", map[models.FieldType]string{models.FieldEmail: "ops@example.com", models.FieldOrganizationID: "org-1"})
	b := record("b", map[models.FieldType]string{models.FieldEmail: "ops@example.com", models.FieldOrganizationID: "org-2"})

	pair, ok := e.ShouldMerge(a, b, defaultConfig())
	require.True(t, ok)
	assert.Equal(t, models.MatchRuleExactEmail, pair.Rule)
	assert.Equal(t, []models.FieldType{models.FieldOrganizationID}, pair.Conflicts)
}

func TestShouldMerge_Fuzzy(t *testing.T) {
	e := NewEngine()
	a := record("a", map[models.FieldType]string{models.FieldName: "jonathan smith"})
	b := record("b", map[models.FieldType]string{models.FieldName: "jonathon smith"})
	c := record("c", map[models.FieldType]string{models.FieldName: "priya patel"})

	t.Run("accepts above auto-merge confidence", func(t *testing.T) {
		pair, ok := e.ShouldMerge(a, b, defaultConfig())
		require.True(t, ok)
		assert.Equal(t, models.MatchRuleFuzzy, pair.Rule)
		assert.False(t, pair.Review)
		assert.InDelta(t, 0.9714, pair.Confidence, 0.001)
		assert.Equal(t, []models.FieldType{models.FieldName}, pair.MatchedFields)
	})

	t.Run("rejects dissimilar", func(t *testing.T) {
		_, ok := e.ShouldMerge(a, c, defaultConfig())
		assert.False(t, ok)
	})

	t.Run("review band", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.MinAutoMergeConfidence = 0.99
		_, ok := e.ShouldMerge(a, b, cfg)
		assert.False(t, ok)

		cfg.MinReviewConfidence = 0.5
		pair, ok := e.ShouldMerge(a, b, cfg)
		require.True(t, ok)
		assert.True(t, pair.Review)
		assert.Contains(t, pair.Reason, "below auto-merge threshold")
	})
}
