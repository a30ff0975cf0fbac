package clustering

import (
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func pair(a, b string, confidence float64) models.MatchPair {
	return models.MatchPair{RecordA: a, RecordB: b, Confidence: confidence, Rule: models.MatchRuleFuzzy}
}

func edge(a, b int, ids []string, confidence float64) Edge {
	return Edge{A: a, B: b, Pair: pair(ids[a], ids[b], confidence)}
}

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(5)
	assert.True(t, uf.Union(0, 1))
	assert.True(t, uf.Union(1, 2))
	assert.False(t, uf.Union(0, 2))
	assert.Equal(t, uf.Find(0), uf.Find(2))
	assert.NotEqual(t, uf.Find(0), uf.Find(3))
	assert.Equal(t, 3, uf.Size(2))
	assert.Equal(t, 1, uf.Size(4))
}

func TestUnionFind_LongChain(t *testing.T) {
	const n = 200000
	uf := NewUnionFind(n)
	for i := 1; i < n; i++ {
		uf.Union(i-1, i)
	}
	assert.Equal(t, n, uf.Size(0))
	assert.Equal(t, uf.Find(0), uf.Find(n-1))
}

func TestBuild_Transitivity(t *testing.T) {
	cfg := models.DefaultResolutionConfig()
	ids := []string{"a", "b", "c", "d"}

	// a-b and b-c accepted, a-c never scored
	result := Build("batch-1", ids, []Edge{edge(0, 1, ids, 0.9), edge(1, 2, ids, 0.95)}, &cfg, now)

	require.Len(t, result.Clusters, 1)
	c := result.Clusters[0]
	assert.Equal(t, []string{"a", "b", "c"}, c.MemberIDs)
	assert.Equal(t, []string{"d"}, result.Singletons)
	assert.Equal(t, 0.9, c.Confidence)
	assert.Equal(t, models.ClusterStatusAutoMerged, c.Status)
	assert.Empty(t, c.ReviewReasons)
	assert.Equal(t, ClusterID("batch-1", []string{"c", "a", "b"}), c.ID)
	assert.Equal(t, now, c.CreatedAt)
}

func TestBuild_EdgeOrderDoesNotMatter(t *testing.T) {
	cfg := models.DefaultResolutionConfig()
	ids := []string{"a", "b", "c", "d", "e"}
	edges := []Edge{
		edge(0, 1, ids, 0.9),
		edge(1, 2, ids, 1.0),
		edge(0, 2, ids, 0.95),
		edge(3, 4, ids, 0.88),
	}
	reversed := []Edge{edges[3], edges[2], edges[1], edges[0]}

	assert.Equal(t, Build("b", ids, edges, &cfg, now), Build("b", ids, reversed, &cfg, now))

	result := Build("b", ids, edges, &cfg, now)
	require.Len(t, result.Clusters, 2)
	// b-c (1.0) and a-c (0.95) span, a-b (0.9) closes a cycle
	assert.Equal(t, 0.95, result.Clusters[0].Confidence)
	var spanning int
	for _, e := range result.Clusters[0].Edges {
		if e.Spanning {
			spanning++
		}
	}
	assert.Equal(t, 2, spanning)
}

func TestBuild_Classification(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	t.Run("size cap", func(t *testing.T) {
		cfg := models.DefaultResolutionConfig()
		cfg.MaxAutoMergeClusterSize = 2
		result := Build("b", ids, []Edge{edge(0, 1, ids, 1), edge(1, 2, ids, 1)}, &cfg, now)
		require.Len(t, result.Clusters, 1)
		assert.Equal(t, models.ClusterStatusNeedsReview, result.Clusters[0].Status)
		assert.Equal(t, []string{models.ReviewReasonSizeCap}, result.Clusters[0].ReviewReasons)
	})

	t.Run("review edge bridges", func(t *testing.T) {
		cfg := models.DefaultResolutionConfig()
		cfg.MinReviewConfidence = 0.6
		weak := edge(1, 2, ids, 0.7)
		weak.Pair.Review = true
		result := Build("b", ids, []Edge{edge(0, 1, ids, 1), weak}, &cfg, now)
		require.Len(t, result.Clusters, 1)
		c := result.Clusters[0]
		assert.Equal(t, models.ClusterStatusNeedsReview, c.Status)
		assert.Equal(t, 0.7, c.Confidence)
		assert.Equal(t, []string{models.ReviewReasonLowConfidence, models.ReviewReasonReviewEdge}, c.ReviewReasons)
	})

	t.Run("conflicting exact signals", func(t *testing.T) {
		cfg := models.DefaultResolutionConfig()
		conflicting := edge(0, 1, ids, 1)
		conflicting.Pair.Rule = models.MatchRuleExactEmail
		conflicting.Pair.Conflicts = []models.FieldType{models.FieldOrganizationID}
		result := Build("b", ids, []Edge{conflicting}, &cfg, now)
		require.Len(t, result.Clusters, 1)
		assert.Equal(t, models.ClusterStatusNeedsReview, result.Clusters[0].Status)
		assert.Equal(t, []string{models.ReviewReasonConflict}, result.Clusters[0].ReviewReasons)
	})

	t.Run("no edges", func(t *testing.T) {
		cfg := models.DefaultResolutionConfig()
		result := Build("b", ids, nil, &cfg, now)
		assert.Empty(t, result.Clusters)
		assert.Equal(t, ids, result.Singletons)
	})
}

func TestRecluster(t *testing.T) {
	cfg := models.DefaultResolutionConfig()
	pairs := []models.MatchPair{
		pair("a", "b", 0.9),
		pair("b", "c", 0.95),
		pair("c", "d", 0.92),
	}

	// removing b leaves a alone and c-d still joined
	result := Recluster("batch", []string{"d", "c", "a"}, pairs, &cfg, now)
	require.Len(t, result.Clusters, 1)
	assert.Equal(t, []string{"c", "d"}, result.Clusters[0].MemberIDs)
	assert.Equal(t, []string{"a"}, result.Singletons)
	require.Len(t, result.Clusters[0].Edges, 1)
	assert.True(t, result.Clusters[0].Edges[0].Spanning)

	full := Recluster("batch", []string{"a", "b", "c", "d"}, pairs, &cfg, now)
	require.Len(t, full.Clusters, 1)
	assert.Equal(t, ClusterID("batch", []string{"a", "b", "c", "d"}), full.Clusters[0].ID)
}
