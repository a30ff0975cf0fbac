package resolution

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

var (
	t1    = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	t2    = t1.Add(24 * time.Hour)
	clock = t2.Add(time.Hour)
)

func newTestEngine(workers int) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(logger, Config{Workers: workers}).WithClock(func() time.Time { return clock })
}

func scenarioRecords(batchID string) []models.SourceRecord {
	return []models.SourceRecord{
		{ID: "r1", BatchID: batchID, Name: "Alice Walker", Email: "alice@example.com", IngestedAt: t1},
		{ID: "r2", BatchID: batchID, Name: "A. Walker", Email: " ALICE@example.com", IngestedAt: t2},
		{ID: "r3", BatchID: batchID, Name: "Jonathan Smith", IngestedAt: t1},
		{ID: "r4", BatchID: batchID, Name: "Jonathon Smith", IngestedAt: t2},
		{ID: "r5", BatchID: batchID, Name: "Xavier Quintero", Phone: "+1 212 555 0100", IngestedAt: t1},
	}
}

func TestResolveBatch_Scenario(t *testing.T) {
	result, err := newTestEngine(2).ResolveBatch(context.Background(), "batch-1", scenarioRecords("batch-1"), models.DefaultResolutionConfig())
	require.NoError(t, err)

	require.Len(t, result.Clusters, 2)
	assert.Equal(t, []string{"r1", "r2"}, result.Clusters[0].MemberIDs)
	assert.Equal(t, []string{"r3", "r4"}, result.Clusters[1].MemberIDs)
	assert.Equal(t, []string{"r5"}, result.Singletons)
	assert.Empty(t, result.Rejected)

	emailCluster := result.Clusters[0]
	assert.Equal(t, 1.0, emailCluster.Confidence)
	require.Len(t, emailCluster.Edges, 1)
	assert.Equal(t, models.MatchRuleExactEmail, emailCluster.Edges[0].Rule)

	for _, c := range result.Clusters {
		assert.Equal(t, models.ClusterStatusMerged, c.Status)
		assert.NotEmpty(t, c.RecordSetFingerprint)
		golden, ok := result.GoldenRecordFor(c.ID)
		require.True(t, ok)
		assert.Equal(t, c.MemberIDs, golden.Provenance)
	}

	require.Len(t, result.GoldenRecords, 2)
	for _, golden := range result.GoldenRecords {
		assert.NotContains(t, golden.Provenance, "r5")
	}
}

func TestResolveBatch_GoldenFieldPolicy(t *testing.T) {
	records := []models.SourceRecord{
		{ID: "a", Name: "Jon", Email: "jon@example.com", IngestedAt: t1},
		{ID: "b", Name: "Jonathan", Email: "jon@example.com", IngestedAt: t2},
	}

	result, err := newTestEngine(1).ResolveBatch(context.Background(), "batch-1", records, models.DefaultResolutionConfig())
	require.NoError(t, err)
	require.Len(t, result.GoldenRecords, 1)

	golden := result.GoldenRecords[0]
	assert.Equal(t, "Jonathan", golden.Field(models.FieldName))
	assert.ElementsMatch(t, []string{"a", "b"}, golden.Provenance)
}

func TestResolveBatch_GoldenFieldPolicy_NameOnly(t *testing.T) {
	records := []models.SourceRecord{
		{ID: "a", Name: "Jon", IngestedAt: t1},
		{ID: "b", Name: "Jonathan", IngestedAt: t2},
	}

	result, err := newTestEngine(1).ResolveBatch(context.Background(), "batch-1", records, models.DefaultResolutionConfig())
	require.NoError(t, err)
	require.Len(t, result.Clusters, 1)
	require.Len(t, result.GoldenRecords, 1)

	cluster := result.Clusters[0]
	assert.Equal(t, models.ClusterStatusAutoMerged, cluster.Status)
	require.Len(t, cluster.Edges, 1)
	assert.Equal(t, models.MatchRuleFuzzy, cluster.Edges[0].Rule)
	assert.Equal(t, []models.FieldType{models.FieldName}, cluster.Edges[0].MatchedFields)

	golden := result.GoldenRecords[0]
	assert.Equal(t, "Jonathan", golden.Field(models.FieldName))
	assert.Equal(t, []string{"a", "b"}, golden.Provenance)
}

func TestResolveBatch_Transitivity(t *testing.T) {
	records := []models.SourceRecord{
		{ID: "a", Name: "Maria Lopez", Email: "maria@example.com", IngestedAt: t1},
		{ID: "b", Email: "maria@example.com", OrganizationID: "ORG-1", IngestedAt: t1},
		{ID: "c", Name: "Zed Zulu", OrganizationID: "org-1", IngestedAt: t1},
	}

	result, err := newTestEngine(1).ResolveBatch(context.Background(), "batch-1", records, models.DefaultResolutionConfig())
	require.NoError(t, err)

	require.Len(t, result.Clusters, 1)
	assert.Equal(t, []string{"a", "b", "c"}, result.Clusters[0].MemberIDs)
	assert.Len(t, result.Clusters[0].Edges, 2)
	assert.Empty(t, result.Singletons)
}

func TestResolveBatch_Idempotent(t *testing.T) {
	engine := newTestEngine(4)
	records := randomSourceRecords(rand.New(rand.NewSource(11)), 120)

	first, err := engine.ResolveBatch(context.Background(), "batch-1", records, models.DefaultResolutionConfig())
	require.NoError(t, err)

	shuffled := append([]models.SourceRecord(nil), records...)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	second, err := engine.ResolveBatch(context.Background(), "batch-1", shuffled, models.DefaultResolutionConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Clusters)
}

func TestResolveBatch_MatchesExhaustiveComparison(t *testing.T) {
	records := randomSourceRecords(rand.New(rand.NewSource(5)), 150)
	cfg := models.DefaultResolutionConfig()

	result, err := newTestEngine(3).ResolveBatch(context.Background(), "batch-1", records, cfg)
	require.NoError(t, err)

	// score every pair without blocking
	normalized := make([]models.NormalizedRecord, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		normalized[i] = normalizers.Record(r)
		ids[i] = r.ID
	}
	matcher := matching.NewEngine()
	var edges []clustering.Edge
	for i := range normalized {
		for j := i + 1; j < len(normalized); j++ {
			if pair, ok := matcher.ShouldMerge(&normalized[i], &normalized[j], &cfg); ok {
				edges = append(edges, clustering.Edge{A: i, B: j, Pair: pair})
			}
		}
	}
	exhaustive := clustering.Build("batch-1", ids, edges, &cfg, clock)

	require.Len(t, result.Clusters, len(exhaustive.Clusters))
	for i := range exhaustive.Clusters {
		assert.Equal(t, exhaustive.Clusters[i].MemberIDs, result.Clusters[i].MemberIDs)
		assert.Equal(t, exhaustive.Clusters[i].ID, result.Clusters[i].ID)
	}
	assert.Equal(t, exhaustive.Singletons, result.Singletons)
	assert.Equal(t, len(edges), result.AcceptedPairs)
	assert.LessOrEqual(t, result.CandidatePairs, len(records)*(len(records)-1)/2)
}

func TestResolveBatch_RejectsInvalidRecords(t *testing.T) {
	records := []models.SourceRecord{
		{ID: "ok", Name: "Ada", IngestedAt: t1},
		{ID: "empty", Name: "  ", IngestedAt: t1},
		{ID: "ok", Email: "dup@example.com", IngestedAt: t1},
		{ID: "", Name: "No Id", IngestedAt: t1},
		{ID: "other", BatchID: "batch-2", Name: "Other", IngestedAt: t1},
	}

	result, err := newTestEngine(1).ResolveBatch(context.Background(), "batch-1", records, models.DefaultResolutionConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, result.Singletons)
	require.Len(t, result.Rejected, 4)
	assert.Equal(t, "empty", result.Rejected[0].RecordID)
	assert.Contains(t, result.Rejected[0].Reason, "no identifying field")
	assert.Contains(t, result.Rejected[1].Reason, "duplicate")
	assert.Contains(t, result.Rejected[3].Reason, "batch-2")
}

func TestResolveBatch_InvalidConfig(t *testing.T) {
	cfg := models.DefaultResolutionConfig()
	cfg.Fields[models.FieldName] = models.FieldRule{Weight: 1.5, Threshold: 0.9}

	_, err := newTestEngine(1).ResolveBatch(context.Background(), "batch-1", scenarioRecords("batch-1"), cfg)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestResolveBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(1).ResolveBatch(ctx, "batch-1", scenarioRecords("batch-1"), models.DefaultResolutionConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveBatch_ConcurrentBatches(t *testing.T) {
	engine := newTestEngine(2)
	results := make([]*models.ResolutionResult, 8)

	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			batchID := fmt.Sprintf("batch-%d", i)
			res, err := engine.ResolveBatch(context.Background(), batchID, scenarioRecords(batchID), models.DefaultResolutionConfig())
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("batch-%d", i), res.BatchID)
		assert.Len(t, res.Clusters, 2)
	}
	// cluster ids are scoped to their batch
	assert.NotEqual(t, results[0].Clusters[0].ID, results[1].Clusters[0].ID)
}

var (
	givenNames = []string{"jonathan", "jon", "maria", "mario", "li", "lee", "aaron", "erin", "zoë", "zoe"}
	surnames   = []string{"smith", "smyth", "garcia", "garza", "nguyen", "abbott", "abbot"}
	domains    = []string{"example.com", "example.org"}
)

func randomSourceRecords(rng *rand.Rand, n int) []models.SourceRecord {
	records := make([]models.SourceRecord, n)
	for i := range records {
		given := givenNames[rng.Intn(len(givenNames))]
		r := models.SourceRecord{
			ID:         fmt.Sprintf("rec-%03d", i),
			Name:       given + " " + surnames[rng.Intn(len(surnames))],
			IngestedAt: t1.Add(time.Duration(rng.Intn(48)) * time.Hour),
		}
		if rng.Intn(3) == 0 {
			r.Email = fmt.Sprintf("%s@%s", given, domains[rng.Intn(len(domains))])
		}
		if rng.Intn(4) == 0 {
			r.Phone = fmt.Sprintf("(555) 010-%04d", rng.Intn(30))
		}
		if rng.Intn(6) == 0 {
			r.OrganizationID = fmt.Sprintf("ORG-%d", rng.Intn(4))
		}
		records[i] = r
	}
	return records
}
