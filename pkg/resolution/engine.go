// Package resolution runs the entity-resolution pipeline for one batch:
// normalize, block, score, cluster, and synthesize golden records
package resolution

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// scoreChunk is how many candidate pairs one scoring task handles
const scoreChunk = 256

// Config contains configuration for the resolution engine
type Config struct {
	Workers int // Parallel normalization/scoring tasks (default: GOMAXPROCS)
}

// Engine resolves batches. It keeps no state between runs, so batches may be
// resolved concurrently.
type Engine struct {
	logger      ectologger.Logger
	matcher     *matching.Engine
	blocker     *blocking.Generator
	synthesizer *merging.Synthesizer
	workers     int
	now         func() time.Time
}

// NewEngine creates a new resolution engine
func NewEngine(logger ectologger.Logger, cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		logger:      logger,
		matcher:     matching.NewEngine(),
		blocker:     blocking.NewGenerator(),
		synthesizer: merging.NewSynthesizer(),
		workers:     workers,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for cluster and golden record timestamps
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Synthesizer exposes the golden record synthesizer used by the engine
func (e *Engine) Synthesizer() *merging.Synthesizer {
	return e.synthesizer
}

// ResolveBatch runs stages 1-6 over records. The configuration is validated and
// copied before the run starts; invalid records are excluded and reported in
// the result rather than failing the batch.
func (e *Engine) ResolveBatch(ctx context.Context, batchID string, records []models.SourceRecord, config models.ResolutionConfig) (*models.ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.ResolveBatch")
	defer span.End()

	cfg, err := models.NewResolutionConfig(config)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":     batchID,
		"record_count": len(records),
	})
	log.Debug("Resolving batch")

	result := &models.ResolutionResult{BatchID: batchID}
	accepted := e.validate(ctx, batchID, records, result)

	// dense run indices: position in accepted, which is sorted by id
	ids := make([]string, len(accepted))
	for i, r := range accepted {
		ids[i] = r.ID
	}

	normalized, err := e.normalize(ctx, accepted)
	if err != nil {
		return nil, err
	}

	candidates := e.blocker.Candidates(normalized, &cfg)
	result.CandidatePairs = len(candidates)

	edges, err := e.score(ctx, normalized, candidates, &cfg)
	if err != nil {
		return nil, err
	}
	result.AcceptedPairs = len(edges)

	now := e.now()
	built := clustering.Build(batchID, ids, edges, &cfg, now)
	result.Singletons = built.Singletons

	byID := make(map[string]models.SourceRecord, len(accepted))
	for _, r := range accepted {
		byID[r.ID] = r
	}

	for _, cluster := range built.Clusters {
		members := membersOf(cluster.MemberIDs, byID)
		cluster.RecordSetFingerprint = fingerprint.ForRecordSet(members)

		if cluster.Status == models.ClusterStatusAutoMerged {
			golden, err := e.synthesizer.Synthesize(&cluster, members, "", now)
			if err != nil {
				return nil, err
			}
			cluster.Status = models.ClusterStatusMerged
			result.GoldenRecords = append(result.GoldenRecords, golden)
		}
		result.Clusters = append(result.Clusters, cluster)
	}

	log.WithFields(map[string]any{
		"accepted_records": len(accepted),
		"rejected_records": len(result.Rejected),
		"candidate_pairs":  result.CandidatePairs,
		"accepted_pairs":   result.AcceptedPairs,
		"clusters":         len(result.Clusters),
		"golden_records":   len(result.GoldenRecords),
		"singletons":       len(result.Singletons),
	}).Info("Resolved batch")

	return result, nil
}

// validate drops records that cannot take part in the run and returns the rest sorted by id
func (e *Engine) validate(ctx context.Context, batchID string, records []models.SourceRecord, result *models.ResolutionResult) []models.SourceRecord {
	seen := make(map[string]bool, len(records))
	accepted := make([]models.SourceRecord, 0, len(records))

	for _, r := range records {
		var rejection error
		switch {
		case strings.TrimSpace(r.ID) == "":
			rejection = errors.NewRecordValidationError("", "record has no id")
		case seen[r.ID]:
			rejection = errors.NewRecordValidationError(r.ID, "duplicate record id %s", r.ID)
		case r.BatchID != "" && r.BatchID != batchID:
			rejection = errors.NewRecordValidationError(r.ID, "record %s belongs to batch %s", r.ID, r.BatchID)
		case !r.HasIdentifyingField():
			rejection = errors.NewRecordValidationError(r.ID, "record %s has no identifying field", r.ID)
		}

		if rejection != nil {
			e.logger.WithContext(ctx).WithError(rejection).WithFields(map[string]any{
				"batch_id":  batchID,
				"record_id": r.ID,
			}).Warn("Excluding record from resolution run")
			result.Rejected = append(result.Rejected, models.RecordRejection{RecordID: r.ID, Reason: rejection.Error()})
			continue
		}

		seen[r.ID] = true
		r.BatchID = batchID
		accepted = append(accepted, r)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].ID < accepted[j].ID })
	return accepted
}

// normalize derives the normalized records in parallel, preserving order
func (e *Engine) normalize(ctx context.Context, records []models.SourceRecord) ([]models.NormalizedRecord, error) {
	normalized := make([]models.NormalizedRecord, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(records); start += scoreChunk {
		end := min(start+scoreChunk, len(records))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				normalized[i] = normalizers.Record(records[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return normalized, nil
}

// score applies the merge decision to every candidate pair in parallel and
// returns the accepted edges in candidate order
func (e *Engine) score(ctx context.Context, normalized []models.NormalizedRecord, candidates []blocking.Pair, cfg *models.ResolutionConfig) ([]clustering.Edge, error) {
	decisions := make([]models.MatchPair, len(candidates))
	ok := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(candidates); start += scoreChunk {
		end := min(start+scoreChunk, len(candidates))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				p := candidates[i]
				decisions[i], ok[i] = e.matcher.ShouldMerge(&normalized[p.A], &normalized[p.B], cfg)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	edges := make([]clustering.Edge, 0)
	for i, accepted := range ok {
		if accepted {
			edges = append(edges, clustering.Edge{A: candidates[i].A, B: candidates[i].B, Pair: decisions[i]})
		}
	}
	return edges, nil
}

func membersOf(ids []string, byID map[string]models.SourceRecord) []models.SourceRecord {
	members := make([]models.SourceRecord, 0, len(ids))
	for _, id := range ids {
		members = append(members, byID[id])
	}
	return members
}
