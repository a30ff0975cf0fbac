// Package review applies reviewer decisions to stored clusters and re-runs
// resolution for whole batches.
package review

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// maxSplitAttempts bounds how often SplitRecord follows a record that moved
// to another cluster while the command was queued
const maxSplitAttempts = 8

// Workflow serializes review commands per cluster and persists their results
type Workflow struct {
	log      ectologger.Logger
	store    Store
	engine   *resolution.Engine
	notifier Notifier
	queue    *commandQueue
	locks    *batchLocks
	now      func() time.Time
}

// NewWorkflow creates a review workflow. notifier may be nil.
func NewWorkflow(log ectologger.Logger, store Store, engine *resolution.Engine, notifier Notifier) *Workflow {
	if notifier == nil {
		notifier = Notifiers{}
	}
	return &Workflow{
		log:      log,
		store:    store,
		engine:   engine,
		notifier: notifier,
		queue:    newCommandQueue(),
		locks:    newBatchLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for timestamps
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// SubmitBatch stores a new batch with its records and runs its first resolution.
// Records without an id get a generated one. An empty batchID is generated too.
func (w *Workflow) SubmitBatch(ctx context.Context, batchID string, records []models.SourceRecord, cfg models.ResolutionConfig) (*models.Batch, *models.ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.SubmitBatch")
	defer span.End()

	config, err := models.NewResolutionConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}

	log := w.log.WithContext(ctx).WithFields(map[string]any{
		"batch_id":     batchID,
		"record_count": len(records),
	})

	lock := w.locks.get(batchID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := w.store.GetBatch(ctx, batchID); err == nil && existing != nil {
		return nil, nil, httperror.NewHTTPError(http.StatusConflict, "batch "+batchID+" already exists")
	} else if err != nil && !errors.IsNotFound(err) {
		return nil, nil, err
	}

	now := w.now()
	stored := make([]models.SourceRecord, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.BatchID == "" {
			r.BatchID = batchID
		}
		if r.IngestedAt.IsZero() {
			r.IngestedAt = now
		}
		stored[i] = r
	}

	stored, rejected, err := w.withoutClaimedRecords(ctx, batchID, stored)
	if err != nil {
		log.WithError(err).Error("Failed to look up existing records")
		return nil, nil, err
	}

	batch := &models.Batch{
		ID:        batchID,
		Status:    models.BatchStatusPending,
		Config:    config,
		CreatedAt: now,
	}
	if err := w.store.CreateBatch(ctx, batch); err != nil {
		log.WithError(err).Error("Failed to create batch")
		return nil, nil, err
	}

	result, err := w.resolve(ctx, batch, stored, nil)
	if err != nil {
		return batch, nil, err
	}

	result.Rejected = append(rejected, result.Rejected...)

	stored = accepted(stored, result)
	if err := w.store.InsertRecords(ctx, stored); err != nil {
		log.WithError(err).Error("Failed to store batch records")
		return batch, nil, w.fail(ctx, batch, err)
	}
	if err := w.persist(ctx, result, nil); err != nil {
		return batch, nil, w.fail(ctx, batch, err)
	}
	if err := w.finish(ctx, batch, len(stored), nil); err != nil {
		return batch, nil, err
	}

	log.WithFields(map[string]any{"clusters": len(result.Clusters)}).Info("Submitted batch")
	return batch, result, nil
}

// AcceptMerge confirms a cluster as MERGED, locks it against reindexing and
// re-synthesizes its golden record with chosenRecordID winning conflicts.
func (w *Workflow) AcceptMerge(ctx context.Context, clusterID, chosenRecordID string) (*models.Cluster, *models.GoldenRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.AcceptMerge")
	defer span.End()

	cluster, err := w.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, nil, err
	}

	lock := w.locks.get(cluster.BatchID)
	lock.RLock()
	defer lock.RUnlock()

	var (
		merged *models.Cluster
		golden *models.GoldenRecord
	)
	err = w.queue.Do(ctx, clusterID, func(ctx context.Context) error {
		var cmdErr error
		merged, golden, cmdErr = w.acceptMerge(ctx, clusterID, chosenRecordID)
		return cmdErr
	})
	if err != nil {
		return nil, nil, err
	}
	return merged, golden, nil
}

func (w *Workflow) acceptMerge(ctx context.Context, clusterID, chosenRecordID string) (*models.Cluster, *models.GoldenRecord, error) {
	log := w.log.WithContext(ctx).WithFields(map[string]any{
		"cluster_id":       clusterID,
		"chosen_record_id": chosenRecordID,
	})

	cluster, err := w.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, nil, err
	}
	if !cluster.Status.CanTransition(models.ClusterStatusMerged) {
		return nil, nil, errors.NewInvalidTransition(clusterID, string(cluster.Status), string(models.ClusterStatusMerged))
	}
	if chosenRecordID != "" && !cluster.HasMember(chosenRecordID) {
		return nil, nil, errors.NewRecordNotFound(chosenRecordID)
	}

	members, err := w.members(ctx, cluster.BatchID, cluster.MemberIDs)
	if err != nil {
		return nil, nil, err
	}

	now := w.now()
	golden, err := w.engine.Synthesizer().Synthesize(cluster, members, chosenRecordID, now)
	if err != nil {
		return nil, nil, err
	}

	cluster.Status = models.ClusterStatusMerged
	cluster.Locked = true
	cluster.ChosenRecordID = chosenRecordID
	cluster.RecordSetFingerprint = fingerprint.ForRecordSet(members)
	cluster.UpdatedAt = now

	if err := w.store.SaveCluster(ctx, cluster); err != nil {
		log.WithError(err).Error("Failed to save accepted cluster")
		return nil, nil, err
	}
	if err := w.store.SaveGoldenRecord(ctx, &golden); err != nil {
		log.WithError(err).Error("Failed to save golden record")
		return nil, nil, err
	}

	w.notify(ctx, models.ChangeFor(*cluster, &golden, now))
	log.Info("Accepted cluster merge")
	return cluster, &golden, nil
}

// SplitRecord removes a record from its active cluster. The cluster becomes
// SPLIT, the remaining members are re-clustered from the stored edges that do
// not touch the record, and the record is left unclustered. A record with no
// active cluster is left as it is.
func (w *Workflow) SplitRecord(ctx context.Context, recordID string) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.SplitRecord")
	defer span.End()

	record, err := w.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	lock := w.locks.get(record.BatchID)
	lock.RLock()
	defer lock.RUnlock()

	for attempt := 0; attempt < maxSplitAttempts; attempt++ {
		cluster, err := w.store.FindActiveClusterByRecord(ctx, recordID)
		if err != nil {
			return nil, err
		}
		if cluster == nil {
			w.log.WithContext(ctx).WithField("record_id", recordID).Debug("Record has no active cluster; nothing to split")
			return nil, nil
		}

		var (
			moved   bool
			rebuilt []models.Cluster
		)
		err = w.queue.Do(ctx, cluster.ID, func(ctx context.Context) error {
			current, err := w.store.GetCluster(ctx, cluster.ID)
			if err != nil {
				return err
			}
			if !current.Status.IsActive() || !current.HasMember(recordID) {
				moved = true
				return nil
			}
			rebuilt, err = w.split(ctx, current, recordID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !moved {
			return rebuilt, nil
		}
	}

	return nil, errors.NewInvalidTransition(recordID, "active", string(models.ClusterStatusSplit))
}

func (w *Workflow) split(ctx context.Context, cluster *models.Cluster, recordID string) ([]models.Cluster, error) {
	log := w.log.WithContext(ctx).WithFields(map[string]any{
		"cluster_id": cluster.ID,
		"record_id":  recordID,
	})

	if !cluster.Status.CanTransition(models.ClusterStatusSplit) {
		return nil, errors.NewInvalidTransition(cluster.ID, string(cluster.Status), string(models.ClusterStatusSplit))
	}

	batch, err := w.store.GetBatch(ctx, cluster.BatchID)
	if err != nil {
		return nil, err
	}

	remaining := make([]string, 0, cluster.Size()-1)
	for _, id := range cluster.MemberIDs {
		if id != recordID {
			remaining = append(remaining, id)
		}
	}

	now := w.now()
	rebuilt := clustering.Recluster(cluster.BatchID, remaining, cluster.Edges, &batch.Config, now)

	members, err := w.members(ctx, cluster.BatchID, remaining)
	if err != nil {
		return nil, err
	}
	result := &models.ResolutionResult{BatchID: cluster.BatchID, Singletons: rebuilt.Singletons}
	for _, c := range rebuilt.Clusters {
		c.RecordSetFingerprint = fingerprint.ForRecordSet(subset(members, c.MemberIDs))
		if c.Status == models.ClusterStatusAutoMerged {
			golden, err := w.engine.Synthesizer().Synthesize(&c, subset(members, c.MemberIDs), "", now)
			if err != nil {
				return nil, err
			}
			c.Status = models.ClusterStatusMerged
			result.GoldenRecords = append(result.GoldenRecords, golden)
		}
		result.Clusters = append(result.Clusters, c)
	}

	if err := w.store.DeleteGoldenRecordByCluster(ctx, cluster.ID); err != nil {
		log.WithError(err).Error("Failed to delete golden record of split cluster")
		return nil, err
	}
	cluster.Status = models.ClusterStatusSplit
	cluster.Locked = false
	cluster.UpdatedAt = now
	if err := w.store.SaveCluster(ctx, cluster); err != nil {
		log.WithError(err).Error("Failed to save split cluster")
		return nil, err
	}
	w.notify(ctx, models.ChangeFor(*cluster, nil, now))

	if err := w.persist(ctx, result, nil); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"clusters":   len(result.Clusters),
		"singletons": len(result.Singletons),
	}).Info("Split record from cluster")
	return result.Clusters, nil
}

// ReindexBatch re-runs resolution for a batch. Locked MERGED clusters whose
// member records are unchanged are preserved and their members sit out the
// run; every other prior cluster of the batch is replaced.
func (w *Workflow) ReindexBatch(ctx context.Context, batchID string) (*models.ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.ReindexBatch")
	defer span.End()

	log := w.log.WithContext(ctx).WithField("batch_id", batchID)

	lock := w.locks.get(batchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := w.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	records, err := w.store.ListRecordsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	prior, err := w.store.ListClustersByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.SourceRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	preserved := make(map[string]bool)
	excluded := make(map[string]bool)
	for _, c := range prior {
		if c.Status != models.ClusterStatusMerged || !c.Locked {
			continue
		}
		members, ok := lookup(byID, c.MemberIDs)
		if !ok || fingerprint.HasChanged(c.RecordSetFingerprint, fingerprint.ForRecordSet(members)) {
			continue
		}
		preserved[c.ID] = true
		for _, id := range c.MemberIDs {
			excluded[id] = true
		}
	}

	pool := make([]models.SourceRecord, 0, len(records))
	for _, r := range records {
		if !excluded[r.ID] {
			pool = append(pool, r)
		}
	}

	result, err := w.resolve(ctx, batch, pool, prior)
	if err != nil {
		return nil, err
	}

	next := make(map[string]bool, len(result.Clusters))
	for _, c := range result.Clusters {
		next[c.ID] = true
	}

	discarded := 0
	for _, c := range prior {
		if preserved[c.ID] || next[c.ID] {
			continue
		}
		if err := w.store.DeleteGoldenRecordByCluster(ctx, c.ID); err != nil {
			return nil, w.fail(ctx, batch, err)
		}
		if err := w.store.DeleteCluster(ctx, c.ID); err != nil {
			return nil, w.fail(ctx, batch, err)
		}
		discarded++
		if c.Status.IsActive() {
			change := models.ChangeFor(c, nil, w.now())
			change.Type = models.ClusterChangeDiscarded
			w.notify(ctx, change)
		}
	}

	if err := w.persist(ctx, result, prior); err != nil {
		return nil, w.fail(ctx, batch, err)
	}
	if err := w.finish(ctx, batch, len(records), preserved); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"preserved": len(preserved),
		"discarded": discarded,
		"clusters":  len(result.Clusters),
	}).Info("Reindexed batch")
	return result, nil
}

// resolve marks the batch RESOLVING and runs the engine over records
func (w *Workflow) resolve(ctx context.Context, batch *models.Batch, records []models.SourceRecord, prior []models.Cluster) (*models.ResolutionResult, error) {
	batch.Status = models.BatchStatusResolving
	if err := w.store.UpdateBatch(ctx, batch); err != nil {
		return nil, err
	}

	result, err := w.engine.ResolveBatch(ctx, batch.ID, records, batch.Config)
	if err != nil {
		return nil, w.fail(ctx, batch, err)
	}

	// a cluster rebuilt with the same members keeps its creation time
	for i := range result.Clusters {
		c := &result.Clusters[i]
		for _, p := range prior {
			if p.ID == c.ID && !p.CreatedAt.IsZero() {
				c.CreatedAt = p.CreatedAt
			}
		}
	}
	return result, nil
}

// persist saves the clusters and golden records of a run and notifies about
// clusters whose status changed
func (w *Workflow) persist(ctx context.Context, result *models.ResolutionResult, prior []models.Cluster) error {
	before := make(map[string]models.ClusterStatus, len(prior))
	for _, c := range prior {
		before[c.ID] = c.Status
	}

	for i := range result.Clusters {
		c := &result.Clusters[i]
		if err := w.store.SaveCluster(ctx, c); err != nil {
			w.log.WithContext(ctx).WithError(err).WithField("cluster_id", c.ID).Error("Failed to save cluster")
			return err
		}

		golden, hasGolden := result.GoldenRecordFor(c.ID)
		if hasGolden {
			if err := w.store.SaveGoldenRecord(ctx, golden); err != nil {
				w.log.WithContext(ctx).WithError(err).WithField("cluster_id", c.ID).Error("Failed to save golden record")
				return err
			}
		} else if err := w.store.DeleteGoldenRecordByCluster(ctx, c.ID); err != nil {
			return err
		}

		if status, ok := before[c.ID]; ok && status == c.Status {
			continue
		}
		w.notify(ctx, models.ChangeFor(*c, golden, c.UpdatedAt))
	}
	return nil
}

// finish records the outcome of a successful run on the batch
func (w *Workflow) finish(ctx context.Context, batch *models.Batch, recordCount int, preserved map[string]bool) error {
	clusters, err := w.store.ListClustersByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	active := 0
	for _, c := range clusters {
		if c.Status.IsActive() {
			active++
		}
	}

	resolvedAt := w.now()
	batch.Status = models.BatchStatusResolved
	batch.RecordCount = recordCount
	batch.ClusterCount = active
	batch.ResolvedAt = &resolvedAt
	return w.store.UpdateBatch(ctx, batch)
}

// fail marks the batch FAILED and returns cause
func (w *Workflow) fail(ctx context.Context, batch *models.Batch, cause error) error {
	w.log.WithContext(ctx).WithError(cause).WithField("batch_id", batch.ID).Error("Batch resolution failed")
	batch.Status = models.BatchStatusFailed
	if err := w.store.UpdateBatch(ctx, batch); err != nil {
		w.log.WithContext(ctx).WithError(err).WithField("batch_id", batch.ID).Error("Failed to mark batch failed")
	}
	return cause
}

func (w *Workflow) notify(ctx context.Context, change models.ClusterChange) {
	if err := w.notifier.Notify(ctx, change); err != nil {
		w.log.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cluster_id": change.Cluster.ID,
			"change":     string(change.Type),
		}).Warn("Failed to publish cluster change")
	}
}

// members loads the records of a batch restricted to ids, in id order
func (w *Workflow) members(ctx context.Context, batchID string, ids []string) ([]models.SourceRecord, error) {
	records, err := w.store.ListRecordsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.SourceRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, errors.NewRecordNotFound(id)
		}
	}
	members, _ := lookup(byID, ids)
	return members, nil
}

// accepted keeps the first occurrence of every record the run did not reject
// withoutClaimedRecords drops records whose id is already stored under another
// batch. Stored records belong to exactly one batch and are never rewritten.
func (w *Workflow) withoutClaimedRecords(ctx context.Context, batchID string, records []models.SourceRecord) ([]models.SourceRecord, []models.RecordRejection, error) {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	existing, err := w.store.ListRecordsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(existing) == 0 {
		return records, nil, nil
	}

	owner := make(map[string]string, len(existing))
	for _, r := range existing {
		owner[r.ID] = r.BatchID
	}

	var rejected []models.RecordRejection
	kept := make([]models.SourceRecord, 0, len(records))
	for _, r := range records {
		other, ok := owner[r.ID]
		if !ok {
			kept = append(kept, r)
			continue
		}
		rejection := errors.NewRecordValidationError(r.ID, "record %s already belongs to batch %s", r.ID, other)
		w.log.WithContext(ctx).WithError(rejection).WithFields(map[string]any{
			"batch_id":  batchID,
			"record_id": r.ID,
		}).Warn("Excluding record from resolution run")
		rejected = append(rejected, models.RecordRejection{RecordID: r.ID, Reason: rejection.Error()})
	}
	return kept, rejected, nil
}

func accepted(records []models.SourceRecord, result *models.ResolutionResult) []models.SourceRecord {
	ok := make(map[string]bool, len(records))
	for _, id := range result.Singletons {
		ok[id] = true
	}
	for _, c := range result.Clusters {
		for _, id := range c.MemberIDs {
			ok[id] = true
		}
	}

	out := make([]models.SourceRecord, 0, len(ok))
	for _, r := range records {
		if ok[r.ID] {
			out = append(out, r)
			delete(ok, r.ID)
		}
	}
	return out
}

func lookup(byID map[string]models.SourceRecord, ids []string) ([]models.SourceRecord, bool) {
	out := make([]models.SourceRecord, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, false
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, true
}

func subset(records []models.SourceRecord, ids []string) []models.SourceRecord {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]models.SourceRecord, 0, len(ids))
	for _, r := range records {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out
}
