package review

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// GetBatch returns a batch by id
func (w *Workflow) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.GetBatch")
	defer span.End()

	return w.store.GetBatch(ctx, batchID)
}

// ListBatches returns a page of batches, optionally filtered by status
func (w *Workflow) ListBatches(ctx context.Context, opts models.ListOptions) (models.Page[models.Batch], error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.ListBatches")
	defer span.End()

	return w.store.ListBatches(ctx, opts.Normalize())
}

// ClusterView is a cluster with its golden record, when it has one
type ClusterView struct {
	models.Cluster
	GoldenRecord *models.GoldenRecord `json:"golden_record,omitempty"`
}

// GetCluster returns a cluster and its golden record
func (w *Workflow) GetCluster(ctx context.Context, clusterID string) (*ClusterView, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.GetCluster")
	defer span.End()

	cluster, err := w.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	golden, err := w.store.GetGoldenRecordByCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	return &ClusterView{Cluster: *cluster, GoldenRecord: golden}, nil
}

// ListClusters returns a page of clusters filtered by batch and status
func (w *Workflow) ListClusters(ctx context.Context, opts models.ListOptions) (models.Page[models.Cluster], error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.ListClusters")
	defer span.End()

	return w.store.ListClusters(ctx, opts.Normalize())
}

// ListGoldenRecords returns a page of golden records. opts.Search matches
// name, email or organization case-insensitively.
func (w *Workflow) ListGoldenRecords(ctx context.Context, opts models.ListOptions) (models.Page[models.GoldenRecord], error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.ListGoldenRecords")
	defer span.End()

	return w.store.ListGoldenRecords(ctx, opts.Normalize())
}
