// Package repositories composes the PostgreSQL repositories into the store used
// by the review workflow.
package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/batch"
	"github.com/Ramsey-B/clover/internal/repositories/cluster"
	"github.com/Ramsey-B/clover/internal/repositories/goldenrecord"
	"github.com/Ramsey-B/clover/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Store is the PostgreSQL backed review.Store
type Store struct {
	batches  *batch.Repository
	records  *sourcerecord.Repository
	clusters *cluster.Repository
	golden   *goldenrecord.Repository
}

// NewStore creates a Store over db
func NewStore(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		batches:  batch.NewRepository(db, logger),
		records:  sourcerecord.NewRepository(db, logger),
		clusters: cluster.NewRepository(db, logger),
		golden:   goldenrecord.NewRepository(db, logger),
	}
}

func (s *Store) CreateBatch(ctx context.Context, b *models.Batch) error {
	return s.batches.Create(ctx, b)
}

func (s *Store) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return s.batches.Get(ctx, batchID)
}

func (s *Store) UpdateBatch(ctx context.Context, b *models.Batch) error {
	return s.batches.Update(ctx, b)
}

func (s *Store) ListBatches(ctx context.Context, opts models.ListOptions) (models.Page[models.Batch], error) {
	return s.batches.List(ctx, opts)
}

func (s *Store) InsertRecords(ctx context.Context, records []models.SourceRecord) error {
	return s.records.InsertMany(ctx, records)
}

func (s *Store) GetRecord(ctx context.Context, recordID string) (*models.SourceRecord, error) {
	return s.records.Get(ctx, recordID)
}

func (s *Store) ListRecordsByIDs(ctx context.Context, recordIDs []string) ([]models.SourceRecord, error) {
	return s.records.ListByIDs(ctx, recordIDs)
}

func (s *Store) ListRecordsByBatch(ctx context.Context, batchID string) ([]models.SourceRecord, error) {
	return s.records.ListByBatch(ctx, batchID)
}

func (s *Store) SaveCluster(ctx context.Context, c *models.Cluster) error {
	return s.clusters.Save(ctx, c)
}

func (s *Store) GetCluster(ctx context.Context, clusterID string) (*models.Cluster, error) {
	return s.clusters.Get(ctx, clusterID)
}

func (s *Store) FindActiveClusterByRecord(ctx context.Context, recordID string) (*models.Cluster, error) {
	return s.clusters.FindActiveByRecord(ctx, recordID)
}

func (s *Store) ListClustersByBatch(ctx context.Context, batchID string) ([]models.Cluster, error) {
	return s.clusters.ListByBatch(ctx, batchID)
}

func (s *Store) ListClusters(ctx context.Context, opts models.ListOptions) (models.Page[models.Cluster], error) {
	return s.clusters.List(ctx, opts)
}

// DeleteCluster removes the cluster; the foreign key cascades to its golden record
func (s *Store) DeleteCluster(ctx context.Context, clusterID string) error {
	return s.clusters.Delete(ctx, clusterID)
}

func (s *Store) SaveGoldenRecord(ctx context.Context, g *models.GoldenRecord) error {
	return s.golden.Save(ctx, g)
}

func (s *Store) GetGoldenRecordByCluster(ctx context.Context, clusterID string) (*models.GoldenRecord, error) {
	return s.golden.GetByCluster(ctx, clusterID)
}

func (s *Store) DeleteGoldenRecordByCluster(ctx context.Context, clusterID string) error {
	return s.golden.DeleteByCluster(ctx, clusterID)
}

func (s *Store) ListGoldenRecords(ctx context.Context, opts models.ListOptions) (models.Page[models.GoldenRecord], error) {
	return s.golden.List(ctx, opts)
}
