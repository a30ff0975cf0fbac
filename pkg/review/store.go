package review

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Store persists batches, source records, clusters and golden records.
//
// Lookups of unknown ids return the matching not-found error from pkg/errors,
// except FindActiveClusterByRecord and GetGoldenRecordByCluster which return
// nil when nothing matches.
type Store interface {
	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	UpdateBatch(ctx context.Context, batch *models.Batch) error
	ListBatches(ctx context.Context, opts models.ListOptions) (models.Page[models.Batch], error)

	// InsertRecords never overwrites a record that is already stored
	InsertRecords(ctx context.Context, records []models.SourceRecord) error
	GetRecord(ctx context.Context, recordID string) (*models.SourceRecord, error)
	// ListRecordsByIDs returns the stored records among recordIDs; unknown ids are skipped
	ListRecordsByIDs(ctx context.Context, recordIDs []string) ([]models.SourceRecord, error)
	ListRecordsByBatch(ctx context.Context, batchID string) ([]models.SourceRecord, error)

	SaveCluster(ctx context.Context, cluster *models.Cluster) error
	GetCluster(ctx context.Context, clusterID string) (*models.Cluster, error)
	FindActiveClusterByRecord(ctx context.Context, recordID string) (*models.Cluster, error)
	ListClustersByBatch(ctx context.Context, batchID string) ([]models.Cluster, error)
	ListClusters(ctx context.Context, opts models.ListOptions) (models.Page[models.Cluster], error)
	DeleteCluster(ctx context.Context, clusterID string) error

	SaveGoldenRecord(ctx context.Context, golden *models.GoldenRecord) error
	GetGoldenRecordByCluster(ctx context.Context, clusterID string) (*models.GoldenRecord, error)
	DeleteGoldenRecordByCluster(ctx context.Context, clusterID string) error
	ListGoldenRecords(ctx context.Context, opts models.ListOptions) (models.Page[models.GoldenRecord], error)
}
