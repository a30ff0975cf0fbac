// Package memory is an in-process store used when no database is configured
// and by tests. Values are copied on the way in and out.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

type Store struct {
	mu       sync.RWMutex
	batches  map[string]models.Batch
	records  map[string]models.SourceRecord
	clusters map[string]models.Cluster
	golden   map[string]models.GoldenRecord // keyed by cluster id
}

func NewStore() *Store {
	return &Store{
		batches:  make(map[string]models.Batch),
		records:  make(map[string]models.SourceRecord),
		clusters: make(map[string]models.Cluster),
		golden:   make(map[string]models.GoldenRecord),
	}
}

func (s *Store) CreateBatch(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = cloneBatch(*batch)
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, errors.NewBatchNotFound(batchID)
	}
	out := cloneBatch(b)
	return &out, nil
}

func (s *Store) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; !ok {
		return errors.NewBatchNotFound(batch.ID)
	}
	s.batches[batch.ID] = cloneBatch(*batch)
	return nil
}

func (s *Store) ListBatches(ctx context.Context, opts models.ListOptions) (models.Page[models.Batch], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		if opts.Status != "" && string(b.Status) != opts.Status {
			continue
		}
		items = append(items, cloneBatch(b))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return paginate(items, opts), nil
}

func (s *Store) InsertRecords(ctx context.Context, records []models.SourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.records[r.ID]; ok {
			continue
		}
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) ListRecordsByIDs(ctx context.Context, recordIDs []string) ([]models.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SourceRecord, 0)
	for _, id := range recordIDs {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetRecord(ctx context.Context, recordID string) (*models.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, errors.NewRecordNotFound(recordID)
	}
	return &r, nil
}

func (s *Store) ListRecordsByBatch(ctx context.Context, batchID string) ([]models.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SourceRecord, 0)
	for _, r := range s.records {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveCluster(ctx context.Context, cluster *models.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[cluster.ID] = cluster.Clone()
	return nil
}

func (s *Store) GetCluster(ctx context.Context, clusterID string) (*models.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[clusterID]
	if !ok {
		return nil, errors.NewClusterNotFound(clusterID)
	}
	out := c.Clone()
	return &out, nil
}

func (s *Store) FindActiveClusterByRecord(ctx context.Context, recordID string) (*models.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clusters {
		if c.Status.IsActive() && c.HasMember(recordID) {
			out := c.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListClustersByBatch(ctx context.Context, batchID string) ([]models.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Cluster, 0)
	for _, c := range s.clusters {
		if c.BatchID == batchID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListClusters(ctx context.Context, opts models.ListOptions) (models.Page[models.Cluster], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.Cluster, 0)
	for _, c := range s.clusters {
		if opts.BatchID != "" && c.BatchID != opts.BatchID {
			continue
		}
		if opts.Status != "" && string(c.Status) != opts.Status {
			continue
		}
		items = append(items, c.Clone())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return paginate(items, opts), nil
}

func (s *Store) DeleteCluster(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clusters, clusterID)
	delete(s.golden, clusterID)
	return nil
}

func (s *Store) SaveGoldenRecord(ctx context.Context, golden *models.GoldenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.golden[golden.ClusterID] = cloneGolden(*golden)
	return nil
}

func (s *Store) GetGoldenRecordByCluster(ctx context.Context, clusterID string) (*models.GoldenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.golden[clusterID]
	if !ok {
		return nil, nil
	}
	out := cloneGolden(g)
	return &out, nil
}

func (s *Store) DeleteGoldenRecordByCluster(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.golden, clusterID)
	return nil
}

func (s *Store) ListGoldenRecords(ctx context.Context, opts models.ListOptions) (models.Page[models.GoldenRecord], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	items := make([]models.GoldenRecord, 0)
	for _, g := range s.golden {
		if opts.BatchID != "" && g.BatchID != opts.BatchID {
			continue
		}
		if search != "" && !matchesSearch(g, search) {
			continue
		}
		items = append(items, cloneGolden(g))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return paginate(items, opts), nil
}

func matchesSearch(g models.GoldenRecord, search string) bool {
	for _, f := range []models.FieldType{models.FieldName, models.FieldEmail, models.FieldOrganization} {
		if strings.Contains(strings.ToLower(g.Fields[f]), search) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, opts models.ListOptions) models.Page[T] {
	opts = opts.Normalize()
	page := models.Page[T]{
		Items:      []T{},
		TotalCount: len(items),
		Page:       opts.Page,
		PageSize:   opts.PageSize,
	}
	start := opts.Offset()
	if start >= len(items) {
		return page
	}
	end := min(start+opts.PageSize, len(items))
	page.Items = items[start:end]
	return page
}

func cloneBatch(b models.Batch) models.Batch {
	out := b
	out.Config = b.Config.Clone()
	if b.ResolvedAt != nil {
		t := *b.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

func cloneGolden(g models.GoldenRecord) models.GoldenRecord {
	out := g
	out.Fields = make(map[models.FieldType]string, len(g.Fields))
	for k, v := range g.Fields {
		out.Fields[k] = v
	}
	out.FieldSources = make(map[models.FieldType]string, len(g.FieldSources))
	for k, v := range g.FieldSources {
		out.FieldSources[k] = v
	}
	out.Provenance = append([]string(nil), g.Provenance...)
	out.Conflicts = append([]models.FieldConflict(nil), g.Conflicts...)
	return out
}
