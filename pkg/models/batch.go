package models

import "time"

// BatchStatus is the resolution state of an ingested batch
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusResolving BatchStatus = "RESOLVING"
	BatchStatusResolved  BatchStatus = "RESOLVED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// ParseBatchStatus validates a batch status string
func ParseBatchStatus(s string) (BatchStatus, bool) {
	switch st := BatchStatus(s); st {
	case BatchStatusPending, BatchStatusResolving, BatchStatusResolved, BatchStatusFailed:
		return st, true
	}
	return "", false
}

// Batch is a set of records ingested together and resolved as one candidate pool
type Batch struct {
	ID           string           `json:"id" db:"id"`
	Status       BatchStatus      `json:"status" db:"status"`
	Config       ResolutionConfig `json:"config" db:"-"`
	RecordCount  int              `json:"record_count" db:"record_count"`
	ClusterCount int              `json:"cluster_count" db:"cluster_count"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
}

// ResolutionResult is the output of one resolution run
type ResolutionResult struct {
	BatchID        string            `json:"batch_id"`
	Clusters       []Cluster         `json:"clusters"`
	GoldenRecords  []GoldenRecord    `json:"golden_records"`
	Singletons     []string          `json:"singletons"`
	Rejected       []RecordRejection `json:"rejected,omitempty"`
	CandidatePairs int               `json:"candidate_pairs"`
	AcceptedPairs  int               `json:"accepted_pairs"`
}

// GoldenRecordFor returns the golden record synthesized for clusterID, if any
func (r *ResolutionResult) GoldenRecordFor(clusterID string) (*GoldenRecord, bool) {
	for i := range r.GoldenRecords {
		if r.GoldenRecords[i].ClusterID == clusterID {
			return &r.GoldenRecords[i], true
		}
	}
	return nil, false
}

// ClusterOf returns the cluster containing recordID, if any
func (r *ResolutionResult) ClusterOf(recordID string) (*Cluster, bool) {
	for i := range r.Clusters {
		if r.Clusters[i].HasMember(recordID) {
			return &r.Clusters[i], true
		}
	}
	return nil, false
}

// Page is a paginated slice of results
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
}

// ListOptions are common paging and filter options for list operations
type ListOptions struct {
	Page     int
	PageSize int
	Status   string
	BatchID  string
	Search   string
}

// Normalize applies paging defaults
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 50
	}
	if o.PageSize > 500 {
		o.PageSize = 500
	}
	return o
}

// Offset returns the zero-based item offset of the page
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}
