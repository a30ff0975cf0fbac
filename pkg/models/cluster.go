package models

import (
	"time"
)

// ClusterStatus is a state of the cluster lifecycle
type ClusterStatus string

const (
	ClusterStatusCandidate   ClusterStatus = "CANDIDATE"
	ClusterStatusAutoMerged  ClusterStatus = "AUTO_MERGED"
	ClusterStatusNeedsReview ClusterStatus = "NEEDS_REVIEW"
	ClusterStatusMerged      ClusterStatus = "MERGED"
	ClusterStatusSplit       ClusterStatus = "SPLIT"
)

var clusterTransitions = map[ClusterStatus][]ClusterStatus{
	ClusterStatusCandidate:   {ClusterStatusAutoMerged, ClusterStatusNeedsReview},
	ClusterStatusAutoMerged:  {ClusterStatusMerged},
	ClusterStatusNeedsReview: {ClusterStatusMerged, ClusterStatusSplit},
	ClusterStatusMerged:      {ClusterStatusMerged, ClusterStatusSplit},
}

// CanTransition reports whether a cluster may move from s to next
func (s ClusterStatus) CanTransition(next ClusterStatus) bool {
	for _, allowed := range clusterTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive reports whether the cluster still owns its members
func (s ClusterStatus) IsActive() bool {
	return s != ClusterStatusSplit
}

// ParseClusterStatus validates a status string, e.g. from a query filter
func ParseClusterStatus(s string) (ClusterStatus, bool) {
	switch st := ClusterStatus(s); st {
	case ClusterStatusCandidate, ClusterStatusAutoMerged, ClusterStatusNeedsReview, ClusterStatusMerged, ClusterStatusSplit:
		return st, true
	}
	return "", false
}

// Review reasons recorded on NEEDS_REVIEW clusters
const (
	ReviewReasonSizeCap       = "cluster exceeds auto-merge size cap"
	ReviewReasonLowConfidence = "cluster bridged by an edge below auto-merge confidence"
	ReviewReasonConflict      = "conflicting exact-match signals"
	ReviewReasonReviewEdge    = "cluster contains a review-band edge"
)

// Cluster is a set of records joined transitively by accepted pairs
type Cluster struct {
	ID                   string        `json:"id" db:"id"`
	BatchID              string        `json:"batch_id" db:"batch_id"`
	MemberIDs            []string      `json:"member_ids" db:"-"`
	Confidence           float64       `json:"confidence" db:"confidence"`
	Status               ClusterStatus `json:"status" db:"status"`
	ReviewReasons        []string      `json:"review_reasons,omitempty" db:"-"`
	Edges                []MatchPair   `json:"edges" db:"-"`
	Locked               bool          `json:"locked" db:"locked"`
	ChosenRecordID       string        `json:"chosen_record_id,omitempty" db:"chosen_record_id"`
	RecordSetFingerprint string        `json:"record_set_fingerprint" db:"record_set_fingerprint"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// Size returns the member count
func (c *Cluster) Size() int {
	return len(c.MemberIDs)
}

// HasMember reports whether recordID belongs to the cluster
func (c *Cluster) HasMember(recordID string) bool {
	for _, id := range c.MemberIDs {
		if id == recordID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with c
func (c Cluster) Clone() Cluster {
	out := c
	out.MemberIDs = append([]string(nil), c.MemberIDs...)
	out.ReviewReasons = append([]string(nil), c.ReviewReasons...)
	out.Edges = append([]MatchPair(nil), c.Edges...)
	return out
}
