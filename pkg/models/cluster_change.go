package models

import "time"

// ClusterChangeType names a cluster lifecycle event published to downstream consumers
type ClusterChangeType string

const (
	ClusterChangeMerged      ClusterChangeType = "cluster.merged"
	ClusterChangeNeedsReview ClusterChangeType = "cluster.needs_review"
	ClusterChangeSplit       ClusterChangeType = "cluster.split"
	ClusterChangeDiscarded   ClusterChangeType = "cluster.discarded"
)

// ClusterChange describes one cluster state change. Golden is set for merged clusters only.
type ClusterChange struct {
	Type       ClusterChangeType `json:"type"`
	Cluster    Cluster           `json:"cluster"`
	Golden     *GoldenRecord     `json:"golden,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ChangeFor builds the change event matching a cluster's current status
func ChangeFor(cluster Cluster, golden *GoldenRecord, at time.Time) ClusterChange {
	change := ClusterChange{Cluster: cluster, OccurredAt: at}
	switch cluster.Status {
	case ClusterStatusMerged:
		change.Type = ClusterChangeMerged
		change.Golden = golden
	case ClusterStatusSplit:
		change.Type = ClusterChangeSplit
	default:
		change.Type = ClusterChangeNeedsReview
	}
	return change
}
