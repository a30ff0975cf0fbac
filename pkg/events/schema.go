package events

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     models.ClusterChangeType `json:"event_type"`
	SchemaVersion string                   `json:"schema_version"`
	BatchID       string                   `json:"batch_id"`
	Timestamp     time.Time                `json:"timestamp"`
	CorrelationID string                   `json:"correlation_id,omitempty"`
}

// ClusterEvent is emitted whenever a cluster is merged, flagged for review,
// split or discarded
type ClusterEvent struct {
	BaseEvent
	ClusterID     string               `json:"cluster_id"`
	Status        models.ClusterStatus `json:"status"`
	MemberIDs     []string             `json:"member_ids"`
	Confidence    float64              `json:"confidence"`
	Locked        bool                 `json:"locked"`
	ReviewReasons []string             `json:"review_reasons,omitempty"`
	GoldenRecord  *GoldenRecordPayload `json:"golden_record,omitempty"`
}

// GoldenRecordPayload is the golden record carried by cluster.merged events
type GoldenRecordPayload struct {
	ID           string                      `json:"id"`
	Fields       map[models.FieldType]string `json:"fields"`
	FieldSources map[models.FieldType]string `json:"field_sources"`
	Conflicts    []ConflictInfo              `json:"conflicts,omitempty"`
}

// ConflictInfo describes a merge conflict
type ConflictInfo struct {
	Field         models.FieldType `json:"field"`
	Values        []string         `json:"values"`
	Sources       []string         `json:"sources"`
	Resolution    string           `json:"resolution"`
	ResolvedValue string           `json:"resolved_value"`
}

// NewClusterEvent builds the event published for a cluster change
func NewClusterEvent(change models.ClusterChange, correlationID string) ClusterEvent {
	c := change.Cluster
	event := ClusterEvent{
		BaseEvent: BaseEvent{
			EventType:     change.Type,
			SchemaVersion: SchemaVersion,
			BatchID:       c.BatchID,
			Timestamp:     change.OccurredAt.UTC(),
			CorrelationID: correlationID,
		},
		ClusterID:     c.ID,
		Status:        c.Status,
		MemberIDs:     c.MemberIDs,
		Confidence:    c.Confidence,
		Locked:        c.Locked,
		ReviewReasons: c.ReviewReasons,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if g := change.Golden; g != nil {
		payload := &GoldenRecordPayload{
			ID:           g.ID,
			Fields:       g.Fields,
			FieldSources: g.FieldSources,
		}
		for _, conflict := range g.Conflicts {
			payload.Conflicts = append(payload.Conflicts, ConflictInfo{
				Field:         conflict.Field,
				Values:        conflict.Values,
				Sources:       conflict.RecordIDs,
				Resolution:    conflict.Resolution,
				ResolvedValue: conflict.ResolvedValue,
			})
		}
		event.GoldenRecord = payload
	}
	return event
}
