package models

import "time"

// FieldConflict records distinct values seen for one field while synthesizing a golden record
type FieldConflict struct {
	Field          FieldType `json:"field"`
	Values         []string  `json:"values"`
	RecordIDs      []string  `json:"record_ids"`
	Resolution     string    `json:"resolution"`
	ResolvedValue  string    `json:"resolved_value"`
	ResolvedFromID string    `json:"resolved_from_id"`
}

// Golden record resolutions
const (
	ResolutionShared     = "shared_canonical"
	ResolutionMostRecent = "most_recent"
	ResolutionChosen     = "chosen_record"
)

// GoldenRecord is the canonical record synthesized for a MERGED cluster
type GoldenRecord struct {
	ID            string               `json:"id" db:"id"`
	ClusterID     string               `json:"cluster_id" db:"cluster_id"`
	BatchID       string               `json:"batch_id" db:"batch_id"`
	Fields        map[FieldType]string `json:"fields" db:"-"`
	FieldSources  map[FieldType]string `json:"field_sources" db:"-"` // field -> record id the value came from
	Provenance    []string             `json:"provenance" db:"-"`
	Conflicts     []FieldConflict      `json:"conflicts,omitempty" db:"-"`
	Fingerprint   string               `json:"fingerprint" db:"fingerprint"`
	SynthesizedAt time.Time            `json:"synthesized_at" db:"synthesized_at"`
}

// Field returns the synthesized value of f
func (g *GoldenRecord) Field(f FieldType) string {
	return g.Fields[f]
}
