// Package merging synthesizes golden records from merged clusters
package merging

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
)

// goldenNamespace seeds name-based golden record ids
var goldenNamespace = uuid.MustParse("9d4e2b61-7a3f-4c88-b1d5-6e0f2c7a4b19")

// GoldenRecordID derives the golden record id of a cluster
func GoldenRecordID(clusterID string) string {
	return uuid.NewSHA1(goldenNamespace, []byte("golden:"+clusterID)).String()
}

// Synthesizer builds golden records. Records are always synthesized from scratch
// from the cluster's current members.
type Synthesizer struct {
	fieldMerger *FieldMerger
}

// NewSynthesizer creates a new golden record synthesizer
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{fieldMerger: NewFieldMerger()}
}

// Synthesize builds the golden record of cluster from its member records.
// chosenRecordID, when set, must be a member and wins conflicting fields it has a value for.
func (s *Synthesizer) Synthesize(cluster *models.Cluster, records []models.SourceRecord, chosenRecordID string, now time.Time) (models.GoldenRecord, error) {
	byID := make(map[string]models.SourceRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	members := make([]models.SourceRecord, 0, len(cluster.MemberIDs))
	for _, id := range cluster.MemberIDs {
		r, ok := byID[id]
		if !ok {
			return models.GoldenRecord{}, errors.NewRecordNotFound(id)
		}
		members = append(members, r)
	}
	if chosenRecordID != "" && !cluster.HasMember(chosenRecordID) {
		return models.GoldenRecord{}, errors.NewRecordNotFound(chosenRecordID)
	}

	provenance := append([]string(nil), cluster.MemberIDs...)
	sort.Strings(provenance)

	golden := models.GoldenRecord{
		ID:            GoldenRecordID(cluster.ID),
		ClusterID:     cluster.ID,
		BatchID:       cluster.BatchID,
		Fields:        make(map[models.FieldType]string),
		FieldSources:  make(map[models.FieldType]string),
		Provenance:    provenance,
		SynthesizedAt: now,
	}

	for _, field := range models.AllFields {
		values := s.fieldMerger.collect(field, members)
		value, source, conflict := s.fieldMerger.MergeField(field, values, chosenRecordID)
		if value == "" {
			continue
		}
		golden.Fields[field] = value
		golden.FieldSources[field] = source
		if conflict != nil {
			golden.Conflicts = append(golden.Conflicts, *conflict)
		}
	}

	golden.Fingerprint = fingerprint.ForFields(golden.Fields)
	return golden, nil
}
