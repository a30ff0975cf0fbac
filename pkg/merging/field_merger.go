package merging

import (
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// fieldValue is one member's contribution to a golden record field
type fieldValue struct {
	Raw        string
	Normalized string
	RecordID   string
	IngestedAt time.Time
}

// FieldMerger handles field-level merge logic
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// collect gathers the comparable values of field from records, skipping values
// that normalize to nothing
func (m *FieldMerger) collect(field models.FieldType, records []models.SourceRecord) []fieldValue {
	values := make([]fieldValue, 0, len(records))
	for _, r := range records {
		raw := r.Field(field)
		normalized, ok := normalizers.Normalize(field, raw)
		if !ok {
			continue
		}
		values = append(values, fieldValue{
			Raw:        raw,
			Normalized: normalized,
			RecordID:   r.ID,
			IngestedAt: r.IngestedAt,
		})
	}
	return values
}

// MergeField selects the golden value of one field.
//
// When every value agrees after normalization the shared canonical value is used.
// Otherwise the raw value of chosenRecordID wins if it has one, else the raw
// value of the most recently ingested record (ties go to the greater record id).
// It returns the value, the record it came from, and a conflict when values disagree.
func (m *FieldMerger) MergeField(field models.FieldType, values []fieldValue, chosenRecordID string) (string, string, *models.FieldConflict) {
	if len(values) == 0 {
		return "", "", nil
	}

	sorted := make([]fieldValue, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return isNewer(sorted[i], sorted[j])
	})
	newest := sorted[0]

	if m.agree(sorted) {
		return newest.Normalized, newest.RecordID, nil
	}

	conflict := m.detectConflict(field, values)
	winner := newest
	conflict.Resolution = models.ResolutionMostRecent
	for _, v := range sorted {
		if chosenRecordID != "" && v.RecordID == chosenRecordID {
			winner = v
			conflict.Resolution = models.ResolutionChosen
			break
		}
	}

	conflict.ResolvedValue = winner.Raw
	conflict.ResolvedFromID = winner.RecordID
	return winner.Raw, winner.RecordID, conflict
}

func (m *FieldMerger) agree(values []fieldValue) bool {
	for _, v := range values[1:] {
		if v.Normalized != values[0].Normalized {
			return false
		}
	}
	return true
}

// detectConflict lists every contributing value ordered by record id
func (m *FieldMerger) detectConflict(field models.FieldType, values []fieldValue) *models.FieldConflict {
	byID := make([]fieldValue, len(values))
	copy(byID, values)
	sort.Slice(byID, func(i, j int) bool { return byID[i].RecordID < byID[j].RecordID })

	conflict := &models.FieldConflict{
		Field:     field,
		Values:    make([]string, len(byID)),
		RecordIDs: make([]string, len(byID)),
	}
	for i, v := range byID {
		conflict.Values[i] = v.Raw
		conflict.RecordIDs[i] = v.RecordID
	}
	return conflict
}

// isNewer orders values by ingestion time, newest first, then by record id descending
func isNewer(a, b fieldValue) bool {
	if !a.IngestedAt.Equal(b.IngestedAt) {
		return a.IngestedAt.After(b.IngestedAt)
	}
	return a.RecordID > b.RecordID
}
