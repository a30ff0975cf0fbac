package models

import (
	"strings"
	"time"
)

// FieldType names a comparable attribute of a source record
type FieldType string

const (
	FieldName           FieldType = "name"
	FieldEmail          FieldType = "email"
	FieldPhone          FieldType = "phone"
	FieldAddress        FieldType = "address"
	FieldOrganization   FieldType = "organization"
	FieldOrganizationID FieldType = "organization_id"
)

// ScoredFields are the fields that take part in weighted similarity, in scoring order
var ScoredFields = []FieldType{FieldName, FieldEmail, FieldPhone, FieldAddress, FieldOrganization}

// AllFields are every field a record can carry, in a fixed order
var AllFields = []FieldType{FieldName, FieldEmail, FieldPhone, FieldAddress, FieldOrganization, FieldOrganizationID}

// IsScored reports whether the field contributes to the weighted score
func (f FieldType) IsScored() bool {
	for _, s := range ScoredFields {
		if s == f {
			return true
		}
	}
	return false
}

// SourceRecord is an ingested record. It is owned by its batch and never mutated.
type SourceRecord struct {
	ID               string    `json:"id" db:"id"`
	BatchID          string    `json:"batch_id" db:"batch_id"`
	Name             string    `json:"name,omitempty" db:"name"`
	Email            string    `json:"email,omitempty" db:"email"`
	Phone            string    `json:"phone,omitempty" db:"phone"`
	Address          string    `json:"address,omitempty" db:"address"`
	OrganizationName string    `json:"organization_name,omitempty" db:"organization_name"`
	OrganizationID   string    `json:"organization_id,omitempty" db:"organization_id"`
	IngestedAt       time.Time `json:"ingested_at" db:"ingested_at"`
}

// Field returns the raw value of a field
func (r SourceRecord) Field(f FieldType) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldEmail:
		return r.Email
	case FieldPhone:
		return r.Phone
	case FieldAddress:
		return r.Address
	case FieldOrganization:
		return r.OrganizationName
	case FieldOrganizationID:
		return r.OrganizationID
	default:
		return ""
	}
}

// Values returns the raw non-blank values keyed by field
func (r SourceRecord) Values() map[FieldType]string {
	values := make(map[FieldType]string, len(AllFields))
	for _, f := range AllFields {
		if v := r.Field(f); strings.TrimSpace(v) != "" {
			values[f] = v
		}
	}
	return values
}

// HasIdentifyingField reports whether at least one field carries a value
func (r SourceRecord) HasIdentifyingField() bool {
	for _, f := range AllFields {
		if strings.TrimSpace(r.Field(f)) != "" {
			return true
		}
	}
	return false
}

// NormalizedRecord holds the canonical comparison form of a SourceRecord.
// It is derived on demand and never treated as a source of truth.
type NormalizedRecord struct {
	ID         string               `json:"id"`
	IngestedAt time.Time            `json:"ingested_at"`
	Fields     map[FieldType]string `json:"fields"`
}

// Get returns the normalized value of a field and whether it is present
func (n *NormalizedRecord) Get(f FieldType) (string, bool) {
	v, ok := n.Fields[f]
	return v, ok && v != ""
}

// RecordRejection describes a record excluded from a resolution run
type RecordRejection struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}
