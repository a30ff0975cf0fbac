// Package ingest turns uploaded CSV files into source records
package ingest

import (
	"encoding/csv"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

// RequiredColumns must appear in the header row
var RequiredColumns = []string{"name", "email"}

// column aliases accepted in the header, matched case-insensitively
var columns = map[string]string{
	"id":                "id",
	"record_id":         "id",
	"name":              "name",
	"full_name":         "name",
	"email":             "email",
	"phone":             "phone",
	"address":           "address",
	"organization":      "organization",
	"organization_name": "organization",
	"company":           "organization",
	"organization_id":   "organization_id",
	"org_id":            "organization_id",
	"ingested_at":       "ingested_at",
}

// ReadCSV parses r into records that share batchID. Rows without an id column
// get a generated one; rows without ingested_at get now. A row whose values
// cannot be parsed is left out and reported as a rejection; a file that cannot
// be read as CSV fails with a record validation error.
func ReadCSV(r io.Reader, batchID string, now time.Time) ([]models.SourceRecord, []models.RecordRejection, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, nil, errors.NewRecordValidationError("", "csv is empty")
		}
		return nil, nil, errors.NewRecordValidationError("", "malformed csv header: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := columns[key]; ok {
			if _, seen := index[canonical]; !seen {
				index[canonical] = i
			}
		}
	}
	for _, required := range RequiredColumns {
		if _, ok := index[required]; !ok {
			return nil, nil, errors.NewRecordValidationError("", "csv is missing required column %q", required)
		}
	}

	var (
		records  []models.SourceRecord
		rejected []models.RecordRejection
	)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, errors.NewRecordValidationError("", "malformed csv at line %d: %v", line, err)
		}

		get := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		record := models.SourceRecord{
			ID:               get("id"),
			BatchID:          batchID,
			Name:             get("name"),
			Email:            get("email"),
			Phone:            get("phone"),
			Address:          get("address"),
			OrganizationName: get("organization"),
			OrganizationID:   get("organization_id"),
			IngestedAt:       now,
		}
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if raw := get("ingested_at"); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				rejection := errors.NewRecordValidationError(record.ID, "line %d: ingested_at %q is not RFC 3339", line, raw)
				rejected = append(rejected, models.RecordRejection{RecordID: record.ID, Reason: rejection.Error()})
				continue
			}
			record.IngestedAt = at.UTC()
		}
		records = append(records, record)
	}

	return records, rejected, nil
}
