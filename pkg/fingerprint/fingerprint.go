// Package fingerprint produces deterministic content hashes for records, record sets and golden records
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Generate creates a deterministic fingerprint for a data map.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// ForFields fingerprints a synthesized field set
func ForFields(fields map[models.FieldType]string) string {
	data := make(map[string]any, len(fields))
	for f, v := range fields {
		data[string(f)] = v
	}
	return Generate(data)
}

// ForRecordSet fingerprints a set of source records independent of their order
func ForRecordSet(records []models.SourceRecord) string {
	sorted := make([]models.SourceRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	items := make([]any, len(sorted))
	for i, r := range sorted {
		items[i] = recordData(r)
	}
	return Generate(map[string]any{"records": items})
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

func recordData(r models.SourceRecord) map[string]any {
	data := map[string]any{
		"id":          r.ID,
		"ingested_at": r.IngestedAt.UTC().Format("2006-01-02T15:04:05.999999999Z"),
	}
	for f, v := range r.Values() {
		data[string(f)] = v
	}
	return data
}

// canonicalize creates a deterministic string representation of a value
// by sorting map keys and recursively processing nested structures
func canonicalize(data any) string {
	var sb strings.Builder
	writeCanonical(&sb, data)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, v[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		// For primitives, use JSON encoding
		b, _ := json.Marshal(v)
		sb.Write(b)
	}
}
