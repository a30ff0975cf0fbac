package normalizers

import (
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		field  models.FieldType
		input  string
		want   string
		wantOK bool
	}{
		{name: "blank", field: models.FieldName, input: "   ", wantOK: false},
		{name: "punctuation only name", field: models.FieldName, input: "...", wantOK: false},
		{name: "name case and diacritics", field: models.FieldName, input: "  José  ÁLVAREZ ", want: "jose alvarez", wantOK: true},
		{name: "name suffix", field: models.FieldName, input: "Martin Luther King, Jr.", want: "martin luther king", wantOK: true},
		{name: "name apostrophe", field: models.FieldName, input: "Sinéad O'Brien", want: "sinead obrien", wantOK: true},
		{name: "suffix alone is kept", field: models.FieldName, input: "Jr", want: "jr", wantOK: true},
		{name: "email lowercase and trim", field: models.FieldEmail, input: " Jane.Doe+News@Example.COM ", want: "jane.doe+news@example.com", wantOK: true},
		{name: "phone nanp", field: models.FieldPhone, input: "+1 (555) 123-4567", want: "5551234567", wantOK: true},
		{name: "phone international prefix", field: models.FieldPhone, input: "0044 20 7946 0958", want: "442079460958", wantOK: true},
		{name: "phone no digits", field: models.FieldPhone, input: "n/a", wantOK: false},
		{name: "address abbreviations", field: models.FieldAddress, input: "12 North Main Street, Suite 4", want: "12 n main st ste 4", wantOK: true},
		{name: "address diacritics", field: models.FieldAddress, input: "3 Rue de l'Église", want: "3 rue de leglise", wantOK: true},
		{name: "organization legal suffix", field: models.FieldOrganization, input: "Acme Widgets, Inc.", want: "acme widgets", wantOK: true},
		{name: "organization stacked suffixes", field: models.FieldOrganization, input: "Globex Co. Ltd", want: "globex", wantOK: true},
		{name: "organization id", field: models.FieldOrganizationID, input: " ORG 0042 ", want: "org0042", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.field, tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := map[models.FieldType]string{
		models.FieldName:         "Dr. Ana-María Núñez III",
		models.FieldAddress:      "500 West Boulevard Apartment 2B",
		models.FieldOrganization: "Initech Corporation",
		models.FieldPhone:        "1-800-555-0199",
	}
	for field, raw := range inputs {
		once, ok := Normalize(field, raw)
		require.True(t, ok)
		twice, ok := Normalize(field, once)
		require.True(t, ok)
		assert.Equal(t, once, twice, "field %s", field)
	}
}

func TestRecord(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n := Record(models.SourceRecord{
		ID:         "r1",
		Name:       "Zoë Smith",
		Email:      "ZOE@EXAMPLE.COM",
		Phone:      "   ",
		IngestedAt: at,
	})

	assert.Equal(t, "r1", n.ID)
	assert.Equal(t, at, n.IngestedAt)
	assert.Equal(t, map[models.FieldType]string{
		models.FieldName:  "zoe smith",
		models.FieldEmail: "zoe@example.com",
	}, n.Fields)

	_, ok := n.Get(models.FieldPhone)
	assert.False(t, ok)
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "abc123", ApplyChain(" A-b C 1.2.3 ", "lowercase", "alphanumeric"))
	assert.Equal(t, "unchanged", Apply("unchanged", "missing"))

	fn, ok := Get("nphone")
	require.True(t, ok)
	assert.Equal(t, "5550100", fn("555-0100"))
}
