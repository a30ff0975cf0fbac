// Package normalizers canonicalizes raw record values into comparable strings
package normalizers

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

// fieldChains is the normalizer chain applied to each field type
var fieldChains = map[models.FieldType][]string{
	models.FieldName:           {"strip_diacritics", "nname"},
	models.FieldEmail:          {"nemail"},
	models.FieldPhone:          {"nphone"},
	models.FieldAddress:        {"strip_diacritics", "naddress"},
	models.FieldOrganization:   {"strip_diacritics", "norg"},
	models.FieldOrganizationID: {"lowercase", "remove_whitespace"},
}

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("strip_diacritics", StripDiacritics)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("nname", NormalizeName)
	Register("naddress", NormalizeAddress)
	Register("norg", NormalizeOrganization)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry. It is meant to be called from init functions.
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Normalize canonicalizes a raw value of the given field type.
// It returns false when the value is blank or normalizes to nothing.
func Normalize(field models.FieldType, raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	chain, ok := fieldChains[field]
	if !ok {
		chain = []string{"lowercase", "trim"}
	}
	out := strings.TrimSpace(ApplyChain(raw, chain...))
	return out, out != ""
}

// Record derives the normalized form of a source record. Absent fields are omitted.
func Record(r models.SourceRecord) models.NormalizedRecord {
	n := models.NormalizedRecord{
		ID:         r.ID,
		IngestedAt: r.IngestedAt,
		Fields:     make(map[models.FieldType]string, len(models.AllFields)),
	}
	for _, f := range models.AllFields {
		if v, ok := Normalize(f, r.Field(f)); ok {
			n.Fields[f] = v
		}
	}
	return n
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// StripDiacritics decomposes s, drops combining marks and recomposes it
func StripDiacritics(s string) string {
	// transformers carry state, so build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizePhone keeps digits and drops a leading 00 international prefix
// and the NANP country code of 11 digit numbers
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// NormalizeEmail normalizes an email address (lowercase, trim). Alias tags are kept.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "phd": true, "md": true, "dds": true,
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove punctuation and extra whitespace
// - Remove trailing generational and degree suffixes (Jr., Sr., III, etc.)
func NormalizeName(s string) string {
	tokens := words(strings.ToLower(s), false)
	for len(tokens) > 1 && nameSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "company": true, "plc": true, "gmbh": true,
}

// NormalizeOrganization normalizes an organization name and drops trailing legal-form suffixes
func NormalizeOrganization(s string) string {
	tokens := words(strings.ToLower(s), true)
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

var addressAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"circle":    "cir",
	"place":     "pl",
	"apartment": "apt",
	"suite":     "ste",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// NormalizeAddress normalizes an address string, abbreviating street types and directions
func NormalizeAddress(s string) string {
	tokens := words(strings.ToLower(s), true)
	for i, tok := range tokens {
		if abbr, ok := addressAbbreviations[tok]; ok {
			tokens[i] = abbr
		}
	}
	return strings.Join(tokens, " ")
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// words splits s into letter/digit runs. Apostrophes are dropped without splitting
// ("o'brien" -> "obrien"); other punctuation separates words when splitOnPunct is set.
func words(s string, splitOnPunct bool) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case r == '\'' || r == '’':
			// dropped in place
		case splitOnPunct || r == '-' || r == ',':
			flush()
		}
	}
	flush()
	return tokens
}
