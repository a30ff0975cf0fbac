package matching

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	// MaxPrefixLength is the longest shared prefix rewarded by Jaro-Winkler
	MaxPrefixLength = 4
	// MaxPrefixScale caps the Winkler scaling factor so scores stay within [0,1]
	MaxPrefixScale = 0.25
)

// Scorer provides the string comparison algorithms used for record similarity
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

// ClampPrefixScale bounds a Winkler scaling factor to [0, MaxPrefixScale]
func ClampPrefixScale(scale float64) float64 {
	if scale < 0 {
		return 0
	}
	if scale > MaxPrefixScale {
		return MaxPrefixScale
	}
	return scale
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (exact match).
func (s *Scorer) JaroWinkler(a, b string, scale float64) float64 {
	if a == b {
		return 1.0
	}
	// order the pair so the result does not depend on argument order
	if a > b {
		a, b = b, a
	}
	ra, rb := []rune(a), []rune(b)

	jaro := jaro(ra, rb)
	if jaro == 0 {
		return 0
	}

	prefixLen := 0
	for i := 0; i < len(ra) && i < len(rb) && i < MaxPrefixLength; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}

	return jaro + float64(prefixLen)*ClampPrefixScale(scale)*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a > b {
		a, b = b, a
	}
	return jaro([]rune(a), []rune(b))
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == len(b) {
			return 1.0
		}
		return 0.0
	}

	// Maximum distance for character matching
	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	for i := range a {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions
	transpositions := 0
	k := 0
	for i := range a {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex calculates the Soundex encoding of a word. Non-letters are ignored;
// a word without ASCII letters encodes to "".
func (s *Scorer) Soundex(str string) string {
	var letters []rune
	for _, r := range strings.ToUpper(str) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	// Keep the first letter
	var result strings.Builder
	result.WriteRune(letters[0])
	prevCode := soundexCode(letters[0])

	for _, char := range letters[1:] {
		if result.Len() == 4 {
			break
		}
		code := soundexCode(char)
		if code != '0' && code != prevCode {
			result.WriteByte(code)
		}
		// H and W do not separate letters with the same code
		if char != 'H' && char != 'W' {
			prevCode = code
		}
	}

	for result.Len() < 4 {
		result.WriteByte('0')
	}

	return result.String()
}

// soundexCode returns the Soundex code for an upper-case letter
func soundexCode(char rune) byte {
	switch char {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}

// FirstToken returns the first whitespace separated word of s
func FirstToken(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// WeightedScore calculates a weighted average over the compared fields only.
// Fields are summed in ScoredFields order so the result is reproducible.
func (s *Scorer) WeightedScore(scores map[models.FieldType]float64, cfg *models.ResolutionConfig) float64 {
	var totalWeight, weightedSum float64
	for _, field := range models.ScoredFields {
		score, ok := scores[field]
		if !ok {
			continue
		}
		rule, ok := cfg.Rule(field)
		if !ok {
			continue
		}
		weightedSum += score * rule.Weight
		totalWeight += rule.Weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return weightedSum / totalWeight
}
