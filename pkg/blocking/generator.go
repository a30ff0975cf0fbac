package blocking

import (
	"math"
	"sort"
	"strconv"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

const epsilon = 1e-9

// Generator assigns bucket keys to normalized records.
//
// Keys per record:
//   - email=<email> and orgid=<organization id> for the exact-match rules
//   - sdx=<soundex of the first name token>
//   - prefix-filter keys for every configured scored field
//
// The prefix-filter keys carry the recall guarantee: any two records whose
// Jaro-Winkler similarity on some configured field reaches the lowest configured
// threshold share a bucket. Jaro-Winkler >= T with a shared prefix of at most
// 4 runes implies Jaro >= Tj = (T-4p)/(1-4p). Jaro >= Tj in turn requires at
// least ceil((3Tj-2)*n) common runes for a value of n runes, so each value
// emits its n-alpha+1 rarest occurrence-tagged runes and two qualifying values
// always share one of them.
type Generator struct {
	scorer *matching.Scorer
}

// NewGenerator creates a new candidate generator
func NewGenerator() *Generator {
	return &Generator{scorer: matching.NewScorer()}
}

// Build fills a new arena with the bucket keys of records. Indices in the arena
// are positions in records.
func (g *Generator) Build(records []models.NormalizedRecord, cfg *models.ResolutionConfig) *Arena {
	arena := NewArena()

	for i := range records {
		rec := &records[i]
		if email, ok := rec.Get(models.FieldEmail); ok {
			arena.Add("email="+email, i)
		}
		if orgID, ok := rec.Get(models.FieldOrganizationID); ok {
			arena.Add("orgid="+orgID, i)
		}
		if name, ok := rec.Get(models.FieldName); ok {
			if code := g.scorer.Soundex(matching.FirstToken(name)); code != "" {
				arena.Add("sdx="+code, i)
			}
		}
	}

	bound := newJaroBound(cfg.LowestThreshold(), cfg.PrefixScale)
	for _, field := range models.ScoredFields {
		if _, ok := cfg.Rule(field); !ok {
			continue
		}
		g.addPrefixKeys(arena, records, field, bound)
	}

	return arena
}

// Candidates returns the de-duplicated candidate pairs of records
func (g *Generator) Candidates(records []models.NormalizedRecord, cfg *models.ResolutionConfig) []Pair {
	return g.Build(records, cfg).Pairs()
}

func (g *Generator) addPrefixKeys(arena *Arena, records []models.NormalizedRecord, field models.FieldType, bound jaroBound) {
	prefix := string(field) + ":"

	if bound.minJaro <= 0 {
		// no useful bound, every record carrying the field is a candidate of every other
		for i := range records {
			if _, ok := records[i].Get(field); ok {
				arena.Add(prefix+"*", i)
			}
		}
		return
	}

	tokensByRecord := make([][]string, len(records))
	frequency := make(map[string]int)
	for i := range records {
		value, ok := records[i].Get(field)
		if !ok {
			continue
		}
		tokens := occurrenceTokens(value)
		tokensByRecord[i] = tokens
		for _, tok := range tokens {
			frequency[tok]++
		}
	}

	for i, tokens := range tokensByRecord {
		if len(tokens) == 0 {
			continue
		}
		sort.Slice(tokens, func(x, y int) bool {
			fx, fy := frequency[tokens[x]], frequency[tokens[y]]
			if fx != fy {
				return fx < fy
			}
			return tokens[x] < tokens[y]
		})

		for _, tok := range tokens[:bound.prefixLength(len(tokens))] {
			arena.Add(prefix+tok, i)
		}

		if bound.fullPrefixKey {
			runes := []rune(records[i].Fields[field])
			if len(runes) >= matching.MaxPrefixLength {
				arena.Add(prefix+"^"+string(runes[:matching.MaxPrefixLength]), i)
			}
		}
	}
}

// occurrenceTokens turns a value into one token per rune, tagged with the
// occurrence count so repeated runes stay distinct ("aba" -> a#1, b#1, a#2)
func occurrenceTokens(value string) []string {
	seen := make(map[rune]int)
	tokens := make([]string, 0, len(value))
	for _, r := range value {
		seen[r]++
		tokens = append(tokens, string(r)+"#"+strconv.Itoa(seen[r]))
	}
	return tokens
}

// jaroBound is the minimum Jaro similarity a pair needs to reach the blocking threshold
type jaroBound struct {
	minJaro float64
	// fullPrefixKey is set when a full-length shared prefix can lift any Jaro
	// score to the threshold; such pairs are caught by a key on the prefix itself
	fullPrefixKey bool
}

func newJaroBound(threshold, scale float64) jaroBound {
	p := matching.ClampPrefixScale(scale)
	maxBoost := float64(matching.MaxPrefixLength) * p
	if maxBoost < 1 {
		return jaroBound{minJaro: (threshold - maxBoost) / (1 - maxBoost)}
	}
	// pairs without a full shared prefix get at most MaxPrefixLength-1 boosts
	boost := float64(matching.MaxPrefixLength-1) * p
	return jaroBound{minJaro: (threshold - boost) / (1 - boost), fullPrefixKey: true}
}

// prefixLength is how many of a value's n ordered tokens must be emitted
func (b jaroBound) prefixLength(n int) int {
	alpha := int(math.Ceil((3*b.minJaro-2)*float64(n) - epsilon))
	if alpha < 1 {
		alpha = 1
	}
	if alpha > n {
		alpha = n
	}
	return n - alpha + 1
}
