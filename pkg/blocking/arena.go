// Package blocking groups the records of one resolution run into buckets so only
// records sharing a bucket are scored against each other
package blocking

import (
	"sort"
)

// Pair is an unordered candidate pair of dense record indices, A < B
type Pair struct {
	A int
	B int
}

// Arena maps bucket keys to the dense indices of the records that carry them.
// An arena belongs to a single resolution run and is dropped when the run ends.
type Arena struct {
	buckets map[string][]int
}

// NewArena creates an empty arena
func NewArena() *Arena {
	return &Arena{buckets: make(map[string][]int)}
}

// Add places record idx in the bucket named key. Adding the same index twice is a no-op.
func (a *Arena) Add(key string, idx int) {
	members := a.buckets[key]
	if n := len(members); n > 0 && members[n-1] == idx {
		return
	}
	a.buckets[key] = append(members, idx)
}

// Bucket returns the record indices stored under key
func (a *Arena) Bucket(key string) []int {
	return a.buckets[key]
}

// Len returns the number of buckets
func (a *Arena) Len() int {
	return len(a.buckets)
}

// Pairs returns every pair of records sharing at least one bucket, each pair once,
// ordered by (A, B)
func (a *Arena) Pairs() []Pair {
	seen := make(map[Pair]struct{})
	for _, members := range a.buckets {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				p := Pair{A: members[i], B: members[j]}
				if p.A > p.B {
					p.A, p.B = p.B, p.A
				}
				if p.A == p.B {
					continue
				}
				seen[p] = struct{}{}
			}
		}
	}

	pairs := make([]Pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}
