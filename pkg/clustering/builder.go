package clustering

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// clusterNamespace seeds name-based cluster ids
var clusterNamespace = uuid.MustParse("3b0c8f7e-5c1d-4e7a-9f4b-2a6d1c9e8b70")

// Edge is an accepted match pair addressed by dense run indices
type Edge struct {
	A    int
	B    int
	Pair models.MatchPair
}

// Result is the outcome of building clusters for one set of records
type Result struct {
	Clusters   []models.Cluster
	Singletons []string
}

// ClusterID derives a stable cluster id from its batch and member set
func ClusterID(batchID string, memberIDs []string) string {
	sorted := append([]string(nil), memberIDs...)
	sort.Strings(sorted)
	name := batchID + "\x00" + strings.Join(sorted, "\x00")
	return uuid.NewSHA1(clusterNamespace, []byte(name)).String()
}

// Build applies edges to a union-find over ids (indexed by position) and returns
// the resulting clusters with their status classified. Edges are applied in
// descending confidence, ties broken by index pair, so cluster shape does not
// depend on the order edges were produced in.
func Build(batchID string, ids []string, edges []Edge, cfg *models.ResolutionConfig, now time.Time) Result {
	ordered := make([]Edge, len(edges))
	copy(ordered, edges)
	for i := range ordered {
		if ordered[i].A > ordered[i].B {
			ordered[i].A, ordered[i].B = ordered[i].B, ordered[i].A
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Pair.Confidence != ordered[j].Pair.Confidence {
			return ordered[i].Pair.Confidence > ordered[j].Pair.Confidence
		}
		if ordered[i].A != ordered[j].A {
			return ordered[i].A < ordered[j].A
		}
		return ordered[i].B < ordered[j].B
	})

	uf := NewUnionFind(len(ids))
	for i := range ordered {
		ordered[i].Pair.Spanning = uf.Union(ordered[i].A, ordered[i].B)
	}

	members := make(map[int][]int)
	for idx := range ids {
		root := uf.Find(idx)
		members[root] = append(members[root], idx)
	}
	edgesByRoot := make(map[int][]models.MatchPair)
	for _, e := range ordered {
		root := uf.Find(e.A)
		edgesByRoot[root] = append(edgesByRoot[root], e.Pair)
	}

	var result Result
	for root, idxs := range members {
		if len(idxs) < 2 {
			result.Singletons = append(result.Singletons, ids[idxs[0]])
			continue
		}

		memberIDs := make([]string, len(idxs))
		for i, idx := range idxs {
			memberIDs[i] = ids[idx]
		}
		sort.Strings(memberIDs)

		cluster := models.Cluster{
			ID:        ClusterID(batchID, memberIDs),
			BatchID:   batchID,
			MemberIDs: memberIDs,
			Status:    models.ClusterStatusCandidate,
			Edges:     edgesByRoot[root],
			CreatedAt: now,
			UpdatedAt: now,
		}
		cluster.Confidence = spanningConfidence(cluster.Edges)
		Classify(&cluster, cfg)
		result.Clusters = append(result.Clusters, cluster)
	}

	sort.Slice(result.Clusters, func(i, j int) bool {
		return result.Clusters[i].MemberIDs[0] < result.Clusters[j].MemberIDs[0]
	})
	sort.Strings(result.Singletons)
	return result
}

// Recluster rebuilds clusters for a subset of records from previously accepted
// pairs. Pairs touching records outside memberIDs are ignored.
func Recluster(batchID string, memberIDs []string, pairs []models.MatchPair, cfg *models.ResolutionConfig, now time.Time) Result {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	edges := make([]Edge, 0, len(pairs))
	for _, p := range pairs {
		a, okA := index[p.RecordA]
		b, okB := index[p.RecordB]
		if !okA || !okB {
			continue
		}
		p.Spanning = false
		edges = append(edges, Edge{A: a, B: b, Pair: p})
	}

	return Build(batchID, ids, edges, cfg, now)
}

// Classify moves a CANDIDATE cluster to AUTO_MERGED or NEEDS_REVIEW and records why
func Classify(c *models.Cluster, cfg *models.ResolutionConfig) {
	var reasons []string
	if c.Size() > cfg.MaxAutoMergeClusterSize {
		reasons = append(reasons, models.ReviewReasonSizeCap)
	}
	if c.Confidence < cfg.MinAutoMergeConfidence {
		reasons = append(reasons, models.ReviewReasonLowConfidence)
	}

	var review, conflict bool
	for _, e := range c.Edges {
		review = review || e.Review
		conflict = conflict || len(e.Conflicts) > 0
	}
	if review {
		reasons = append(reasons, models.ReviewReasonReviewEdge)
	}
	if conflict {
		reasons = append(reasons, models.ReviewReasonConflict)
	}

	next := models.ClusterStatusAutoMerged
	if len(reasons) > 0 {
		next = models.ClusterStatusNeedsReview
	}
	if c.Status.CanTransition(next) {
		c.Status = next
	}
	c.ReviewReasons = reasons
}

// spanningConfidence is the minimum confidence over spanning edges
func spanningConfidence(edges []models.MatchPair) float64 {
	confidence := 1.0
	for _, e := range edges {
		if e.Spanning && e.Confidence < confidence {
			confidence = e.Confidence
		}
	}
	return confidence
}
