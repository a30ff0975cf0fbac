// Package clustering builds disjoint clusters from accepted match edges
package clustering

// UnionFind is a disjoint-set forest over dense indices 0..n-1 with path
// compression and union by size. Find is iterative.
type UnionFind struct {
	parent []int
	size   []int
}

// NewUnionFind creates n singleton sets
func NewUnionFind(n int) *UnionFind {
	u := &UnionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

// Find returns the root of x's set
func (u *UnionFind) Find(x int) int {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// compress
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

// Union joins the sets of a and b. It returns false when they were already joined.
func (u *UnionFind) Union(a, b int) bool {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return false
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
	return true
}

// Size returns the size of x's set
func (u *UnionFind) Size(x int) int {
	return u.size[u.Find(x)]
}
