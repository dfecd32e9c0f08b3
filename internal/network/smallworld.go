package network

import (
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/models"
)

// NewSmallWorld builds a Watts-Strogatz graph over n nodes.
//
// It starts from a ring lattice in which every node is joined to its k
// nearest neighbours (k/2 on each side), then visits each lattice edge once
// and, with probability p, moves its far endpoint to a uniformly random node
// that is neither the near endpoint nor already adjacent to it. The edge
// count is always n*k/2. The result is fully determined by rng.
func NewSmallWorld(n, k int, p float64, rng *rand.Rand) (*ContactNetwork, error) {
	if err := ValidateParams(n, k, p); err != nil {
		return nil, err
	}

	half := k / 2
	edges := make([]Edge, 0, n*half)
	present := make(map[[2]int]struct{}, n*half)
	degree := make([]int, n)

	for i := 0; i < n; i++ {
		for j := 1; j <= half; j++ {
			e := makeEdge(i, (i+j)%n)
			edges = append(edges, e)
			present[[2]int{e.A, e.B}] = struct{}{}
			degree[e.A]++
			degree[e.B]++
		}
	}

	if p > 0 {
		for idx := range edges {
			if rng.Float64() >= p {
				continue
			}
			// Lattice edges are generated from their near endpoint i.
			i := idx / half
			old := edges[idx]
			far := old.Other(i)
			if degree[i] >= n-1 {
				continue // nowhere to go
			}
			var w int
			for {
				w = rng.IntN(n)
				if w == i {
					continue
				}
				if _, dup := present[edgeKey(i, w)]; dup {
					continue
				}
				break
			}
			delete(present, [2]int{old.A, old.B})
			degree[far]--
			ne := makeEdge(i, w)
			edges[idx] = ne
			present[[2]int{ne.A, ne.B}] = struct{}{}
			degree[w]++
		}
	}

	return newContactNetwork(n, edges), nil
}

// ValidateParams checks small-world construction parameters.
func ValidateParams(n, k int, p float64) error {
	if n <= 1 {
		return &models.ConfigError{Field: "population.size", Reason: "must be greater than 1"}
	}
	if k < 0 {
		return &models.ConfigError{Field: "population.avg_degree", Reason: "must be non-negative"}
	}
	if k%2 != 0 {
		return &models.ConfigError{Field: "population.avg_degree", Reason: "must be even"}
	}
	if k >= n {
		return &models.ConfigError{Field: "population.avg_degree", Reason: "must be less than population.size"}
	}
	if p < 0 || p > 1 || p != p {
		return &models.ConfigError{Field: "population.rewire_prob", Reason: "must be between 0 and 1"}
	}
	return nil
}

func makeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

func edgeKey(a, b int) [2]int {
	e := makeEdge(a, b)
	return [2]int{e.A, e.B}
}
