package vector

import (
	"fmt"
	"sort"

	"github.com/hyperjump/toi/internal/models"
)

// sentinel marks an unfilled candidate slot (fewer documents than requested).
// Candidates carrying it are skipped, never resolved as position 0.
const sentinel = -1

// Search returns up to k matches ranked by descending inner-product score,
// optionally restricted by filter. An empty index returns no matches and no
// error for any k.
//
// Filtering is applied after retrieval over an over-fetched candidate set of
// min(3k, size) raw candidates. A highly selective filter over a large index
// can therefore return fewer than k results even when k matching documents
// exist elsewhere; that recall gap is an accepted tradeoff of post-filtering
// versus filter-aware search.
func (x *Index) Search(query []float32, k int, filter *models.MetadataFilter) ([]Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dim)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	size := x.meta.len()
	if size == 0 {
		return nil, nil
	}

	fetch := k
	if !filter.IsZero() {
		fetch = 3 * k
		if fetch > size {
			fetch = size
		}
	}

	var positions []int
	var scores []float64
	if x.state == StateClusteredTrained {
		positions, scores = x.searchClusteredLocked(query, fetch)
	} else {
		positions, scores = x.searchFlatLocked(query, fetch)
	}

	matches := make([]Match, 0, k)
	for i, pos := range positions {
		if pos == sentinel {
			continue
		}
		meta := x.meta.get(pos)
		if !filter.Matches(meta) {
			continue
		}
		matches = append(matches, Match{Metadata: *meta, Score: scores[i]})
		if len(matches) >= k {
			break
		}
	}
	return matches, nil
}

type scoredPosition struct {
	pos   int
	score float64
}

// searchFlatLocked scores every vector and returns the top fetch positions by
// descending inner product.
func (x *Index) searchFlatLocked(query []float32, fetch int) ([]int, []float64) {
	size := x.meta.len()
	scored := make([]scoredPosition, size)
	for i := 0; i < size; i++ {
		scored[i] = scoredPosition{pos: i, score: InnerProduct(query, x.vectors[i*x.dim:(i+1)*x.dim])}
	}
	return topRanked(scored, fetch)
}

// searchClusteredLocked scores only the vectors in the nprobe clusters
// closest to the query. Slots beyond the candidate count are filled with the
// sentinel position.
func (x *Index) searchClusteredLocked(query []float32, fetch int) ([]int, []float64) {
	probe := closestCentroids(query, x.centroids, x.dim, x.nprobe)
	var scored []scoredPosition
	for _, c := range probe {
		for _, pos := range x.clusters[c] {
			scored = append(scored, scoredPosition{pos: pos, score: InnerProduct(query, x.vectors[pos*x.dim:(pos+1)*x.dim])})
		}
	}
	positions, scores := topRanked(scored, len(scored))
	for len(positions) < fetch {
		positions = append(positions, sentinel)
		scores = append(scores, 0)
	}
	return positions[:fetch], scores[:fetch]
}

// topRanked sorts by descending score and truncates to fetch entries.
func topRanked(scored []scoredPosition, fetch int) ([]int, []float64) {
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if fetch > len(scored) {
		fetch = len(scored)
	}
	positions := make([]int, fetch)
	scores := make([]float64, fetch)
	for i := 0; i < fetch; i++ {
		positions[i] = scored[i].pos
		scores[i] = scored[i].score
	}
	return positions, scores
}
