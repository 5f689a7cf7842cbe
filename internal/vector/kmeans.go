package vector

import (
	"math"
	"math/rand"
	"sort"
)

const kmeansMaxIterations = 25

// trainCentroids runs Lloyd's algorithm over the flattened vectors and
// returns k flattened centroids (k*dim). Callers guarantee n >= k.
func trainCentroids(vectors []float32, dim, k, maxIter int) []float32 {
	n := len(vectors) / dim
	centroids := make([]float32, k*dim)

	perm := rand.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := assignCluster(vec, centroids, dim)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += vec[d]
			}
			counts[c]++
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-seed an empty cluster with a random point.
				idx := rand.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}
	return centroids
}

// assignCluster returns the index of the closest centroid for vec.
func assignCluster(vec, centroids []float32, dim int) int {
	k := len(centroids) / dim
	best := 0
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := squaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// closestCentroids returns the indices of the n closest centroids to query,
// nearest first.
func closestCentroids(query, centroids []float32, dim, n int) []int {
	k := len(centroids) / dim
	if n > k {
		n = k
	}
	type centroidDist struct {
		id   int
		dist float32
	}
	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: squaredL2(query, centroids[i*dim:(i+1)*dim])}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = dists[i].id
	}
	return out
}
