package clustering

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// kmeans partitions the rows of points into k groups and returns the group
// index of every row. Centroids are seeded with k-means++.
func kmeans(points *mat.Dense, k int, rng *rand.Rand, maxIterations int, tolerance float64) []int {
	n, _ := points.Dims()
	if k > n {
		k = n
	}

	centroids := seedCentroids(points, k, rng)
	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best := nearest(points.RawRowView(i), centroids)
			if best != assignments[i] {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		next := recomputeCentroids(points, assignments, centroids)
		shift := maxShift(centroids, next)
		centroids = next
		if shift < tolerance {
			break
		}
	}

	return assignments
}

func seedCentroids(points *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, d := points.Dims()
	centroids := mat.NewDense(k, d, nil)
	centroids.SetRow(0, points.RawRowView(rng.Intn(n)))

	weights := make([]float64, n)
	for c := 1; c < k; c++ {
		for i := 0; i < n; i++ {
			p := points.RawRowView(i)
			best := math.Inf(1)
			for j := 0; j < c; j++ {
				if dist := floats.Distance(p, centroids.RawRowView(j), 2); dist < best {
					best = dist
				}
			}
			weights[i] = best * best
		}

		total := floats.Sum(weights)
		if total == 0 {
			centroids.SetRow(c, points.RawRowView(rng.Intn(n)))
			continue
		}

		target := rng.Float64() * total
		chosen := n - 1
		cum := 0.0
		for i, w := range weights {
			cum += w
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids.SetRow(c, points.RawRowView(chosen))
	}

	return centroids
}

func nearest(p []float64, centroids *mat.Dense) int {
	k, _ := centroids.Dims()
	best, bestDist := 0, math.Inf(1)
	for j := 0; j < k; j++ {
		if dist := floats.Distance(p, centroids.RawRowView(j), 2); dist < bestDist {
			best, bestDist = j, dist
		}
	}
	return best
}

// recomputeCentroids moves each centroid to the mean of its rows. A
// centroid that lost all its rows stays where it was.
func recomputeCentroids(points *mat.Dense, assignments []int, prev *mat.Dense) *mat.Dense {
	k, d := prev.Dims()
	next := mat.NewDense(k, d, nil)
	counts := make([]int, k)

	for i, c := range assignments {
		floats.Add(next.RawRowView(c), points.RawRowView(i))
		counts[c]++
	}

	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			next.SetRow(c, prev.RawRowView(c))
			continue
		}
		floats.Scale(1/float64(counts[c]), next.RawRowView(c))
	}
	return next
}

func maxShift(prev, next *mat.Dense) float64 {
	k, _ := prev.Dims()
	shift := 0.0
	for c := 0; c < k; c++ {
		shift = math.Max(shift, floats.Distance(prev.RawRowView(c), next.RawRowView(c), 2))
	}
	return shift
}
