package dynedge

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// NumGlobalVariables is the number of per-event variables appended to every node.
const NumGlobalVariables = 5

// spatialFeatures is the number of leading node features defining the neighbourhood.
const spatialFeatures = 3

// KNN returns, for each point, the indices of its k nearest neighbours measured on the
// first three coordinates. A point is never its own neighbour; ties go to the lower index.
func KNN(points [][]float64, k int) [][]int {
	neighbours := make([][]int, len(points))
	for i := range points {
		candidates := make([]int, 0, len(points)-1)
		distances := make([]float64, len(points))
		for j := range points {
			if j == i {
				continue
			}
			distances[j] = floats.Distance(points[i][:spatialFeatures], points[j][:spatialFeatures], 2)
			candidates = append(candidates, j)
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return distances[candidates[a]] < distances[candidates[b]]
		})
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		neighbours[i] = candidates
	}
	return neighbours
}

// Homophily returns, for each of the first four features (x, y, z, t), the fraction of
// edges connecting nodes that share the same value. Graphs without edges score 0.
func Homophily(points [][]float64, neighbours [][]int) []float64 {
	out := make([]float64, 4)
	edges := 0
	for i, ns := range neighbours {
		for _, j := range ns {
			edges++
			for f := range out {
				if points[i][f] == points[j][f] {
					out[f]++
				}
			}
		}
	}
	if edges == 0 {
		return out
	}
	floats.Scale(1/float64(edges), out)
	return out
}

// GlobalVariables summarizes one event: xyzt homophily over its kNN graph and the
// log10 of its pulse count.
func GlobalVariables(points [][]float64, k int) []float64 {
	vars := Homophily(points, KNN(points, k))
	return append(vars, math.Log10(math.Max(float64(len(points)), 1)))
}
