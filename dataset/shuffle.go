package dataset

import "math/rand"

// Shuffle permutes samples and labels in place with a single permutation
// applied consistently to both.
func Shuffle(rng *rand.Rand, X [][]float64, y []float64) {
	rng.Shuffle(len(X), func(i, j int) {
		X[i], X[j] = X[j], X[i]
		y[i], y[j] = y[j], y[i]
	})
}
