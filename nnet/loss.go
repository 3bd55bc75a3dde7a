package nnet

import "math"

// epsilon keeps log and division arguments away from 0 and 1.
const epsilon = 1e-7

// Loss scores a single prediction against its target and produces the
// gradient of the loss with respect to the prediction.
type Loss interface {
	Name() string
	Loss(pred, target []float64) float64
	Grad(pred, target, out []float64)
}

func clamp(p float64) float64 {
	if p < epsilon {
		return epsilon
	}
	if p > 1-epsilon {
		return 1 - epsilon
	}
	return p
}

// BinaryCrossEntropy is the standard loss for sigmoid-output binary
// classifiers.
type BinaryCrossEntropy struct{}

// Name implements Loss.
func (BinaryCrossEntropy) Name() string { return "binary_crossentropy" }

// Loss implements Loss.
func (BinaryCrossEntropy) Loss(pred, target []float64) float64 {
	var sum float64
	for i, p := range pred {
		p = clamp(p)
		t := target[i]
		sum += -(t*math.Log(p) + (1-t)*math.Log(1-p))
	}
	return sum / float64(len(pred))
}

// Grad implements Loss.
func (BinaryCrossEntropy) Grad(pred, target, out []float64) {
	n := float64(len(pred))
	for i, p := range pred {
		p = clamp(p)
		t := target[i]
		out[i] = (p - t) / (p * (1 - p)) / n
	}
}

// MeanSquaredError is used when recompiling loaded embedding towers; they
// are never trained, but a compiled model needs a loss attached.
type MeanSquaredError struct{}

// Name implements Loss.
func (MeanSquaredError) Name() string { return "mean_squared_error" }

// Loss implements Loss.
func (MeanSquaredError) Loss(pred, target []float64) float64 {
	var sum float64
	for i, p := range pred {
		d := p - target[i]
		sum += d * d
	}
	return sum / float64(len(pred))
}

// Grad implements Loss.
func (MeanSquaredError) Grad(pred, target, out []float64) {
	n := float64(len(pred))
	for i, p := range pred {
		out[i] = 2 * (p - target[i]) / n
	}
}
