// Package tower consumes a pretrained embedding tower: a model mapping a
// raw behavioral sample to a fixed-length embedding vector. The tower is an
// external artifact; it is loaded once, recompiled for inference, and never
// trained here.
package tower

import (
	"math"

	"github.com/pkg/errors"

	"github.com/strokeid/strokeid/dataset"
	"github.com/strokeid/strokeid/nnet"
)

// reluClipMax caps the clipped relu used when the tower was built.
const reluClipMax = 1.0

// ReLUClipped is the tower's non-standard activation: relu clipped to
// [0, reluClipMax].
var ReLUClipped = nnet.Activation{
	Name: "relu_clipped",
	Fn: func(x float64) float64 {
		return math.Min(math.Max(0, x), reluClipMax)
	},
	Deriv: func(x, y float64) float64 {
		if x > 0 && x < reluClipMax {
			return 1
		}
		return 0
	},
}

// CustomObjects returns the registry entries a saved tower artifact needs
// beyond the standard activations.
func CustomObjects() nnet.Registry {
	return nnet.Registry{ReLUClipped.Name: ReLUClipped}
}

// Load reads a pretrained tower artifact, resolving non-standard
// activations through extra, and recompiles it: the saved artifact is
// uncompiled and a model must be compiled before it can predict. The loss
// and optimizer attached here are never exercised by training.
func Load(path string, extra nnet.Registry) (*nnet.Sequential, error) {
	reg := nnet.DefaultRegistry().Merge(extra)
	m, err := nnet.LoadModel(path, reg)
	if err != nil {
		return nil, errors.Wrapf(err, "loading embedding tower")
	}
	if err := m.Compile(m.InputShape(), nnet.MeanSquaredError{}, nnet.NewAdam(1e-3)); err != nil {
		return nil, errors.Wrapf(err, "recompiling embedding tower")
	}
	return m, nil
}

// PairDistance turns triplets into labeled distance vectors: the
// elementwise absolute difference between the anchor embedding and the
// positive (same identity) or negative (different identity) embedding.
type PairDistance struct {
	tower *nnet.Sequential
}

// NewPairDistance wraps a loaded, compiled tower.
func NewPairDistance(t *nnet.Sequential) *PairDistance {
	return &PairDistance{tower: t}
}

func absDiff(a, b [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		row := make([]float64, len(a[i]))
		for j := range row {
			row[j] = math.Abs(a[i][j] - b[i][j])
		}
		out[i] = row
	}
	return out
}

// Distances embeds the three streams and returns positive-pair and
// negative-pair distance vectors, one of each per triplet. The tower is
// used in inference mode only. Since embeddings are deterministic,
// identical anchor and positive inputs yield zero positive-pair distances.
func (pd *PairDistance) Distances(anchors, positives, negatives [][]float64) (pos, neg [][]float64, err error) {
	if len(anchors) != len(positives) || len(anchors) != len(negatives) {
		return nil, nil, errors.Errorf("triplet streams are uneven: %d anchors, %d positives, %d negatives", len(anchors), len(positives), len(negatives))
	}
	embA, err := pd.tower.Predict(anchors)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "embedding anchors")
	}
	embP, err := pd.tower.Predict(positives)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "embedding positives")
	}
	embN, err := pd.tower.Predict(negatives)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "embedding negatives")
	}
	return absDiff(embA, embP), absDiff(embA, embN), nil
}

// DistancesFromBatches consumes a lazy triplet sequence one batch at a
// time. Output shape and semantics are identical to Distances over the
// concatenated streams; only the memory footprint differs.
func (pd *PairDistance) DistancesFromBatches(gen *dataset.TripletBatches) (pos, neg [][]float64, err error) {
	for {
		batch, ok, err := gen.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return pos, neg, nil
		}
		p, n, err := pd.Distances(batch.Anchors.X, batch.Positives.X, batch.Negatives.X)
		if err != nil {
			return nil, nil, err
		}
		pos = append(pos, p...)
		neg = append(neg, n...)
	}
}

// BuildTrainingSet stacks positive-pair distances (label 1) over
// negative-pair distances (label 0) into one training set for the
// verifier.
func BuildTrainingSet(pos, neg [][]float64) (X [][]float64, y []float64) {
	X = make([][]float64, 0, len(pos)+len(neg))
	y = make([]float64, 0, len(pos)+len(neg))
	for _, row := range pos {
		X = append(X, row)
		y = append(y, 1)
	}
	for _, row := range neg {
		X = append(X, row)
		y = append(y, 0)
	}
	return X, y
}
