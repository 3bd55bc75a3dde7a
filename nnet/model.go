package nnet

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Sequential is a stack of layers trained with a loss and an optimizer.
// Models are single-threaded: one goroutine may train or predict at a time.
type Sequential struct {
	layers []Layer
	input  Shape
	output Shape

	loss       Loss
	opt        Optimizer
	rng        *rand.Rand
	parameters []*Param
	compiled   bool
}

// NewSequential builds an uncompiled model from the given layers.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{
		layers: layers,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes weight initialization and dropout masks deterministic. Call
// before Compile.
func (m *Sequential) Seed(seed int64) {
	m.rng = rand.New(rand.NewSource(seed))
}

// Compile propagates the input shape through the layers, initializing any
// weights that were not loaded from a checkpoint, and attaches the loss and
// optimizer. A model must be compiled before it can fit, predict or
// evaluate; loaded checkpoints arrive uncompiled.
func (m *Sequential) Compile(in Shape, loss Loss, opt Optimizer) error {
	if len(m.layers) == 0 {
		return errors.Errorf("cannot compile a model with no layers")
	}
	if in.Len() <= 0 {
		return errors.Errorf("cannot compile with empty input shape %dx%d", in.Steps, in.Feats)
	}
	if loss == nil || opt == nil {
		return errors.Errorf("compile needs both a loss and an optimizer")
	}
	shape := in
	var params []*Param
	for i, l := range m.layers {
		var err error
		shape, err = l.build(shape, m.rng)
		if err != nil {
			return errors.Wrapf(err, "building layer %d", i)
		}
		params = append(params, l.params()...)
	}
	m.input = in
	m.output = shape
	m.loss = loss
	m.opt = opt
	m.parameters = params
	opt.init(params)
	m.compiled = true
	return nil
}

// InputShape returns the model's expected sample shape. For models loaded
// from a checkpoint it is known before Compile.
func (m *Sequential) InputShape() Shape {
	return m.input
}

// OutputLen returns the number of values the model emits per sample.
func (m *Sequential) OutputLen() int {
	return m.output.Len()
}

func (m *Sequential) forward(x []float64, train bool) []float64 {
	out := x
	for _, l := range m.layers {
		out = l.forward(out, train, m.rng)
	}
	return out
}

func (m *Sequential) checkInput(X [][]float64) error {
	if !m.compiled {
		return errors.Errorf("model must be compiled before it can predict")
	}
	want := m.input.Len()
	for i, row := range X {
		if len(row) != want {
			return errors.Errorf("sample %d has %d values, model expects %d", i, len(row), want)
		}
	}
	return nil
}

// Predict runs inference and returns one output row per sample.
func (m *Sequential) Predict(X [][]float64) ([][]float64, error) {
	if err := m.checkInput(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		row := make([]float64, m.output.Len())
		copy(row, m.forward(x, false))
		out[i] = row
	}
	return out, nil
}

// Evaluate returns the mean loss and the rounded-prediction accuracy of a
// binary classifier over a labeled set. Scores round half away from zero.
func (m *Sequential) Evaluate(X [][]float64, y []float64) (float64, float64, error) {
	if err := m.checkInput(X); err != nil {
		return 0, 0, err
	}
	if len(X) != len(y) {
		return 0, 0, errors.Errorf("got %d samples but %d labels", len(X), len(y))
	}
	if len(X) == 0 {
		return 0, 0, errors.Errorf("cannot evaluate on an empty set")
	}
	if m.output.Len() != 1 {
		return 0, 0, errors.Errorf("evaluate supports single-output classifiers, model emits %d values", m.output.Len())
	}
	tgt := make([]float64, 1)
	var lossSum float64
	var correct int
	for i, x := range X {
		out := m.forward(x, false)
		tgt[0] = y[i]
		lossSum += m.loss.Loss(out, tgt)
		if math.Round(out[0]) == y[i] {
			correct++
		}
	}
	n := float64(len(X))
	return lossSum / n, float64(correct) / n, nil
}
