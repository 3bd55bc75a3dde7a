package nnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logisticModel(t *testing.T) *Sequential {
	m := NewSequential(&Dense{Units: 1, Activation: Sigmoid})
	m.Seed(3)
	require.NoError(t, m.Compile(Shape{Steps: 1, Feats: 1}, BinaryCrossEntropy{}, NewAdam(0.1)))
	return m
}

func TestFitReducesLoss(t *testing.T) {
	m := logisticModel(t)
	X := [][]float64{{0}, {1}, {0}, {1}}
	y := []float64{0, 1, 0, 1}

	hist, err := m.Fit(X, y, FitConfig{Epochs: 300, BatchSize: 4})
	require.NoError(t, err)
	require.Equal(t, 300, hist.Epochs)
	assert.False(t, hist.Interrupted)
	assert.Less(t, hist.Loss[len(hist.Loss)-1], hist.Loss[0])

	_, acc, err := m.Evaluate(X, y)
	require.NoError(t, err)
	assert.True(t, acc >= 0.75, "separable data should be mostly learned, got accuracy %v", acc)
}

func TestFitWithSGD(t *testing.T) {
	m := NewSequential(&Dense{Units: 1, Activation: Sigmoid})
	m.Seed(3)
	require.NoError(t, m.Compile(Shape{Steps: 1, Feats: 1}, BinaryCrossEntropy{}, NewSGD(0.5)))

	X := [][]float64{{0}, {1}, {0}, {1}}
	y := []float64{0, 1, 0, 1}
	hist, err := m.Fit(X, y, FitConfig{Epochs: 200, BatchSize: 4})
	require.NoError(t, err)
	assert.Less(t, hist.Loss[len(hist.Loss)-1], hist.Loss[0])
}

func TestFitTracksValidationLoss(t *testing.T) {
	m := logisticModel(t)
	X := [][]float64{{0}, {1}}
	y := []float64{0, 1}

	hist, err := m.Fit(X, y, FitConfig{Epochs: 3, BatchSize: 2, XValid: X, YValid: y})
	require.NoError(t, err)
	require.Len(t, hist.ValLoss, 3)
}

type countingObserver struct {
	batches int
	epochs  int
	stopAt  int // stop after this epoch index, -1 to never stop
}

func (o *countingObserver) OnBatchEnd(RunState) bool {
	o.batches++
	return false
}

func (o *countingObserver) OnEpochEnd(s RunState) bool {
	o.epochs++
	return o.stopAt >= 0 && s.Epoch >= o.stopAt
}

func TestFitInvokesObservers(t *testing.T) {
	m := logisticModel(t)
	X := make([][]float64, 10)
	y := make([]float64, 10)
	for i := range X {
		X[i] = []float64{float64(i % 2)}
		y[i] = float64(i % 2)
	}

	obs := &countingObserver{stopAt: -1}
	hist, err := m.Fit(X, y, FitConfig{
		Epochs:         2,
		BatchSize:      4,
		BatchObservers: []BatchObserver{obs},
		EpochObservers: []EpochObserver{obs},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, hist.Epochs)
	// 10 samples in batches of 4 => 3 batches per epoch
	assert.Equal(t, 6, obs.batches)
	assert.Equal(t, 2, obs.epochs)
}

func TestFitStopsOnEpochObserver(t *testing.T) {
	m := logisticModel(t)
	X := [][]float64{{0}, {1}}
	y := []float64{0, 1}

	obs := &countingObserver{stopAt: 0}
	hist, err := m.Fit(X, y, FitConfig{
		Epochs:         10,
		BatchSize:      2,
		EpochObservers: []EpochObserver{obs},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hist.Epochs)
	assert.False(t, hist.Interrupted)
}

// stopper flags the token at a chosen batch, standing in for the signal
// handler firing mid-epoch.
type stopper struct {
	token   *StopToken
	atBatch int
	calls   int
}

func (s *stopper) OnBatchEnd(state RunState) bool {
	s.calls++
	if state.Batch == s.atBatch {
		s.token.Stop()
	}
	return false
}

func TestFitStopsWithinOneBatchOfInterrupt(t *testing.T) {
	m := logisticModel(t)
	X := make([][]float64, 12)
	y := make([]float64, 12)
	for i := range X {
		X[i] = []float64{float64(i % 2)}
		y[i] = float64(i % 2)
	}

	token := &StopToken{}
	s := &stopper{token: token, atBatch: 1}
	hist, err := m.Fit(X, y, FitConfig{
		Epochs:         50,
		BatchSize:      2,
		Token:          token,
		BatchObservers: []BatchObserver{s},
	})
	require.NoError(t, err, "interruption is a normal early-exit path, not an error")
	assert.True(t, hist.Interrupted)
	assert.Equal(t, 1, hist.Epochs)
	// the in-flight batch completed, nothing after it ran
	assert.Equal(t, 2, s.calls)

	// the partially-trained model is still evaluable
	_, _, err = m.Evaluate(X, y)
	require.NoError(t, err)
}

func TestFitWithNilTokenRunsToCompletion(t *testing.T) {
	m := logisticModel(t)
	hist, err := m.Fit([][]float64{{0}, {1}}, []float64{0, 1}, FitConfig{Epochs: 2, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, hist.Epochs)
	assert.False(t, hist.Interrupted)
}

func TestFitValidatesArguments(t *testing.T) {
	m := logisticModel(t)

	_, err := m.Fit([][]float64{{0}}, []float64{0, 1}, FitConfig{Epochs: 1, BatchSize: 1})
	require.Error(t, err)

	_, err = m.Fit([][]float64{{0}}, []float64{0}, FitConfig{Epochs: 0, BatchSize: 1})
	require.Error(t, err)

	_, err = m.Fit(nil, nil, FitConfig{Epochs: 1, BatchSize: 1})
	require.Error(t, err)
}
