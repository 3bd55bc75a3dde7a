package peruser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strokeid/strokeid/dataset"
	"github.com/strokeid/strokeid/nnet"
)

// twoClassExamples builds n genuine and n impostor samples of shape 4x2,
// separable by magnitude. sentinel swaps impostor labels to -1 the way test
// partitions mark unknown users.
func twoClassExamples(n int, sentinel bool) dataset.Examples {
	ex := dataset.Examples{XShape: [2]int{4, 2}}
	for i := 0; i < n; i++ {
		genuine := make([]float64, 8)
		impostor := make([]float64, 8)
		for j := range genuine {
			genuine[j] = 0.9 + 0.01*float64(i%3)
			impostor[j] = 0.1 - 0.01*float64(i%3)
		}
		ex.X = append(ex.X, genuine, impostor)
		neg := 0.0
		if sentinel {
			neg = -1
		}
		ex.Y = append(ex.Y, 1, neg)
	}
	return ex
}

func seedStore(t *testing.T, users int) *dataset.Store {
	t.Helper()
	s, err := dataset.Create(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SetNumUsers(users))
	for u := 0; u < users; u++ {
		require.NoError(t, s.PutUserExamples(u, "train", twoClassExamples(8, false), 16))
		require.NoError(t, s.PutUserExamples(u, "valid", twoClassExamples(4, false), 16))
		require.NoError(t, s.PutUserExamples(u, "test", twoClassExamples(4, true), 16))
	}
	return s
}

func quickParams() Params {
	p := DefaultParams()
	p.Epochs = 2
	p.BatchSize = 4
	return p
}

func TestTrainUser(t *testing.T) {
	tr := &Trainer{Store: seedStore(t, 1), Params: quickParams(), Seed: 17}

	res, err := tr.TrainUser(0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.User)
	assert.False(t, res.Interrupted)
	assert.True(t, res.Loss > 0)
	assert.True(t, res.Accuracy >= 0 && res.Accuracy <= 1)
	assert.True(t, res.FAR >= 0 && res.FAR <= 1)
	assert.True(t, res.FRR >= 0 && res.FRR <= 1)
}

func TestTrainUserValidatesParams(t *testing.T) {
	tr := &Trainer{Store: seedStore(t, 1), Params: Params{Epochs: 0, BatchSize: 4}}
	_, err := tr.TrainUser(0)
	require.Error(t, err)
}

func TestTrainUserMissingPartition(t *testing.T) {
	tr := &Trainer{Store: seedStore(t, 1), Params: quickParams()}
	_, err := tr.TrainUser(5)
	require.Error(t, err)
}

func TestTrainUserWritesCheckpoints(t *testing.T) {
	dir := t.TempDir()
	p := quickParams()
	p.Epochs = 10
	tr := &Trainer{Store: seedStore(t, 1), Params: p, SavePath: dir, Seed: 17}

	_, err := tr.TrainUser(0)
	require.NoError(t, err)

	// the cadence lands exactly once in 10 epochs
	matches, err := filepath.Glob(filepath.Join(dir, "user_0_model_10_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// the checkpoint is a loadable model
	m, err := nnet.LoadModel(matches[0], nil)
	require.NoError(t, err)
	assert.Equal(t, nnet.Shape{Steps: 4, Feats: 2}, m.InputShape())
}

func TestTrainUserSkipsCheckpointsBelowPeriod(t *testing.T) {
	dir := t.TempDir()
	tr := &Trainer{Store: seedStore(t, 1), Params: quickParams(), SavePath: dir, Seed: 17}

	_, err := tr.TrainUser(0)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "user_0_model_*.json"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTrainUserWritesConfusionMatrix(t *testing.T) {
	dir := t.TempDir()
	tr := &Trainer{Store: seedStore(t, 1), Params: quickParams(), MetricsPath: dir, Seed: 17}

	_, err := tr.TrainUser(0)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "user_0_confusion_matrix.txt"))
	require.NoError(t, err)
}

type fakeCompleter struct{ calls int }

func (f *fakeCompleter) MarkComplete() { f.calls++ }

func TestTrainUserMarksComplete(t *testing.T) {
	fc := &fakeCompleter{}
	tr := &Trainer{Store: seedStore(t, 1), Params: quickParams(), Completer: fc, Seed: 17}

	_, err := tr.TrainUser(0)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)
}

func TestTrainUserEvaluatesAfterInterrupt(t *testing.T) {
	token := &nnet.StopToken{}
	token.Stop()
	tr := &Trainer{Store: seedStore(t, 1), Params: quickParams(), Token: token, Seed: 17}

	res, err := tr.TrainUser(0)
	require.NoError(t, err, "an interrupted fit still yields an evaluated result")
	assert.True(t, res.Interrupted)
	assert.True(t, res.Accuracy >= 0 && res.Accuracy <= 1)
}

func TestRunAggregates(t *testing.T) {
	tr := &Trainer{Store: seedStore(t, 2), Params: quickParams(), Seed: 17}

	summary, err := tr.Run()
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, 0, summary.Results[0].User)
	assert.Equal(t, 1, summary.Results[1].User)
	assert.True(t, summary.MeanAccuracy >= 0 && summary.MeanAccuracy <= 1)
	assert.True(t, summary.MinAccuracy <= summary.MeanAccuracy)
	assert.True(t, summary.MaxAccuracy >= summary.MeanAccuracy)
	assert.True(t, summary.MeanFAR >= 0 && summary.MeanFAR <= 1)
	assert.True(t, summary.MeanFRR >= 0 && summary.MeanFRR <= 1)
}
