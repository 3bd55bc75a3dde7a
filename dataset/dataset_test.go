package dataset

import (
	stderrors "errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeExamples(n, steps, feats int, label float64) Examples {
	ex := Examples{XShape: [2]int{steps, feats}}
	for i := 0; i < n; i++ {
		row := make([]float64, steps*feats)
		for j := range row {
			row[j] = float64(i*len(row) + j)
		}
		ex.X = append(ex.X, row)
		ex.Y = append(ex.Y, label)
	}
	return ex
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndReadSplit(t *testing.T) {
	s := tempStore(t)
	want := makeExamples(25, 4, 2, 1)
	require.NoError(t, s.PutExamples("train", want, 10))

	got, err := s.Examples("train")
	require.NoError(t, err)
	assert.Equal(t, want.X, got.X)
	assert.Equal(t, want.Y, got.Y)
	assert.Equal(t, [2]int{4, 2}, got.XShape)
}

func TestShapes(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.PutExamples("valid", makeExamples(7, 3, 5, 0), 4))

	xShape, yShape, err := s.Shapes("valid")
	require.NoError(t, err)
	assert.Equal(t, []int{7, 3, 5}, xShape)
	assert.Equal(t, []int{7}, yShape)

	_, _, err = s.Shapes("absent")
	require.Error(t, err)
}

func TestUserSplits(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.SetNumUsers(3))
	n, err := s.NumUsers()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want := makeExamples(4, 2, 2, 1)
	require.NoError(t, s.PutUserExamples(1, "test", want, 2))

	got, err := s.UserExamples(1, "test")
	require.NoError(t, err)
	assert.Equal(t, want.X, got.X)

	// partitions are per-user: user 0 has nothing
	_, err = s.UserExamples(0, "test")
	require.Error(t, err)
}

func TestPutExamplesValidates(t *testing.T) {
	s := tempStore(t)

	bad := makeExamples(3, 2, 2, 1)
	bad.Y = bad.Y[:2]
	require.Error(t, s.PutExamples("train", bad, 10))

	mis := makeExamples(3, 2, 2, 1)
	mis.X[1] = []float64{1, 2, 3}
	err := s.PutExamples("train", mis, 10)
	require.Error(t, err)
	var se *ShapeError
	require.True(t, stderrors.As(err, &se))

	require.Error(t, s.PutExamples("train", makeExamples(3, 2, 2, 1), 0))
}

func TestOpenMissingStoreFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nothing-here"))
	require.Error(t, err)
}

func TestShuffleKeepsPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	Shuffle(rng, X, y)

	for i := range X {
		assert.Equal(t, X[i][0], y[i], "sample %d lost its label", i)
	}
	assert.NotEqual(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, y, "eight elements should not survive a shuffle in order")
}
