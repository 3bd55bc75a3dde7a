package metric

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfusionMatrix(t *testing.T) {
	yTrue := []float64{1, 1, 0, -1, 0}
	yPred := []float64{0.9, 0.1, 0.8, 0.2, 0.1}

	m := ConfusionMatrix(yTrue, yPred)
	// negatives (0 and -1): two rejected, one accepted
	assert.Equal(t, 2, m[0][0])
	assert.Equal(t, 1, m[0][1])
	// positives: one rejected, one accepted
	assert.Equal(t, 1, m[1][0])
	assert.Equal(t, 1, m[1][1])
}

func TestWriteConfusionMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_0_confusion_matrix.txt")
	require.NoError(t, WriteConfusionMatrix(path, [2][2]int{{2, 1}, {1, 1}}))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2 1\n1 1\n", string(data))
}
