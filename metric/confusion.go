package metric

import (
	"fmt"
	"io/ioutil"
	"math"

	"github.com/pkg/errors"
)

// ConfusionMatrix tallies rounded predictions against labels. Rows are the
// true class, columns the predicted class; any label other than 1
// (including the -1 unknown sentinel) counts as the negative class.
func ConfusionMatrix(yTrue, yPred []float64) [2][2]int {
	var m [2][2]int
	for i, t := range yTrue {
		row := 0
		if t == 1 {
			row = 1
		}
		col := 0
		if math.Round(yPred[i]) == 1 {
			col = 1
		}
		m[row][col]++
	}
	return m
}

// WriteConfusionMatrix writes a matrix as a whitespace-delimited 2x2
// integer file.
func WriteConfusionMatrix(path string, m [2][2]int) error {
	body := fmt.Sprintf("%d %d\n%d %d\n", m[0][0], m[0][1], m[1][0], m[1][1])
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		return errors.Wrapf(err, "writing confusion matrix to %s", path)
	}
	return nil
}
