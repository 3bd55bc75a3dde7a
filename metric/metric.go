// Package metric scores biometric authenticators. FAR is the fraction of
// impostor attempts that were accepted, FRR the fraction of genuine
// attempts that were rejected.
package metric

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Predictor is anything that can score a batch of samples; the first
// output per sample is read as the acceptance score in [0, 1].
type Predictor interface {
	Predict(X [][]float64) ([][]float64, error)
}

// DegenerateLabelsError reports that one class is entirely absent from a
// label vector, which makes FAR or FRR a division by zero. It is returned
// explicitly instead of letting the division produce garbage.
type DegenerateLabelsError struct {
	Class int
}

// Error implements error.
func (e *DegenerateLabelsError) Error() string {
	return fmt.Sprintf("no examples with label %d: FAR/FRR are undefined", e.Class)
}

// round maps a score in [0, 1] to a binary decision. Halves round away
// from zero, so a score of exactly 0.5 is an accept.
func round(score float64) float64 {
	return math.Round(score)
}

// AccuracyFARFRR scores rounded predictions against binary true labels.
// Returns a *DegenerateLabelsError when yTrue contains only one class.
func AccuracyFARFRR(yTrue, yPred []float64) (acc, far, frr float64, err error) {
	if len(yTrue) != len(yPred) {
		return 0, 0, 0, errors.Errorf("got %d true labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, 0, 0, errors.Errorf("cannot score an empty label vector")
	}

	var positives, negatives, correct, faErrors, frErrors int
	for i, t := range yTrue {
		p := round(yPred[i])
		if t == 1 {
			positives++
		} else {
			negatives++
		}
		switch {
		case t == p:
			correct++
		case t == 0 && p == 1:
			faErrors++
		case t == 1 && p == 0:
			frErrors++
		}
	}
	if negatives == 0 {
		return 0, 0, 0, &DegenerateLabelsError{Class: 0}
	}
	if positives == 0 {
		return 0, 0, 0, &DegenerateLabelsError{Class: 1}
	}

	acc = float64(correct) / float64(len(yTrue))
	far = float64(faErrors) / float64(negatives)
	frr = float64(frErrors) / float64(positives)
	return acc, far, frr, nil
}

// EnsembleAccuracyFARFRR aggregates consecutive predictions by majority
// vote before scoring, mirroring a verifier that sees several samples from
// one session. Decisions are taken over every complete window of
// ensembleSize-1 predictions at stride ensembleSize-1; a window votes 1
// when its rounded-vote sum strictly exceeds ensembleSize/2, and is scored
// against its leading true label. A trailing partial window is dropped.
//
// Windows only make sense when samples of one identity pair are contiguous
// in yTrue/yPred; the caller must uphold that ordering, since misaligned
// input silently produces meaningless results.
func EnsembleAccuracyFARFRR(yTrue, yPred []float64, ensembleSize int) (acc, far, frr float64, err error) {
	if ensembleSize < 2 {
		return 0, 0, 0, errors.Errorf("ensemble size must be at least 2, got %d", ensembleSize)
	}
	if len(yTrue) != len(yPred) {
		return 0, 0, 0, errors.Errorf("got %d true labels but %d predictions", len(yTrue), len(yPred))
	}

	window := ensembleSize - 1
	threshold := float64(ensembleSize / 2)

	var windows, positives, negatives, correct, faErrors, frErrors int
	for i := 0; i+window <= len(yTrue); i += window {
		var votes float64
		for k := 0; k < window; k++ {
			votes += round(yPred[i+k])
		}
		var decision float64
		if votes > threshold {
			decision = 1
		}

		t := yTrue[i]
		windows++
		if t == 1 {
			positives++
		} else {
			negatives++
		}
		switch {
		case t == decision:
			correct++
		case t == 0 && decision == 1:
			faErrors++
		case t == 1 && decision == 0:
			frErrors++
		}
	}
	if windows == 0 {
		return 0, 0, 0, errors.Errorf("no complete windows: %d predictions with ensemble size %d", len(yTrue), ensembleSize)
	}
	if negatives == 0 {
		return 0, 0, 0, &DegenerateLabelsError{Class: 0}
	}
	if positives == 0 {
		return 0, 0, 0, &DegenerateLabelsError{Class: 1}
	}

	acc = float64(correct) / float64(windows)
	far = float64(faErrors) / float64(negatives)
	frr = float64(frErrors) / float64(positives)
	return acc, far, frr, nil
}

// ComputeFARFRR runs the predictor over a test set and scores every
// attempt. Label 1 marks the genuine user; any other label (0, or the -1
// sentinel for unknown identities) is an impostor attempt.
func ComputeFARFRR(p Predictor, XTest [][]float64, yTest []float64) (far, frr float64, err error) {
	if len(XTest) != len(yTest) {
		return 0, 0, errors.Errorf("got %d samples but %d labels", len(XTest), len(yTest))
	}
	preds, err := p.Predict(XTest)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "scoring test set")
	}

	var validTries, imposterTries, faErrors, frErrors int
	for i, t := range yTest {
		accepted := round(preds[i][0]) == 1
		if t == 1 {
			validTries++
			if !accepted {
				frErrors++
			}
		} else {
			imposterTries++
			if accepted {
				faErrors++
			}
		}
	}
	if imposterTries == 0 {
		return 0, 0, &DegenerateLabelsError{Class: 0}
	}
	if validTries == 0 {
		return 0, 0, &DegenerateLabelsError{Class: 1}
	}
	return float64(faErrors) / float64(imposterTries), float64(frErrors) / float64(validTries), nil
}
