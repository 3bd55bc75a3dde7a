// Package peruser trains one binary classifier per user identity: a small
// 1-D CNN that discriminates the user's samples from randomly-sampled
// impostor samples.
package peruser

import (
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"

	"github.com/strokeid/strokeid/dataset"
	"github.com/strokeid/strokeid/metric"
	"github.com/strokeid/strokeid/nnet"
)

// Params are the per-user trainer hyperparameters.
type Params struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	DropoutRate  float64
}

// DefaultParams returns the reference hyperparameters.
func DefaultParams() Params {
	return Params{Epochs: 25, BatchSize: 32, LearningRate: 3e-4, DropoutRate: 0}
}

// Result is one user's test scores.
type Result struct {
	User        int
	Loss        float64
	Accuracy    float64
	FAR         float64
	FRR         float64
	Interrupted bool
}

// Summary aggregates results across all users.
type Summary struct {
	Results      []Result
	MeanAccuracy float64
	MinAccuracy  float64
	MaxAccuracy  float64
	MeanFAR      float64
	MeanFRR      float64
}

// Completer is notified once a fit+evaluate cycle finishes. The interrupt
// watcher uses it to switch from graceful early termination to immediate
// exit; it is never reset within a run, so an interrupt delivered between
// users also exits immediately.
type Completer interface {
	MarkComplete()
}

// Trainer trains and evaluates one classifier per user.
//
// Empty SavePath/MetricsPath are valid no-op configuration: checkpoints or
// confusion matrices are simply skipped. Directory existence is the CLI
// layer's concern.
type Trainer struct {
	Store       *dataset.Store
	Params      Params
	SavePath    string
	MetricsPath string
	Token       *nnet.StopToken
	Completer   Completer
	// Seed, when non-zero, makes shuffling and weight init deterministic.
	Seed    int64
	Verbose bool
}

// BuildModel assembles the per-user classifier: two conv+dropout blocks,
// then two dense+dropout blocks into a sigmoid output.
func BuildModel(in nnet.Shape, dropoutRate float64) *nnet.Sequential {
	return nnet.NewSequential(
		&nnet.Conv1D{Filters: 128, Kernel: 2, Activation: nnet.ReLU, InputShape: in},
		&nnet.Dropout{Rate: dropoutRate},
		&nnet.Conv1D{Filters: 64, Kernel: 2, Activation: nnet.ReLU},
		&nnet.Dropout{Rate: dropoutRate},
		&nnet.Flatten{},
		&nnet.Dense{Units: 32, Activation: nnet.ReLU},
		&nnet.Dropout{Rate: dropoutRate},
		&nnet.Dense{Units: 16, Activation: nnet.ReLU},
		&nnet.Dropout{Rate: dropoutRate},
		&nnet.Dense{Units: 1, Activation: nnet.Sigmoid},
	)
}

func (t *Trainer) userSeed(user int) int64 {
	if t.Seed != 0 {
		return t.Seed + int64(user)
	}
	return time.Now().UnixNano()
}

// TrainUser loads one user's partitions, trains a fresh classifier and
// scores it on the user's test partition. An interrupted fit is not an
// error: whatever model state exists at interruption time is evaluated.
func (t *Trainer) TrainUser(user int) (Result, error) {
	if t.Params.Epochs <= 0 || t.Params.BatchSize <= 0 {
		return Result{}, errors.Errorf("trainer needs positive epochs and batch size, got %d and %d", t.Params.Epochs, t.Params.BatchSize)
	}

	train, err := t.Store.UserExamples(user, "train")
	if err != nil {
		return Result{}, err
	}
	valid, err := t.Store.UserExamples(user, "valid")
	if err != nil {
		return Result{}, err
	}
	if valid.XShape != train.XShape {
		return Result{}, &dataset.ShapeError{Split: "valid", Want: train.XShape, Got: valid.XShape}
	}

	rng := rand.New(rand.NewSource(t.userSeed(user)))
	dataset.Shuffle(rng, train.X, train.Y)
	dataset.Shuffle(rng, valid.X, valid.Y)

	in := nnet.Shape{Steps: train.XShape[0], Feats: train.XShape[1]}
	model := BuildModel(in, t.Params.DropoutRate)
	if t.Seed != 0 {
		model.Seed(t.userSeed(user))
	}
	if err := model.Compile(in, nnet.BinaryCrossEntropy{}, nnet.NewAdam(t.Params.LearningRate)); err != nil {
		return Result{}, errors.Wrapf(err, "building classifier for user %d", user)
	}

	cfg := nnet.FitConfig{
		Epochs:    t.Params.Epochs,
		BatchSize: t.Params.BatchSize,
		XValid:    valid.X,
		YValid:    valid.Y,
		Token:     t.Token,
		Verbose:   t.Verbose,
	}
	if t.SavePath != "" {
		cfg.EpochObservers = append(cfg.EpochObservers, newCheckpointObserver(t.SavePath, user, model))
	}

	log.Printf("training on user %d", user)
	hist, err := model.Fit(train.X, train.Y, cfg)
	if err != nil {
		return Result{}, errors.Wrapf(err, "training classifier for user %d", user)
	}
	if hist.Interrupted {
		log.Printf("training on user %d terminated early; evaluating the partially-trained model", user)
	}

	test, err := t.Store.UserExamples(user, "test")
	if err != nil {
		return Result{}, err
	}
	if test.XShape != train.XShape {
		return Result{}, &dataset.ShapeError{Split: "test", Want: train.XShape, Got: test.XShape}
	}

	loss, acc, err := model.Evaluate(test.X, test.Y)
	if err != nil {
		return Result{}, errors.Wrapf(err, "evaluating user %d", user)
	}
	far, frr, err := metric.ComputeFARFRR(model, test.X, test.Y)
	if err != nil {
		return Result{}, errors.Wrapf(err, "scoring FAR/FRR for user %d", user)
	}
	if t.Completer != nil {
		t.Completer.MarkComplete()
	}

	if t.MetricsPath != "" {
		preds, err := model.Predict(test.X)
		if err != nil {
			return Result{}, err
		}
		scores := make([]float64, len(preds))
		for i, row := range preds {
			scores[i] = row[0]
		}
		cm := metric.ConfusionMatrix(test.Y, scores)
		path := filepath.Join(t.MetricsPath, fmt.Sprintf("user_%d_confusion_matrix.txt", user))
		if err := metric.WriteConfusionMatrix(path, cm); err != nil {
			return Result{}, err
		}
	}

	log.Printf("user %d: loss=%.4f accuracy=%.4f FAR=%.4f FRR=%.4f", user, loss, acc, far, frr)
	return Result{User: user, Loss: loss, Accuracy: acc, FAR: far, FRR: frr, Interrupted: hist.Interrupted}, nil
}

// Run trains every user in [0, NumUsers) and aggregates their scores.
func (t *Trainer) Run() (Summary, error) {
	n, err := t.Store.NumUsers()
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	var runErr error
	err = tqdm.With(iterators.Interval(0, n), "Training per-user classifiers", func(v interface{}) (brk bool) {
		user := v.(int)
		res, err := t.TrainUser(user)
		if err != nil {
			runErr = err
			return true
		}
		summary.Results = append(summary.Results, res)
		return false
	})
	if runErr != nil {
		return Summary{}, runErr
	}
	if err != nil {
		return Summary{}, errors.Wrapf(err, "iterating users")
	}

	accs := make([]float64, len(summary.Results))
	fars := make([]float64, len(summary.Results))
	frrs := make([]float64, len(summary.Results))
	for i, r := range summary.Results {
		accs[i], fars[i], frrs[i] = r.Accuracy, r.FAR, r.FRR
	}
	if summary.MeanAccuracy, err = stats.Mean(accs); err != nil {
		return Summary{}, errors.Wrapf(err, "aggregating accuracies")
	}
	if summary.MinAccuracy, err = stats.Min(accs); err != nil {
		return Summary{}, errors.Wrapf(err, "aggregating accuracies")
	}
	if summary.MaxAccuracy, err = stats.Max(accs); err != nil {
		return Summary{}, errors.Wrapf(err, "aggregating accuracies")
	}
	if summary.MeanFAR, err = stats.Mean(fars); err != nil {
		return Summary{}, errors.Wrapf(err, "aggregating FARs")
	}
	if summary.MeanFRR, err = stats.Mean(frrs); err != nil {
		return Summary{}, errors.Wrapf(err, "aggregating FRRs")
	}
	return summary, nil
}
