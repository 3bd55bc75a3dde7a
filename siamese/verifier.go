// Package siamese trains the verifier half of the siamese pipeline: a
// shallow binary classifier over embedding-distance vectors that decides
// whether two samples come from the same identity.
package siamese

import (
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/strokeid/strokeid/dataset"
	"github.com/strokeid/strokeid/metric"
	"github.com/strokeid/strokeid/nnet"
	"github.com/strokeid/strokeid/tower"
)

// maxEnsemble bounds how many consecutive predictions may be aggregated
// into one decision.
const maxEnsemble = 100

// Batched-supply sizes, matching the reference pipeline: training reads
// 10 batches of 100 triplets, validation reads 1000-triplet batches
// unbounded.
const (
	trainBatchSize = 100
	trainStopAfter = 10
	validBatchSize = 1000
	validStopAfter = 0
)

// Config drives a verifier training run.
type Config struct {
	TripletsPath string
	ModelPath    string

	// Ensemble > 1 aggregates that many consecutive predictions per
	// decision during evaluation. At most maxEnsemble.
	Ensemble int
	// ReadBatches switches triplet supply from whole-split arrays to
	// incremental batches.
	ReadBatches bool

	LearningRate float64
	BatchSize    int
	Epochs       int
	DropoutRate  float64

	// Seed, when non-zero, makes shuffling and weight init deterministic.
	Seed    int64
	Verbose bool
}

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig(tripletsPath, modelPath string) Config {
	return Config{
		TripletsPath: tripletsPath,
		ModelPath:    modelPath,
		Ensemble:     1,
		LearningRate: 1e-2,
		BatchSize:    10000,
		Epochs:       100,
		DropoutRate:  0.2,
	}
}

// Validate fails fast on bad configuration, before any model or data is
// touched.
func (c Config) Validate() error {
	if c.Ensemble < 1 || c.Ensemble > maxEnsemble {
		return errors.Errorf("invalid ensemble value %d: cannot ensemble more than %d predictions", c.Ensemble, maxEnsemble)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.Epochs <= 0 || c.BatchSize <= 0 {
		return errors.Errorf("epochs and batch size must be positive, got %d and %d", c.Epochs, c.BatchSize)
	}
	if _, err := os.Stat(c.TripletsPath); err != nil {
		return errors.Wrapf(err, "the specified triplet store does not exist")
	}
	if _, err := os.Stat(c.ModelPath); err != nil {
		return errors.Wrapf(err, "the specified tower model does not exist")
	}
	return nil
}

// BuildVerifier assembles the distance-vector classifier.
func BuildVerifier(dropoutRate float64) *nnet.Sequential {
	return nnet.NewSequential(
		&nnet.Dense{Units: 32, Activation: nnet.ReLU},
		&nnet.Dropout{Rate: dropoutRate},
		&nnet.Dense{Units: 1, Activation: nnet.Sigmoid},
	)
}

// Results are the verifier's validation scores.
type Results struct {
	Accuracy  float64
	FAR       float64
	FRR       float64
	Ensembled bool
}

// Score computes the verifier metrics, delegating to the ensembled metric
// when ensemble > 1. Callers using ensembling must pass labels in
// session-contiguous order.
func Score(ensemble int, yTrue, scores []float64) (Results, error) {
	if ensemble > 1 {
		acc, far, frr, err := metric.EnsembleAccuracyFARFRR(yTrue, scores, ensemble)
		if err != nil {
			return Results{}, err
		}
		return Results{Accuracy: acc, FAR: far, FRR: frr, Ensembled: true}, nil
	}
	acc, far, frr, err := metric.AccuracyFARFRR(yTrue, scores)
	if err != nil {
		return Results{}, err
	}
	return Results{Accuracy: acc, FAR: far, FRR: frr}, nil
}

func distances(pd *tower.PairDistance, store *dataset.Store, split string, batched bool, batchSize, stopAfter int) (pos, neg [][]float64, err error) {
	if batched {
		gen, err := dataset.NewTripletBatches(store, split, batchSize, stopAfter)
		if err != nil {
			return nil, nil, err
		}
		defer gen.Close()
		return pd.DistancesFromBatches(gen)
	}

	anchors, err := store.Examples(split + "_anchors")
	if err != nil {
		return nil, nil, err
	}
	positives, err := store.Examples(split + "_positives")
	if err != nil {
		return nil, nil, err
	}
	negatives, err := store.Examples(split + "_negatives")
	if err != nil {
		return nil, nil, err
	}
	if positives.XShape != anchors.XShape {
		return nil, nil, &dataset.ShapeError{Split: split + "_positives", Want: anchors.XShape, Got: positives.XShape}
	}
	if negatives.XShape != anchors.XShape {
		return nil, nil, &dataset.ShapeError{Split: split + "_negatives", Want: anchors.XShape, Got: negatives.XShape}
	}
	return pd.Distances(anchors.X, positives.X, negatives.X)
}

// Run executes the full verifier pipeline: load the pretrained tower,
// assemble distance vectors from triplets, train the verifier and score it
// on the validation set.
func Run(cfg Config) (Results, error) {
	if err := cfg.Validate(); err != nil {
		return Results{}, err
	}

	twr, err := tower.Load(cfg.ModelPath, tower.CustomObjects())
	if err != nil {
		return Results{}, err
	}
	store, err := dataset.Open(cfg.TripletsPath)
	if err != nil {
		return Results{}, err
	}
	defer store.Close()

	pd := tower.NewPairDistance(twr)
	posTrain, negTrain, err := distances(pd, store, "train", cfg.ReadBatches, trainBatchSize, trainStopAfter)
	if err != nil {
		return Results{}, errors.Wrapf(err, "assembling training distances")
	}
	posValid, negValid, err := distances(pd, store, "valid", cfg.ReadBatches, validBatchSize, validStopAfter)
	if err != nil {
		return Results{}, errors.Wrapf(err, "assembling validation distances")
	}

	XTrain, yTrain := tower.BuildTrainingSet(posTrain, negTrain)
	XValid, yValid := tower.BuildTrainingSet(posValid, negValid)
	if len(XTrain) == 0 || len(XValid) == 0 {
		return Results{}, errors.Errorf("triplet store produced an empty training or validation set")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	dataset.Shuffle(rand.New(rand.NewSource(seed)), XTrain, yTrain)

	model := BuildVerifier(cfg.DropoutRate)
	if cfg.Seed != 0 {
		model.Seed(cfg.Seed)
	}
	in := nnet.Shape{Steps: 1, Feats: len(XTrain[0])}
	if err := model.Compile(in, nnet.BinaryCrossEntropy{}, nnet.NewAdam(cfg.LearningRate)); err != nil {
		return Results{}, errors.Wrapf(err, "building verifier")
	}
	if _, err := model.Fit(XTrain, yTrain, nnet.FitConfig{
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		XValid:    XValid,
		YValid:    yValid,
		Verbose:   cfg.Verbose,
	}); err != nil {
		return Results{}, errors.Wrapf(err, "training verifier")
	}

	preds, err := model.Predict(XValid)
	if err != nil {
		return Results{}, err
	}
	scores := make([]float64, len(preds))
	for i, row := range preds {
		scores[i] = row[0]
	}
	return Score(cfg.Ensemble, yValid, scores)
}
