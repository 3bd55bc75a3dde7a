package nnet

import (
	"log"

	"github.com/pkg/errors"
)

// RunState is a snapshot of training progress handed to observers.
type RunState struct {
	Epoch int
	Batch int
	// Loss is the running mean training loss of the current epoch.
	Loss float64
	// ValLoss is the validation loss; only meaningful at epoch boundaries.
	ValLoss float64
}

// BatchObserver is invoked after every batch. Returning true stops
// training after the current batch.
type BatchObserver interface {
	OnBatchEnd(state RunState) (stop bool)
}

// EpochObserver is invoked after every completed epoch. Returning true
// stops training after the current epoch.
type EpochObserver interface {
	OnEpochEnd(state RunState) (stop bool)
}

// FitConfig configures a training run.
type FitConfig struct {
	Epochs    int
	BatchSize int

	// XValid/YValid, when set, are scored after every epoch.
	XValid [][]float64
	YValid []float64

	// Token is polled after every batch; once stopped, training ends
	// after the in-flight batch rather than the in-flight epoch.
	Token *StopToken

	BatchObservers []BatchObserver
	EpochObservers []EpochObserver

	// Verbose logs per-epoch losses.
	Verbose bool
}

// History records what a fit run did. Interrupted is a normal outcome, not
// an error: the partially-trained model remains usable.
type History struct {
	Epochs      int
	Interrupted bool
	Loss        []float64
	ValLoss     []float64
}

// Fit trains the model with minibatch updates. Gradients accumulate over a
// batch and are applied once per batch, averaged over its samples.
func (m *Sequential) Fit(X [][]float64, y []float64, cfg FitConfig) (History, error) {
	var hist History
	if err := m.checkInput(X); err != nil {
		return hist, err
	}
	if len(X) != len(y) {
		return hist, errors.Errorf("got %d samples but %d labels", len(X), len(y))
	}
	if len(X) == 0 {
		return hist, errors.Errorf("cannot fit on an empty set")
	}
	if m.output.Len() != 1 {
		return hist, errors.Errorf("fit supports single-output classifiers, model emits %d values", m.output.Len())
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return hist, errors.Errorf("fit needs positive epochs and batch size, got %d and %d", cfg.Epochs, cfg.BatchSize)
	}
	if len(cfg.XValid) != len(cfg.YValid) {
		return hist, errors.Errorf("got %d validation samples but %d labels", len(cfg.XValid), len(cfg.YValid))
	}

	n := len(X)
	tgt := make([]float64, 1)
	lossGrad := make([]float64, 1)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var epochLoss float64
		var seen int
		var stopped bool
		batch := 0

		for start := 0; start < n; start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > n {
				end = n
			}
			for i := start; i < end; i++ {
				out := m.forward(X[i], true)
				tgt[0] = y[i]
				epochLoss += m.loss.Loss(out, tgt)
				seen++
				m.loss.Grad(out, tgt, lossGrad)
				grad := lossGrad
				for li := len(m.layers) - 1; li >= 0; li-- {
					grad = m.layers[li].backward(grad)
				}
			}
			m.opt.step(m.parameters, 1/float64(end-start))

			state := RunState{Epoch: epoch, Batch: batch, Loss: epochLoss / float64(seen)}
			for _, o := range cfg.BatchObservers {
				if o.OnBatchEnd(state) {
					stopped = true
				}
			}
			if cfg.Token.Stopped() {
				hist.Interrupted = true
			}
			batch++
			if stopped || hist.Interrupted {
				break
			}
		}

		trainLoss := epochLoss / float64(seen)
		hist.Loss = append(hist.Loss, trainLoss)
		hist.Epochs = epoch + 1

		state := RunState{Epoch: epoch, Batch: batch - 1, Loss: trainLoss}
		if len(cfg.XValid) > 0 {
			valLoss, _, err := m.Evaluate(cfg.XValid, cfg.YValid)
			if err != nil {
				return hist, errors.Wrapf(err, "scoring validation set")
			}
			hist.ValLoss = append(hist.ValLoss, valLoss)
			state.ValLoss = valLoss
		}
		if cfg.Verbose {
			log.Printf("epoch %d/%d: loss=%.4f val_loss=%.4f", epoch+1, cfg.Epochs, state.Loss, state.ValLoss)
		}
		if hist.Interrupted {
			break
		}
		for _, o := range cfg.EpochObservers {
			if o.OnEpochEnd(state) {
				stopped = true
			}
		}
		if stopped {
			break
		}
	}
	return hist, nil
}
