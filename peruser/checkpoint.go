package peruser

import (
	"fmt"
	"log"
	"math"
	"path/filepath"

	"github.com/strokeid/strokeid/nnet"
)

// checkpointPeriod is how often, in epochs, the best-validation-loss model
// is considered for persistence.
const checkpointPeriod = 10

// checkpointObserver persists the model at a fixed epoch cadence whenever
// its validation loss improves on the best seen so far. Checkpoints are
// named deterministically by user index, epoch and validation loss.
type checkpointObserver struct {
	dir    string
	user   int
	period int
	model  *nnet.Sequential
	best   float64
}

func newCheckpointObserver(dir string, user int, model *nnet.Sequential) *checkpointObserver {
	return &checkpointObserver{
		dir:    dir,
		user:   user,
		period: checkpointPeriod,
		model:  model,
		best:   math.Inf(1),
	}
}

// OnEpochEnd implements nnet.EpochObserver. It never requests termination.
func (o *checkpointObserver) OnEpochEnd(state nnet.RunState) bool {
	if (state.Epoch+1)%o.period != 0 {
		return false
	}
	if state.ValLoss >= o.best {
		return false
	}
	o.best = state.ValLoss

	name := fmt.Sprintf("user_%d_model_%02d_%.2f.json", o.user, state.Epoch+1, state.ValLoss)
	if err := o.model.Save(filepath.Join(o.dir, name)); err != nil {
		log.Printf("failed to save checkpoint for user %d: %v", o.user, err)
		return false
	}
	log.Printf("saved checkpoint %s", name)
	return false
}
