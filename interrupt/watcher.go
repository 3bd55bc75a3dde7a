// Package interrupt converts OS interrupt signals into graceful training
// termination.
package interrupt

import (
	"log"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/strokeid/strokeid/nnet"
)

// Watcher listens for interrupt signals. The first signal during training
// sets the stop token, so the fit loop ends after its in-flight batch. Any
// signal received after MarkComplete exits the process immediately.
// MarkComplete is never reset within a run, so interrupting between users
// force-exits rather than skipping a user.
type Watcher struct {
	token    *nnet.StopToken
	complete int32
	sigs     chan os.Signal
	exit     func(code int)
}

func newWatcher(token *nnet.StopToken, exit func(int)) *Watcher {
	return &Watcher{
		token: token,
		sigs:  make(chan os.Signal, 1),
		exit:  exit,
	}
}

// Watch registers for os.Interrupt and starts the listener goroutine.
func Watch(token *nnet.StopToken) *Watcher {
	w := newWatcher(token, os.Exit)
	signal.Notify(w.sigs, os.Interrupt)
	go w.loop()
	return w
}

func (w *Watcher) loop() {
	for range w.sigs {
		if atomic.LoadInt32(&w.complete) == 1 {
			w.exit(1)
			return
		}
		log.Println("interrupt received; training will finish after the current batch")
		w.token.Stop()
	}
}

// MarkComplete implements peruser.Completer: from now on interrupts exit
// the process instead of requesting early termination.
func (w *Watcher) MarkComplete() {
	atomic.StoreInt32(&w.complete, 1)
}

// Close unregisters the watcher from signal delivery.
func (w *Watcher) Close() {
	signal.Stop(w.sigs)
}
