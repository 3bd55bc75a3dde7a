package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	arg "github.com/alexflint/go-arg"

	"github.com/strokeid/strokeid/dataset"
	"github.com/strokeid/strokeid/interrupt"
	"github.com/strokeid/strokeid/nnet"
	"github.com/strokeid/strokeid/peruser"
)

func noErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// ensureDir prompts to create a missing output directory, so the core
// trainer only ever sees directories that exist (or no directory at all).
func ensureDir(path, what string) {
	if path == "" {
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}
	fmt.Printf("%s does not exist. Create it? (Y/n) >> ", what)
	resp, err := bufio.NewReader(os.Stdin).ReadString('\n')
	noErr(err)
	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "", "y", "yes", "1":
		noErr(os.MkdirAll(path, 0755))
	default:
		os.Exit(0)
	}
}

func main() {
	args := struct {
		DataPath    string `arg:"positional,required" help:"path to read examples from"`
		SavePath    string `arg:"-s,--savepath" help:"path to save trained models to; checkpoints are not saved when unset"`
		MetricsPath string `arg:"-m,--metricspath" help:"path to save additional performance metrics to"`
	}{}
	arg.MustParse(&args)

	ensureDir(args.SavePath, "Save path")
	ensureDir(args.MetricsPath, "Metrics path")

	store, err := dataset.Open(args.DataPath)
	noErr(err)
	defer store.Close()

	token := &nnet.StopToken{}
	watcher := interrupt.Watch(token)
	defer watcher.Close()

	trainer := &peruser.Trainer{
		Store:       store,
		Params:      peruser.DefaultParams(),
		SavePath:    args.SavePath,
		MetricsPath: args.MetricsPath,
		Token:       token,
		Completer:   watcher,
		Verbose:     true,
	}
	summary, err := trainer.Run()
	noErr(err)

	log.Println("---- Total Results ----")
	for _, r := range summary.Results {
		log.Printf("user %d: accuracy=%.4f FAR=%.4f FRR=%.4f", r.User, r.Accuracy, r.FAR, r.FRR)
	}
	log.Printf("mean: accuracy=%.4f FAR=%.4f FRR=%.4f", summary.MeanAccuracy, summary.MeanFAR, summary.MeanFRR)
	log.Printf("accuracy range: [%.4f, %.4f]", summary.MinAccuracy, summary.MaxAccuracy)
}
