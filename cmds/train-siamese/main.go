package main

import (
	"log"

	arg "github.com/alexflint/go-arg"

	"github.com/strokeid/strokeid/siamese"
)

func main() {
	args := struct {
		TripletsPath string `arg:"positional,required" help:"path to read triplets from"`
		ModelPath    string `arg:"positional,required" help:"path to read the pretrained tower model from"`
		Ensemble     int    `arg:"-e,--ensemble" default:"1" help:"how many examples to ensemble when predicting"`
		ReadBatches  bool   `arg:"-b,--readbatches" help:"read data incrementally in batches during training"`
	}{}
	arg.MustParse(&args)

	cfg := siamese.DefaultConfig(args.TripletsPath, args.ModelPath)
	cfg.Ensemble = args.Ensemble
	cfg.ReadBatches = args.ReadBatches
	cfg.Verbose = true

	res, err := siamese.Run(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if res.Ensembled {
		log.Printf("---- Validation Results. With ensembling = %d. ----", args.Ensemble)
	} else {
		log.Println("---- Validation Results. No ensembling. ----")
	}
	log.Printf("Accuracy = %.4f", res.Accuracy)
	log.Printf("FAR = %.4f", res.FAR)
	log.Printf("FRR = %.4f", res.FRR)
}
