// Command attn runs the canonical shape walkthrough of the attention core
// (a single head, multi-head attention and the feed-forward block on a
// random batch) and times repeated forward passes.
package main

import (
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/cookie1111/transformer-scratch/pkg/model"
	"github.com/cookie1111/transformer-scratch/pkg/model/attention"
	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config (defaults to the base transformer dimensions)")
	batchSize := flag.Int("batch", 16, "batch size for the demo input")
	seqLen := flag.Int("seq", 1, "sequence length for the demo input")
	iterations := flag.Int("iters", 50, "forward passes for the timing loop")
	seed := flag.Int64("seed", 42, "seed for weight initialization and input data")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg := model.DefaultConfig()
	if *configPath != "" {
		loaded, err := model.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("could not load config")
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Int("model_dim", cfg.ModelDim).
		Int("num_heads", cfg.NumHeads).
		Int("head_dim", cfg.HeadDim()).
		Int("hidden_dim", cfg.HiddenDim).
		Float32("dropout", cfg.Dropout).
		Msg("configuration")

	model.SetInitSeed(*seed)
	input := randomInput(*batchSize, *seqLen, cfg.ModelDim, *seed)

	head, err := attention.NewHead(cfg.ModelDim, cfg.HeadDim())
	if err != nil {
		log.Fatal().Err(err).Msg("could not build attention head")
	}
	headOut, err := head.Forward(input)
	if err != nil {
		log.Fatal().Err(err).Msg("attention head forward failed")
	}
	log.Info().Ints("input", input.Shape).Ints("output", headOut.Shape).Msg("attention head")

	mha, err := attention.NewMultiHeadAttentionFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build multi-head attention")
	}
	mhaOut, err := mha.Forward(input)
	if err != nil {
		log.Fatal().Err(err).Msg("multi-head attention forward failed")
	}
	log.Info().Ints("input", input.Shape).Ints("output", mhaOut.Shape).Msg("multi-head attention")

	ffn, err := model.NewFeedForward(cfg.ModelDim, cfg.HiddenDim, cfg.Dropout)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build feed-forward block")
	}
	ffnOut, err := ffn.Forward(input, false)
	if err != nil {
		log.Fatal().Err(err).Msg("feed-forward forward failed")
	}
	log.Info().Ints("input", input.Shape).Ints("output", ffnOut.Shape).Msg("feed-forward")

	// The two sub-layers compose into the encoder sub-block sequence.
	pipeline := model.Pipeline{
		model.LayerFunc(func(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
			return mha.Forward(x)
		}),
		ffn,
	}
	if _, err := pipeline.Forward(input, false); err != nil {
		log.Fatal().Err(err).Msg("pipeline forward failed")
	}

	if *iterations <= 0 {
		return
	}
	bar := progressbar.Default(int64(*iterations), "forward passes")
	start := time.Now()
	for i := 0; i < *iterations; i++ {
		if _, err := mha.Forward(input); err != nil {
			log.Fatal().Err(err).Int("iteration", i).Msg("forward pass failed")
		}
		_ = bar.Add(1)
	}
	elapsed := time.Since(start)
	log.Info().
		Int("iterations", *iterations).
		Dur("total", elapsed).
		Dur("per_pass", elapsed/time.Duration(*iterations)).
		Msg("timing")
}

func randomInput(batch, seq, modelDim int, seed int64) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	input := tensor.NewTensor([]int{batch, seq, modelDim})
	for i := range input.Data {
		input.Data[i] = rng.Float32()*2 - 1
	}
	return input
}
