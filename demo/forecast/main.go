package main

import (
	"context"
	"flag"

	"github.com/sepidehkoohfar/MTAttention/dataset"
	"github.com/sepidehkoohfar/MTAttention/forecast"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/rip"
)

func main() {
	cfg := forecast.DefaultConfig()
	var loadPath, logLevel string

	flag.StringVar(&cfg.DataDir, "data_dir", cfg.DataDir, "directory of site CSV files")
	flag.StringVar(&cfg.Site, "site", cfg.Site, "site name (CSV file name without extension)")
	flag.StringVar(&cfg.Column, "column", dataset.DefaultColumn, "series column")
	flag.IntVar(&cfg.Synthetic, "synthetic", 0, "use a sine series of this length instead of the CSV")
	flag.IntVar(&cfg.InputSize, "input_size", cfg.InputSize, "window length")
	flag.IntVar(&cfg.OutputSize, "output_size", cfg.OutputSize, "horizon length")
	flag.IntVar(&cfg.DModel, "d_model", cfg.DModel, "model width")
	flag.IntVar(&cfg.NumHeads, "n_head", cfg.NumHeads, "attention heads")
	flag.StringVar(&cfg.Activation, "act_type", cfg.Activation, "feed-forward activation")
	flag.Float64Var(&cfg.Dropout, "dropout_rate", cfg.Dropout, "dropout rate")
	flag.IntVar(&cfg.DForward, "d_forward", cfg.DForward, "feed-forward width")
	flag.IntVar(&cfg.NumEncoderLayers, "num_encoder_layers", cfg.NumEncoderLayers, "encoder depth")
	flag.IntVar(&cfg.NumDecoderLayers, "num_decoder_layers", cfg.NumDecoderLayers, "decoder depth")
	flag.BoolVar(&cfg.IndependentLayers, "independent_layers", false,
		"give every depth its own weights")
	flag.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "training epochs")
	flag.IntVar(&cfg.TimeSteps, "time_steps", cfg.TimeSteps, "positions per sample")
	flag.IntVar(&cfg.EncodeLength, "encode_length", cfg.EncodeLength, "encoder length")
	flag.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "mini-batch size")
	flag.IntVar(&cfg.MaxSamples, "max_samples", cfg.MaxSamples, "samples per split")
	flag.IntVar(&cfg.PredictionLength, "prediction_length", cfg.PredictionLength,
		"length of the validation and test splits")
	flag.StringVar(&cfg.Save, "save", cfg.Save, "checkpoint path")
	flag.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "learning rate")
	flag.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "adam, rmsprop, momentum or sgd")
	flag.BoolVar(&cfg.ResetOptimizer, "reset_optimizer", cfg.ResetOptimizer,
		"start every epoch with fresh optimizer state")
	flag.Float64Var(&cfg.L2, "l2", 0, "L2 weight penalty")
	flag.Int64Var(&cfg.Seed, "seed", 0, "random seed (0 for the global source)")
	flag.BoolVar(&cfg.LegacyMSE, "legacy_mse", false, "report the running-concatenation MSE")
	flag.IntVar(&cfg.LogInterval, "log_interval", cfg.LogInterval, "steps between progress logs")
	flag.BoolVar(&cfg.Float64, "float64", false, "use 64-bit floats")
	flag.StringVar(&loadPath, "load", "", "evaluate this checkpoint on the test split")
	flag.StringVar(&logLevel, "log_level", "info", "log level")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logger.Fatal(err)
	}
	logger.SetLevel(level)

	ctx := context.Background()
	splits, err := forecast.LoadSplits(ctx, cfg)
	if err != nil {
		logger.Fatal(err)
	}
	logger.WithFields(logrus.Fields{
		"train": len(splits.Train),
		"valid": len(splits.Valid),
		"test":  len(splits.Test),
	}).Info("loaded samples")

	if loadPath != "" {
		f, err := forecast.Load(cfg, loadPath, logger)
		if err != nil {
			logger.Fatal(err)
		}
		res, err := f.Evaluate(splits.Test)
		if err != nil {
			logger.Fatal(err)
		}
		logger.WithField("result", res.String()).Info("test")
		return
	}

	f, err := forecast.New(cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Info("Press ctrl+c once to stop after the current epoch...")
	if _, err := f.Run(ctx, splits, rip.NewRIP().Chan()); err != nil {
		logger.Fatal(err)
	}
}
