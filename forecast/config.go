// Package forecast trains and evaluates the Transformer
// forecaster on a univariate series.
package forecast

import (
	"errors"
	"fmt"

	"github.com/sepidehkoohfar/MTAttention"
	"github.com/sepidehkoohfar/MTAttention/anysgd"
	"github.com/sepidehkoohfar/MTAttention/dataset"
	"github.com/sepidehkoohfar/MTAttention/transformer"
)

// Config holds every setting of a training run.
type Config struct {
	// Data source.
	DataDir string
	Site    string
	Column  string

	// Synthetic, if positive, replaces the CSV data with a
	// noisy sine series of this many values.
	Synthetic int

	// Windowing.
	InputSize        int
	OutputSize       int
	TimeSteps        int
	EncodeLength     int
	MaxSamples       int
	PredictionLength int

	// Model.
	DModel            int
	NumHeads          int
	Activation        string
	Dropout           float64
	DForward          int
	NumEncoderLayers  int
	NumDecoderLayers  int
	IndependentLayers bool
	Float64           bool

	// Training.
	Epochs       int
	BatchSize    int
	LearningRate float64
	Optimizer    string
	L2           float64
	Seed         int64

	// ResetOptimizer discards the optimizer state at the
	// start of every epoch.
	ResetOptimizer bool

	// LegacyMSE selects the running-concatenation MSE for
	// evaluation; see metrics.Accumulator.
	LegacyMSE bool

	// LogInterval controls step logging: a step is logged
	// when its index modulo LogInterval is 1, or always if
	// LogInterval is 1.
	LogInterval int

	// Save is the checkpoint path.
	// If empty, no checkpoints are written.
	Save string
}

// DefaultConfig returns the default settings.
func DefaultConfig() *Config {
	return &Config{
		DataDir:          "../data/split_ds/",
		Site:             "BDCs_1",
		Column:           dataset.DefaultColumn,
		InputSize:        5,
		OutputSize:       1,
		TimeSteps:        128,
		EncodeLength:     100,
		MaxSamples:       1000,
		PredictionLength: 768,
		DModel:           32,
		NumHeads:         8,
		Activation:       "relu",
		Dropout:          0.1,
		DForward:         4,
		NumEncoderLayers: 3,
		NumDecoderLayers: 3,
		Epochs:           100,
		BatchSize:        64,
		LearningRate:     0.001,
		Optimizer:        "adam",
		ResetOptimizer:   true,
		LogInterval:      50,
		Save:             "Model",
	}
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if _, err := mtattention.ParseActivation(c.Activation); err != nil {
		return err
	}
	if _, err := anysgd.NewTransformer(c.Optimizer); err != nil {
		return err
	}
	switch {
	case c.Epochs < 0:
		return errors.New("epoch count must not be negative")
	case c.BatchSize <= 0:
		return errors.New("batch size must be positive")
	case c.TimeSteps <= 0:
		return errors.New("time steps must be positive")
	case c.PredictionLength <= 0:
		return errors.New("prediction length must be positive")
	case c.MaxSamples < 0:
		return errors.New("max samples must not be negative")
	case c.LearningRate <= 0:
		return errors.New("learning rate must be positive")
	case c.L2 < 0:
		return errors.New("L2 penalty must not be negative")
	case c.LogInterval <= 0:
		return errors.New("log interval must be positive")
	case c.Synthetic == 0 && c.Site == "":
		return errors.New("no site or synthetic series given")
	}
	cfg, err := c.ModelConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.TimeSteps > transformer.DefaultMaxLen {
		return fmt.Errorf("time steps %d exceed the maximum of %d", c.TimeSteps,
			transformer.DefaultMaxLen)
	}
	return nil
}

// ModelConfig returns the model hyper-parameters.
func (c *Config) ModelConfig() (*transformer.ModelConfig, error) {
	act, err := mtattention.ParseActivation(c.Activation)
	if err != nil {
		return nil, err
	}
	return &transformer.ModelConfig{
		InputSize:         c.InputSize,
		OutputSize:        c.OutputSize,
		DModel:            c.DModel,
		NumHeads:          c.NumHeads,
		DForward:          c.DForward,
		Activation:        act,
		Dropout:           c.Dropout,
		NumEncoderLayers:  c.NumEncoderLayers,
		NumDecoderLayers:  c.NumDecoderLayers,
		IndependentLayers: c.IndependentLayers,
		EncodeLength:      c.EncodeLength,
	}, nil
}

// WindowConfig returns the windowing settings.
func (c *Config) WindowConfig() dataset.WindowConfig {
	return dataset.WindowConfig{
		InputSize:    c.InputSize,
		OutputSize:   c.OutputSize,
		TimeSteps:    c.TimeSteps,
		EncodeLength: c.EncodeLength,
		MaxSamples:   c.MaxSamples,
	}
}
