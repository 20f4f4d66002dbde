package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sepidehkoohfar/MTAttention"
	"github.com/sepidehkoohfar/MTAttention/anysgd"
	"github.com/sepidehkoohfar/MTAttention/dataset"
	"github.com/sepidehkoohfar/MTAttention/metrics"
	"github.com/sepidehkoohfar/MTAttention/transformer"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A Forecaster owns a Model and the state needed to train
// and evaluate it.
type Forecaster struct {
	Config *Config
	Model  *transformer.Model

	// Logger receives progress and metric lines.
	Logger *logrus.Logger

	trainer *Trainer
	sgd     *anysgd.SGD
}

// A Report summarizes a call to Run.
type Report struct {
	TrainLoss []float64
	Valid     []metrics.Result
	Test      metrics.Result

	// BestValid is the lowest validation MSE seen, or +Inf
	// if no epoch improved on it.
	BestValid float64

	// Checkpoints counts how many times the model was
	// saved.
	Checkpoints int
}

// New creates a Forecaster with a freshly initialized
// model.
//
// If logger is nil, a new logrus.Logger is used.
func New(cfg *Config, logger *logrus.Logger) (*Forecaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, essentials.AddCtx("new forecaster", err)
	}
	modelCfg, err := cfg.ModelConfig()
	if err != nil {
		return nil, essentials.AddCtx("new forecaster", err)
	}
	var r *rand.Rand
	if cfg.Seed != 0 {
		r = rand.New(rand.NewSource(cfg.Seed))
	}
	model, err := transformer.NewModel(creator(cfg), modelCfg, r)
	if err != nil {
		return nil, essentials.AddCtx("new forecaster", err)
	}
	return newForecaster(cfg, model, logger), nil
}

// Load creates a Forecaster around a saved checkpoint.
//
// The checkpoint's input and output sizes must match the
// configuration.
func Load(cfg *Config, path string, logger *logrus.Logger) (*Forecaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, essentials.AddCtx("load forecaster", err)
	}
	var model *transformer.Model
	if err := serializer.LoadAny(path, &model); err != nil {
		return nil, essentials.AddCtx("load forecaster", err)
	}
	if model.InputSize() != cfg.InputSize || model.OutputSize() != cfg.OutputSize {
		return nil, fmt.Errorf("load forecaster: checkpoint maps %d inputs to %d outputs, "+
			"but %d to %d are configured", model.InputSize(), model.OutputSize(),
			cfg.InputSize, cfg.OutputSize)
	}
	return newForecaster(cfg, model, logger), nil
}

func newForecaster(cfg *Config, model *transformer.Model, logger *logrus.Logger) *Forecaster {
	if logger == nil {
		logger = logrus.New()
	}
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		model.Probe = &mtattention.Debug{
			Logger:        logger,
			ID:            "encoder input",
			PrintMean:     true,
			PrintVariance: true,
		}
	}
	params := model.Parameters()
	var cost mtattention.Cost = mtattention.MSE{}
	if cfg.L2 != 0 {
		cost = &mtattention.L2Reg{Penalty: cfg.L2, Params: params, Wrapped: cost}
	}
	trainer := &Trainer{
		Model:     model,
		Cost:      cost,
		Params:    params,
		TimeSteps: cfg.TimeSteps,
	}
	return &Forecaster{
		Config:  cfg,
		Model:   model,
		Logger:  logger,
		trainer: trainer,
		sgd: &anysgd.SGD{
			Fetcher:    trainer,
			Gradienter: trainer,
			Rater:      anysgd.ConstRater(cfg.LearningRate),
			BatchSize:  cfg.BatchSize,
		},
	}
}

func creator(cfg *Config) anyvec.Creator {
	if cfg.Float64 {
		return anyvec64.DefaultCreator{}
	}
	return anyvec32.CurrentCreator()
}

// LoadSplits reads (or synthesizes) the configured series
// and windows its train, validation and test parts.
func LoadSplits(ctx context.Context, cfg *Config) (*dataset.Splits, error) {
	var series []float64
	if cfg.Synthetic > 0 {
		var r *rand.Rand
		if cfg.Seed != 0 {
			r = rand.New(rand.NewSource(cfg.Seed))
		}
		series = dataset.Sine(cfg.Synthetic, 24, 0.05, r)
	} else {
		var err error
		series, err = dataset.LoadSeries(dataset.SitePath(cfg.DataDir, cfg.Site), cfg.Column)
		if err != nil {
			return nil, err
		}
	}
	return dataset.PrepareSplits(ctx, series, cfg.PredictionLength, cfg.WindowConfig())
}

// TrainEpoch performs one ordered pass over the samples
// and returns the mean batch loss.
func (f *Forecaster) TrainEpoch(ctx context.Context, samples anysgd.SampleList) (float64,
	error) {
	if f.sgd.Transformer == nil || f.Config.ResetOptimizer {
		tr, err := anysgd.NewTransformer(f.Config.Optimizer)
		if err != nil {
			return 0, essentials.AddCtx("train epoch", err)
		}
		f.sgd.Transformer = tr
	}

	var total float64
	var batches int
	var recent int
	start := time.Now()
	f.sgd.Samples = samples
	f.sgd.StatusFunc = func(step int, b anysgd.Batch) {
		total += f.trainer.LastCost
		batches++
		recent += b.(*dataset.Batch).Num
		if logStep(step, f.Config.LogInterval) {
			elapsed := time.Since(start).Seconds()
			f.Logger.WithFields(logrus.Fields{
				"step":       step,
				"loss":       f.trainer.LastCost,
				"samplesSec": float64(recent) / elapsed,
			}).Info("training step")
			start = time.Now()
			recent = 0
		}
	}
	defer func() {
		f.sgd.StatusFunc = nil
	}()

	if err := f.sgd.Epoch(ctx); err != nil {
		return 0, essentials.AddCtx("train epoch", err)
	}
	return total / float64(batches), nil
}

// logStep reports whether the step with the given index
// should be logged.
func logStep(step, interval int) bool {
	return interval == 1 || step%interval == 1
}

// Evaluate runs the model in evaluation mode over every
// sample, in batches, and computes the metrics.
func (f *Forecaster) Evaluate(samples dataset.SliceSampleList) (metrics.Result, error) {
	if len(samples) == 0 {
		return metrics.Result{}, fmt.Errorf("evaluate: no samples")
	}
	acc := &metrics.Accumulator{
		Channels:  f.Model.OutputSize(),
		Legacy:    f.Config.LegacyMSE,
		BatchSize: f.Config.BatchSize,
	}
	for i := 0; i < len(samples); i += f.Config.BatchSize {
		end := i + f.Config.BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		batch, err := dataset.Fetch(f.trainer.creator(), samples[i:end])
		if err != nil {
			return metrics.Result{}, essentials.AddCtx("evaluate", err)
		}
		out := f.Model.Apply(anydiff.NewConst(batch.Inputs), batch.Num, f.Config.TimeSteps,
			mtattention.Evaluation)
		acc.Add(vectorFloats(out.Output()), vectorFloats(batch.Outputs))
	}
	return acc.Result(), nil
}

// Run trains for the configured number of epochs, saving
// the model whenever the validation MSE improves, and
// finally evaluates the model on the test split.
//
// If stop is closed, training ends after the current
// epoch and the test evaluation still runs.
func (f *Forecaster) Run(ctx context.Context, splits *dataset.Splits,
	stop <-chan struct{}) (*Report, error) {
	report := &Report{BestValid: math.Inf(1)}
	var stopper anysgd.Stopper = anysgd.StopChan(stop)
	for epoch := 0; epoch < f.Config.Epochs; epoch++ {
		if stopper.Done() {
			f.Logger.WithField("epoch", epoch).Info("stopping early")
			break
		}
		loss, err := f.TrainEpoch(ctx, splits.Train)
		if err != nil {
			return nil, err
		}
		report.TrainLoss = append(report.TrainLoss, loss)
		f.Logger.WithFields(logrus.Fields{
			"epoch": epoch,
			"loss":  loss,
		}).Info("train loss")

		valid, err := f.Evaluate(splits.Valid)
		if err != nil {
			return nil, essentials.AddCtx("validation", err)
		}
		report.Valid = append(report.Valid, valid)
		f.Logger.WithFields(logrus.Fields{
			"epoch": epoch,
			"mse":   valid.MSE,
			"rrse":  valid.RRSE,
			"corr":  valid.Corr,
		}).Info("validation")

		if valid.MSE < report.BestValid {
			if f.Config.Save != "" {
				if err := f.Save(f.Config.Save); err != nil {
					return nil, err
				}
				report.Checkpoints++
				f.Logger.WithField("path", f.Config.Save).Debug("saved checkpoint")
			}
			report.BestValid = valid.MSE
		}
	}

	test, err := f.Evaluate(splits.Test)
	if err != nil {
		return nil, essentials.AddCtx("test", err)
	}
	report.Test = test
	f.Logger.WithFields(logrus.Fields{
		"mse":  test.MSE,
		"rrse": test.RRSE,
		"corr": test.Corr,
	}).Info("test")
	return report, nil
}

// Save writes the model to a checkpoint file.
func (f *Forecaster) Save(path string) error {
	if err := serializer.SaveAny(path, f.Model); err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	return nil
}
