package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/sepidehkoohfar/MTAttention/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"
)

// WindowConfig describes how samples are cut out of a
// series.
type WindowConfig struct {
	// InputSize is the number of past values in each input
	// row.
	InputSize int

	// OutputSize is the number of future values in each
	// output row.
	OutputSize int

	// TimeSteps is the number of consecutive rows in a
	// sample.
	TimeSteps int

	// EncodeLength is carried for the model but does not
	// change the windows.
	EncodeLength int

	// MaxSamples caps the number of samples per split.
	// If it is 0, every possible start offset is used.
	MaxSamples int
}

// Span returns the number of series values one sample
// covers.
func (w *WindowConfig) Span() int {
	return w.TimeSteps - 1 + w.InputSize + w.OutputSize
}

// A Sample is one training sequence.
//
// Input holds TimeSteps rows of InputSize values and
// Output holds TimeSteps rows of OutputSize values, both
// row-major.
type Sample struct {
	Input  []float64
	Output []float64
}

// Window cuts samples out of a series.
//
// Row t of a sample starting at s has the inputs
// series[s+t : s+t+InputSize] and the targets that follow
// them.
// Start offsets are spread evenly over the series.
func Window(series []float64, cfg WindowConfig) (SliceSampleList, error) {
	if cfg.InputSize <= 0 || cfg.OutputSize <= 0 || cfg.TimeSteps <= 0 {
		return nil, errors.New("window series: sizes must be positive")
	}
	starts := len(series) - cfg.Span() + 1
	if starts <= 0 {
		return nil, fmt.Errorf("window series: %d values, but one sample needs %d",
			len(series), cfg.Span())
	}
	count := starts
	if cfg.MaxSamples > 0 && cfg.MaxSamples < count {
		count = cfg.MaxSamples
	}
	res := make(SliceSampleList, count)
	for i := range res {
		start := 0
		if count > 1 {
			start = i * (starts - 1) / (count - 1)
		}
		res[i] = windowAt(series, start, &cfg)
	}
	return res, nil
}

func windowAt(series []float64, start int, cfg *WindowConfig) *Sample {
	sample := &Sample{
		Input:  make([]float64, 0, cfg.TimeSteps*cfg.InputSize),
		Output: make([]float64, 0, cfg.TimeSteps*cfg.OutputSize),
	}
	for t := 0; t < cfg.TimeSteps; t++ {
		pos := start + t
		sample.Input = append(sample.Input, series[pos:pos+cfg.InputSize]...)
		target := pos + cfg.InputSize
		sample.Output = append(sample.Output, series[target:target+cfg.OutputSize]...)
	}
	return sample
}

// SliceSampleList is an anysgd.SampleList of *Samples.
type SliceSampleList []*Sample

// Len returns the number of samples.
func (s SliceSampleList) Len() int {
	return len(s)
}

// Slice returns a shallow copy of a sub-list.
func (s SliceSampleList) Slice(i, j int) anysgd.SampleList {
	return append(SliceSampleList{}, s[i:j]...)
}

// A Batch stores inputs and targets in a packed format.
type Batch struct {
	Inputs  anyvec.Vector
	Outputs anyvec.Vector
	Num     int
}

// Fetch packs every sample of a SliceSampleList into a
// Batch.
// The list may not be empty.
func Fetch(c anyvec.Creator, s anysgd.SampleList) (*Batch, error) {
	list, ok := s.(SliceSampleList)
	if !ok {
		return nil, fmt.Errorf("fetch batch: unsupported sample list %T", s)
	}
	if len(list) == 0 {
		return nil, errors.New("fetch batch: empty sample list")
	}
	var ins, outs []float64
	for i, sample := range list {
		if len(sample.Input) != len(list[0].Input) || len(sample.Output) != len(list[0].Output) {
			return nil, fmt.Errorf("fetch batch: sample %d has a different shape", i)
		}
		ins = append(ins, sample.Input...)
		outs = append(outs, sample.Output...)
	}
	return &Batch{
		Inputs:  c.MakeVectorData(c.MakeNumericList(ins)),
		Outputs: c.MakeVectorData(c.MakeNumericList(outs)),
		Num:     len(list),
	}, nil
}

// Splits holds the windowed samples of each split.
type Splits struct {
	Train SliceSampleList
	Valid SliceSampleList
	Test  SliceSampleList
}

// PrepareSplits splits a series and windows every part
// concurrently.
func PrepareSplits(ctx context.Context, series []float64, predictionLength int,
	cfg WindowConfig) (*Splits, error) {
	train, valid, test, err := Split(series, predictionLength)
	if err != nil {
		return nil, err
	}
	var res Splits
	g, ctx := errgroup.WithContext(ctx)
	parts := []struct {
		name   string
		series []float64
		dest   *SliceSampleList
	}{
		{"train", train, &res.Train},
		{"valid", valid, &res.Valid},
		{"test", test, &res.Test},
	}
	for _, part := range parts {
		part := part
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			samples, err := Window(part.series, cfg)
			if err != nil {
				return essentials.AddCtx(part.name+" split", err)
			}
			*part.dest = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, essentials.AddCtx("prepare splits", err)
	}
	return &res, nil
}
