// Package metrics computes forecast quality measures.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Result summarizes a set of predictions.
type Result struct {
	// MSE is the mean squared error.
	MSE float64

	// RRSE is the root relative squared error: the error
	// norm divided by the norm of the centered labels.
	RRSE float64

	// Corr is the Pearson correlation of every output
	// channel, summed over the channels.
	Corr float64
}

// String formats the result for logs.
func (r Result) String() string {
	return fmt.Sprintf("mse=%.5f rrse=%.5f corr=%.5f", r.MSE, r.RRSE, r.Corr)
}

// MSE computes the mean squared error over every value.
func MSE(pred, labels []float64) float64 {
	checkLengths(pred, labels)
	if len(pred) == 0 {
		return math.NaN()
	}
	d := floats.Distance(pred, labels, 2)
	return d * d / float64(len(pred))
}

// RRSE computes the root relative squared error.
//
// A perfect prediction scores 0 and predicting the mean of
// the labels scores 1.
func RRSE(pred, labels []float64) float64 {
	checkLengths(pred, labels)
	centered := append([]float64{}, labels...)
	floats.AddConst(-stat.Mean(labels, nil), centered)
	return floats.Distance(pred, labels, 2) / floats.Norm(centered, 2)
}

// Corr computes the Pearson correlation between
// predictions and labels separately for each of channels
// interleaved channels, and sums the results.
//
// A channel with constant predictions or labels yields
// NaN.
func Corr(pred, labels []float64, channels int) float64 {
	checkLengths(pred, labels)
	if channels <= 0 || len(pred)%channels != 0 {
		panic(fmt.Sprintf("%d values cannot be split into %d channels", len(pred), channels))
	}
	rows := len(pred) / channels
	predMat := mat.NewDense(rows, channels, pred)
	labelMat := mat.NewDense(rows, channels, labels)
	var sum float64
	for j := 0; j < channels; j++ {
		p := mat.Col(nil, j, predMat)
		l := mat.Col(nil, j, labelMat)
		sum += stat.Correlation(p, l, nil)
	}
	return sum
}

// Compute computes every metric at once.
func Compute(pred, labels []float64, channels int) Result {
	return Result{
		MSE:  MSE(pred, labels),
		RRSE: RRSE(pred, labels),
		Corr: Corr(pred, labels, channels),
	}
}

func checkLengths(pred, labels []float64) {
	if len(pred) != len(labels) {
		panic(fmt.Sprintf("length mismatch: %d predictions, %d labels", len(pred), len(labels)))
	}
}

// An Accumulator gathers predictions batch by batch.
type Accumulator struct {
	// Channels is the number of interleaved output
	// channels.
	Channels int

	// Legacy enables the running-concatenation MSE: after
	// every batch, the MSE of everything seen so far is
	// added to a total, which is finally divided by
	// BatchSize times the number of batches.
	Legacy    bool
	BatchSize int

	pred      []float64
	labels    []float64
	legacySum float64
	batches   int
}

// Add records the predictions and labels of one batch.
func (a *Accumulator) Add(pred, labels []float64) {
	checkLengths(pred, labels)
	a.pred = append(a.pred, pred...)
	a.labels = append(a.labels, labels...)
	a.batches++
	if a.Legacy {
		a.legacySum += MSE(a.pred, a.labels)
	}
}

// Len returns the number of values recorded so far.
func (a *Accumulator) Len() int {
	return len(a.pred)
}

// Result computes the metrics over every recorded batch.
func (a *Accumulator) Result() Result {
	res := Compute(a.pred, a.labels, a.Channels)
	if a.Legacy {
		res.MSE = a.legacySum / float64(a.BatchSize*a.batches)
	}
	return res
}
