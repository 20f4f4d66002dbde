// Package anysgd provides tools for Stochastic Gradient
// Descent.
// It is intended to be used for Machine Learning, but it
// can be applied to other areas as well.
package anysgd

import (
	"context"
	"errors"

	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"
)

// SGD performs stochastic gradient descent.
type SGD struct {
	// Fetcher is used to turn slices of Samples into
	// Batches.
	// Batches are fetched one step ahead of the step that
	// uses them.
	Fetcher Fetcher

	// Gradienter is used to compute initial, untransformed
	// gradients for each mini-batch.
	Gradienter Gradienter

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer Transformer

	// Samples is the list of training samples to use for
	// training.
	// Epoch never reorders it.
	//
	// The list may not be empty.
	Samples SampleList

	// Rater determines the learning rate for each step.
	Rater Rater

	// StatusFunc, if non-nil, is called after every
	// iteration with the index of the step within its pass
	// and the mini-batch it used.
	StatusFunc func(step int, batch Batch)

	// BatchSize is the mini-batch size.
	// If it is 0, then the entire sample list is used at
	// every iteration.
	// The last mini-batch of a pass may be smaller.
	BatchSize int

	// NumProcessed keeps track of the number of samples that
	// have been passed to Gradienter so far.
	// It is used to compute the epoch for Rater.
	// Most of the time, this should be initialized to 0.
	NumProcessed int
}

type sizedBatch struct {
	Batch Batch
	Size  int
}

// Epoch performs one pass over s.Samples in order.
//
// It returns early with an error if a Batch cannot be
// fetched or ctx is cancelled.
func (s *SGD) Epoch(ctx context.Context) error {
	if s.Samples.Len() == 0 {
		return errors.New("cannot run SGD with empty sample list")
	}
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan sizedBatch, 1)

	g.Go(func() error {
		defer close(batches)
		for idx := 0; idx < s.Samples.Len(); {
			size := s.batchSize(s.Samples.Len() - idx)
			batch, err := s.Fetcher.Fetch(s.Samples.Slice(idx, idx+size))
			if err != nil {
				return essentials.AddCtx("fetch batch", err)
			}
			select {
			case batches <- sizedBatch{Batch: batch, Size: size}:
			case <-ctx.Done():
				return ctx.Err()
			}
			idx += size
		}
		return nil
	})

	g.Go(func() error {
		var step int
		for b := range batches {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.step(b.Batch, b.Size)
			if s.StatusFunc != nil {
				s.StatusFunc(step, b.Batch)
			}
			step++
		}
		return nil
	})

	return g.Wait()
}

func (s *SGD) step(batch Batch, batchSize int) {
	grad := s.Gradienter.Gradient(batch)
	if s.Transformer != nil {
		grad = s.Transformer.Transform(grad)
	}

	epoch := float64(s.NumProcessed) / float64(s.Samples.Len())
	scaleGrad(grad, -s.Rater.Rate(epoch))
	grad.AddToVars()

	s.NumProcessed += batchSize
}

func (s *SGD) batchSize(remaining int) int {
	if s.BatchSize == 0 || s.BatchSize > remaining {
		return remaining
	} else {
		return s.BatchSize
	}
}

