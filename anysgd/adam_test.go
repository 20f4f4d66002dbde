package anysgd

import (
	"testing"

	"github.com/unixpickle/anyvec/anyvec64"
)

func TestAdam(t *testing.T) {
	testTransformer(t, &Adam{}, 0.001, 1, 33333)
}

func TestRMSProp(t *testing.T) {
	// Single-sample batches give every step a different
	// scale, which moves RMSProp's fixed point away from the
	// minimum, so this uses the full batch.
	testTransformer(t, &RMSProp{}, 0.001, 0, 33333)
}

func TestMomentum(t *testing.T) {
	testTransformer(t, &Momentum{Momentum: 0.9}, 0.00005, 1, 66666)
}

func testTransformer(t *testing.T, tr Transformer, rate float64, batchSize, epochs int) {
	g := newTestGradienter(anyvec64.DefaultCreator{})
	s := &SGD{
		Fetcher:     g,
		Gradienter:  g,
		Transformer: tr,
		Samples:     newTestSampleList(),
		Rater:       ConstRater(rate),
		BatchSize:   batchSize,
	}

	runEpochs(t, s, epochs)

	if g.errorMargin() > 1e-2 {
		x, y := g.current()
		t.Errorf("bad solution: %f, %f", x, y)
	}
}
