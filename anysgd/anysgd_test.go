package anysgd

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

type testSample struct {
	X2 float64
	Y2 float64
	XY float64
	X  float64
	Y  float64
}

func (t *testSample) Apply(x, y anydiff.Res) anydiff.Res {
	mk := x.Output().Creator().MakeNumeric
	a := anydiff.Scale(anydiff.Mul(x, x), mk(t.X2))
	b := anydiff.Scale(anydiff.Mul(y, y), mk(t.Y2))
	c := anydiff.Scale(anydiff.Mul(x, y), mk(t.XY))
	d := anydiff.Scale(x, mk(t.X))
	e := anydiff.Scale(y, mk(t.Y))
	return anydiff.Add(
		anydiff.Add(a, b),
		anydiff.Add(anydiff.Add(c, d), e),
	)
}

type testSampleList []*testSample

func newTestSampleList() testSampleList {
	// Together, these polynomials add up to 3x^2+3xy-2x+y^2.
	// The global minimum is (x = 4/3, y = -2).
	return testSampleList{
		{X2: 2, X: -1, XY: 0, Y2: 0.5},
		{X2: -1, X: 0, XY: 2, Y2: 0.5},
		{X2: 2, X: -1, XY: 1, Y2: 0},
	}
}

func (t testSampleList) Len() int {
	return len(t)
}

func (t testSampleList) Slice(i, j int) SampleList {
	return append(testSampleList{}, t[i:j]...)
}

type testGradienter struct {
	X *anydiff.Var
	Y *anydiff.Var
}

func newTestGradienter(c anyvec.Creator) *testGradienter {
	return &testGradienter{
		X: anydiff.NewVar(c.MakeVector(1)),
		Y: anydiff.NewVar(c.MakeVector(1)),
	}
}

func (t *testGradienter) Fetch(s SampleList) (Batch, error) {
	return s, nil
}

func (t *testGradienter) Gradient(b Batch) anydiff.Grad {
	var cost anydiff.Res
	for _, x := range b.(testSampleList) {
		res := x.Apply(t.X, t.Y)
		if cost == nil {
			cost = res
		} else {
			cost = anydiff.Add(cost, res)
		}
	}
	grad := anydiff.NewGrad(t.X, t.Y)
	oneVec := t.X.Vector.Creator().MakeVectorData(
		t.X.Vector.Creator().MakeNumericList([]float64{1}),
	)
	cost.Propagate(oneVec, grad)
	return grad
}

func (t *testGradienter) current() (x, y float64) {
	return anyvec.Sum(t.X.Vector).(float64), anyvec.Sum(t.Y.Vector).(float64)
}

func (t *testGradienter) errorMargin() float64 {
	x, y := t.current()
	return math.Max(math.Abs(x-4.0/3), math.Abs(y+2))
}

func TestSGD(t *testing.T) {
	g := newTestGradienter(anyvec32.DefaultCreator{})
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    newTestSampleList(),
		Rater:      ConstRater(0.0001),
		BatchSize:  1,
	}

	runEpochs(t, s, 800000/s.Samples.Len())

	x := g.X.Vector.Data().([]float32)[0]
	y := g.Y.Vector.Data().([]float32)[0]
	if math.Abs(float64(x)-4.0/3) > 1e-2 {
		t.Errorf("bad x value: %f", x)
	}
	if math.Abs(float64(y)+2) > 1e-2 {
		t.Errorf("bad y value: %f", y)
	}
}

func runEpochs(t *testing.T, s *SGD, n int) {
	for i := 0; i < n; i++ {
		if err := s.Epoch(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEpochOrder(t *testing.T) {
	g := newTestGradienter(anyvec64.DefaultCreator{})
	samples := newTestSampleList()
	var seen []*testSample
	var steps []int
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    samples,
		Rater:      ConstRater(0.001),
		BatchSize:  2,
		StatusFunc: func(step int, b Batch) {
			steps = append(steps, step)
			seen = append(seen, b.(testSampleList)...)
		},
	}
	if err := s.Epoch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 || steps[0] != 0 || steps[1] != 1 {
		t.Fatalf("unexpected steps: %v", steps)
	}
	if len(seen) != len(samples) {
		t.Fatalf("expected %d samples but saw %d", len(samples), len(seen))
	}
	for i, sample := range samples {
		if seen[i] != sample {
			t.Errorf("sample %d out of order", i)
		}
	}
	if s.NumProcessed != len(samples) {
		t.Errorf("expected %d processed but got %d", len(samples), s.NumProcessed)
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(s SampleList) (Batch, error) {
	return nil, errors.New("no data")
}

func TestEpochFetchError(t *testing.T) {
	g := newTestGradienter(anyvec64.DefaultCreator{})
	s := &SGD{
		Fetcher:    failingFetcher{},
		Gradienter: g,
		Samples:    newTestSampleList(),
		Rater:      ConstRater(0.001),
	}
	if err := s.Epoch(context.Background()); err == nil {
		t.Error("expected fetch error")
	}
	if s.NumProcessed != 0 {
		t.Errorf("no steps should run, but %d samples were processed", s.NumProcessed)
	}
}

func TestEpochEmpty(t *testing.T) {
	g := newTestGradienter(anyvec64.DefaultCreator{})
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    testSampleList{},
		Rater:      ConstRater(0.001),
	}
	if err := s.Epoch(context.Background()); err == nil {
		t.Error("expected error for empty sample list")
	}
}

func TestEpochCancelled(t *testing.T) {
	g := newTestGradienter(anyvec64.DefaultCreator{})
	s := &SGD{
		Fetcher:    g,
		Gradienter: g,
		Samples:    newTestSampleList(),
		Rater:      ConstRater(0.001),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Epoch(ctx); err == nil {
		t.Error("expected error for a cancelled context")
	}
}

func TestStopChan(t *testing.T) {
	ch := make(chan struct{})
	var stopper Stopper = StopChan(ch)
	if stopper.Done() {
		t.Error("open channel should not be done")
	}
	close(ch)
	if !stopper.Done() {
		t.Error("closed channel should be done")
	}
}

func TestNewTransformer(t *testing.T) {
	for _, name := range []string{"adam", "rmsprop", "momentum"} {
		if tr, err := NewTransformer(name); err != nil || tr == nil {
			t.Errorf("%s: got %v, %v", name, tr, err)
		}
	}
	if tr, err := NewTransformer("sgd"); err != nil || tr != nil {
		t.Errorf("sgd: got %v, %v", tr, err)
	}
	if _, err := NewTransformer("lbfgs"); err == nil {
		t.Error("expected error for unknown optimizer")
	}
}
