package forecast

import (
	"github.com/sepidehkoohfar/MTAttention"
	"github.com/sepidehkoohfar/MTAttention/anysgd"
	"github.com/sepidehkoohfar/MTAttention/dataset"
	"github.com/sepidehkoohfar/MTAttention/transformer"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Trainer constructs batches, computes gradients, and
// tallies up costs for a forecasting Model.
type Trainer struct {
	Model  *transformer.Model
	Cost   mtattention.Cost
	Params []*anydiff.Var

	// TimeSteps is the sequence length of every sample.
	TimeSteps int

	// After every gradient computation, LastCost is set to
	// the mean cost of the batch.
	LastCost float64
}

// Fetch produces a *dataset.Batch for the subset of
// samples.
// The s argument must be a dataset.SliceSampleList.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	batch, err := dataset.Fetch(t.creator(), s)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// TotalCost computes the mean cost for the batch in
// training mode.
func (t *Trainer) TotalCost(batch anysgd.Batch) anydiff.Res {
	b := batch.(*dataset.Batch)
	out := t.Model.Apply(anydiff.NewConst(b.Inputs), b.Num, t.TimeSteps, mtattention.Training)
	cost := t.Cost.Cost(anydiff.NewConst(b.Outputs), out, b.Num)
	total := anydiff.Sum(cost)
	divisor := 1 / float64(cost.Output().Len())
	return anydiff.Scale(total, total.Output().Creator().MakeNumeric(divisor))
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// cost.
//
// The b argument must be a *dataset.Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	res := anydiff.NewGrad(t.Params...)

	cost := t.TotalCost(b)
	t.LastCost = numericFloat(anyvec.Sum(cost.Output()))

	c := cost.Output().Creator()
	upstream := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	cost.Propagate(upstream, res)

	return res
}

func (t *Trainer) creator() anyvec.Creator {
	return t.Model.EncoderEmbed.Weights.Vector.Creator()
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic("unsupported numeric type")
	}
}

func vectorFloats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return data
	default:
		panic("unsupported numeric type")
	}
}
