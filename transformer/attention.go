package transformer

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sepidehkoohfar/MTAttention"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m MultiHeadAttention
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMultiHeadAttention)
}

// MultiHeadAttention implements scaled dot-product
// attention with several heads.
//
// Attention is computed over the rows of each sequence in
// a packed batch; sequences never attend to each other.
type MultiHeadAttention struct {
	NumHeads int

	// Query, Key and Value are DModel -> DModel
	// projections.
	// Head h owns output rows [h*dk, (h+1)*dk) of each.
	Query *mtattention.FC
	Key   *mtattention.FC
	Value *mtattention.FC

	// OutWeights is stored input-major (DModel inputs x
	// DModel outputs) so that each head's block of inputs
	// is contiguous.
	OutWeights *anydiff.Var
	OutBiases  *anydiff.Var

	// Dropout is applied to the attention weights.
	Dropout *mtattention.Dropout
}

// NewMultiHeadAttention creates a randomized attention
// layer.
// The model width must be divisible by numHeads.
func NewMultiHeadAttention(c anyvec.Creator, dModel, numHeads int, dropout float64,
	r *rand.Rand) *MultiHeadAttention {
	if numHeads <= 0 || dModel%numHeads != 0 {
		panic(fmt.Sprintf("model width %d not divisible by %d heads", dModel, numHeads))
	}
	outWeights := c.MakeVector(dModel * dModel)
	anyvec.Rand(outWeights, anyvec.Normal, r)
	outWeights.Scale(c.MakeNumeric(1 / math.Sqrt(float64(dModel))))
	return &MultiHeadAttention{
		NumHeads:   numHeads,
		Query:      mtattention.NewFC(c, dModel, dModel, r),
		Key:        mtattention.NewFC(c, dModel, dModel, r),
		Value:      mtattention.NewFC(c, dModel, dModel, r),
		OutWeights: anydiff.NewVar(outWeights),
		OutBiases:  anydiff.NewVar(c.MakeVector(dModel)),
		Dropout:    mtattention.NewDropout(dropout, r),
	}
}

// DeserializeMultiHeadAttention deserializes a
// MultiHeadAttention.
func DeserializeMultiHeadAttention(d []byte) (*MultiHeadAttention, error) {
	var res MultiHeadAttention
	var numHeads serializer.Int
	var outWeights, outBiases *anyvecsave.S
	err := serializer.DeserializeAny(d, &numHeads, &res.Query, &res.Key, &res.Value,
		&outWeights, &outBiases, &res.Dropout)
	if err != nil {
		return nil, essentials.AddCtx("deserialize MultiHeadAttention", err)
	}
	res.NumHeads = int(numHeads)
	dModel := res.Query.InCount
	if res.NumHeads <= 0 || dModel%res.NumHeads != 0 ||
		outWeights.Vector.Len() != dModel*dModel || outBiases.Vector.Len() != dModel {
		return nil, fmt.Errorf("deserialize MultiHeadAttention: inconsistent shapes")
	}
	res.OutWeights = anydiff.NewVar(outWeights.Vector)
	res.OutBiases = anydiff.NewVar(outBiases.Vector)
	return &res, nil
}

// DModel returns the model width.
func (m *MultiHeadAttention) DModel() int {
	return m.Query.InCount
}

// SelfApply attends from every row of a sequence to every
// row of the same sequence.
//
// The input is a packed batch*length x DModel matrix, and
// so is the output.
func (m *MultiHeadAttention) SelfApply(x anydiff.Res, batch, length int,
	mode mtattention.Mode) anydiff.Res {
	m.checkInput(x, batch*length)
	return anydiff.Pool(x, func(x anydiff.Res) anydiff.Res {
		return m.attend(x, x, batch, length, length, mode)
	})
}

// CrossApply attends from the rows of q to the rows of
// mem, which supplies both keys and values.
//
// The output has the same shape as q.
func (m *MultiHeadAttention) CrossApply(q, mem anydiff.Res, batch, qLen, memLen int,
	mode mtattention.Mode) anydiff.Res {
	m.checkInput(q, batch*qLen)
	m.checkInput(mem, batch*memLen)
	return anydiff.Pool(q, func(q anydiff.Res) anydiff.Res {
		return anydiff.Pool(mem, func(mem anydiff.Res) anydiff.Res {
			return m.attend(q, mem, batch, qLen, memLen, mode)
		})
	})
}

// Parameters returns the query, key, value and output
// parameters, in that order.
func (m *MultiHeadAttention) Parameters() []*anydiff.Var {
	res := mtattention.AllParameters(m.Query, m.Key, m.Value)
	return append(res, m.OutWeights, m.OutBiases)
}

// SerializerType returns the unique ID used to serialize
// a MultiHeadAttention with the serializer package.
func (m *MultiHeadAttention) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.MultiHeadAttention"
}

// Serialize serializes the layer.
func (m *MultiHeadAttention) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(m.NumHeads),
		m.Query,
		m.Key,
		m.Value,
		&anyvecsave.S{Vector: m.OutWeights.Vector},
		&anyvecsave.S{Vector: m.OutBiases.Vector},
		m.Dropout,
	)
}

func (m *MultiHeadAttention) checkInput(in anydiff.Res, rows int) {
	if in.Output().Len() != rows*m.DModel() {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			rows*m.DModel(), in.Output().Len()))
	}
}

func (m *MultiHeadAttention) attend(q, kv anydiff.Res, batch, qLen, kvLen int,
	mode mtattention.Mode) anydiff.Res {
	dk := m.DModel() / m.NumHeads
	var sum anydiff.Res
	for h := 0; h < m.NumHeads; h++ {
		qh := headProjection(m.Query, h, dk, q, batch*qLen)
		kh := headProjection(m.Key, h, dk, kv, batch*kvLen)
		vh := headProjection(m.Value, h, dk, kv, batch*kvLen)
		out := m.head(h, dk, qh, kh, vh, batch, qLen, kvLen, mode)
		if sum == nil {
			sum = out
		} else {
			sum = anydiff.Add(sum, out)
		}
	}
	return anydiff.AddRepeated(sum, m.OutBiases)
}

// head computes the output projection of a single head,
// i.e. its slice of concat(heads) * OutWeights.
func (m *MultiHeadAttention) head(h, dk int, qh, kh, vh anydiff.Res, batch, qLen,
	kvLen int, mode mtattention.Mode) anydiff.Res {
	dModel := m.DModel()
	scaler := qh.Output().Creator().MakeNumeric(1 / math.Sqrt(float64(dk)))
	return poolAll([]anydiff.Res{qh, kh, vh}, func(p []anydiff.Res) anydiff.Res {
		qh, kh, vh := p[0], p[1], p[2]

		scores := make([]anydiff.Res, batch)
		for b := 0; b < batch; b++ {
			qMat := &anydiff.Matrix{
				Data: anydiff.Slice(qh, b*qLen*dk, (b+1)*qLen*dk),
				Rows: qLen,
				Cols: dk,
			}
			kMat := &anydiff.Matrix{
				Data: anydiff.Slice(kh, b*kvLen*dk, (b+1)*kvLen*dk),
				Rows: kvLen,
				Cols: dk,
			}
			scores[b] = anydiff.MatMul(false, true, qMat, kMat).Data
		}
		logits := anydiff.Scale(anydiff.Concat(scores...), scaler)
		weights := anydiff.Exp(anydiff.LogSoftmax(logits, kvLen))
		weights = m.Dropout.Apply(weights, batch*qLen, mode)

		return anydiff.Pool(weights, func(weights anydiff.Res) anydiff.Res {
			contexts := make([]anydiff.Res, batch)
			for b := 0; b < batch; b++ {
				wMat := &anydiff.Matrix{
					Data: anydiff.Slice(weights, b*qLen*kvLen, (b+1)*qLen*kvLen),
					Rows: qLen,
					Cols: kvLen,
				}
				vMat := &anydiff.Matrix{
					Data: anydiff.Slice(vh, b*kvLen*dk, (b+1)*kvLen*dk),
					Rows: kvLen,
					Cols: dk,
				}
				contexts[b] = anydiff.MatMul(false, false, wMat, vMat).Data
			}
			ctxMat := &anydiff.Matrix{
				Data: anydiff.Concat(contexts...),
				Rows: batch * qLen,
				Cols: dk,
			}
			outMat := &anydiff.Matrix{
				Data: anydiff.Slice(m.OutWeights, h*dk*dModel, (h+1)*dk*dModel),
				Rows: dk,
				Cols: dModel,
			}
			return anydiff.MatMul(false, false, ctxMat, outMat).Data
		})
	})
}

// headProjection applies rows [h*dk, (h+1)*dk) of a
// projection to a packed input.
func headProjection(f *mtattention.FC, h, dk int, in anydiff.Res, rows int) anydiff.Res {
	inMat := &anydiff.Matrix{
		Data: in,
		Rows: rows,
		Cols: f.InCount,
	}
	weightMat := &anydiff.Matrix{
		Data: anydiff.Slice(f.Weights, h*dk*f.InCount, (h+1)*dk*f.InCount),
		Rows: dk,
		Cols: f.InCount,
	}
	weighted := anydiff.MatMul(false, true, inMat, weightMat)
	return anydiff.AddRepeated(weighted.Data, anydiff.Slice(f.Biases, h*dk, (h+1)*dk))
}

// poolAll pools every Res in rs and passes the pooled
// versions to f.
func poolAll(rs []anydiff.Res, f func([]anydiff.Res) anydiff.Res) anydiff.Res {
	if len(rs) == 0 {
		return f(nil)
	}
	return anydiff.Pool(rs[0], func(r anydiff.Res) anydiff.Res {
		return poolAll(rs[1:], func(rest []anydiff.Res) anydiff.Res {
			return f(append([]anydiff.Res{r}, rest...))
		})
	})
}
