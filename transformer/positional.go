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

// DefaultMaxLen is the number of positions precomputed by
// NewPositionalEncoding when no maximum is given.
const DefaultMaxLen = 5000

func init() {
	var p PositionalEncoding
	serializer.RegisterTypedDeserializer(p.SerializerType(), DeserializePositionalEncoding)
}

// PositionalEncoding adds a fixed sinusoidal table to
// embedded sequences, followed by dropout.
//
// The table is computed once and never changes, so a
// single instance can be shared by several inputs.
type PositionalEncoding struct {
	DModel int
	MaxLen int

	// Table is a MaxLen x DModel row-major matrix.
	Table anyvec.Vector

	Dropout *mtattention.Dropout
}

// PositionalTable computes the sinusoidal table.
//
// Entry (p, 2i) is sin(p / 10000^(2i/dModel)) and entry
// (p, 2i+1) is the cosine of the same argument.
func PositionalTable(dModel, maxLen int) []float64 {
	res := make([]float64, dModel*maxLen)
	for pos := 0; pos < maxLen; pos++ {
		row := res[pos*dModel : (pos+1)*dModel]
		for i := 0; i < dModel; i += 2 {
			arg := float64(pos) / math.Pow(10000, float64(i)/float64(dModel))
			row[i] = math.Sin(arg)
			if i+1 < dModel {
				row[i+1] = math.Cos(arg)
			}
		}
	}
	return res
}

// NewPositionalEncoding creates a PositionalEncoding.
// If maxLen is 0, DefaultMaxLen is used.
func NewPositionalEncoding(c anyvec.Creator, dModel, maxLen int, dropout float64,
	r *rand.Rand) *PositionalEncoding {
	if maxLen == 0 {
		maxLen = DefaultMaxLen
	}
	table := PositionalTable(dModel, maxLen)
	return &PositionalEncoding{
		DModel:  dModel,
		MaxLen:  maxLen,
		Table:   c.MakeVectorData(c.MakeNumericList(table)),
		Dropout: mtattention.NewDropout(dropout, r),
	}
}

// DeserializePositionalEncoding deserializes a
// PositionalEncoding.
func DeserializePositionalEncoding(d []byte) (*PositionalEncoding, error) {
	var dModel serializer.Int
	var table *anyvecsave.S
	var dropout *mtattention.Dropout
	if err := serializer.DeserializeAny(d, &dModel, &table, &dropout); err != nil {
		return nil, essentials.AddCtx("deserialize PositionalEncoding", err)
	}
	if dModel <= 0 || table.Vector.Len()%int(dModel) != 0 {
		return nil, fmt.Errorf("deserialize PositionalEncoding: bad table size %d",
			table.Vector.Len())
	}
	return &PositionalEncoding{
		DModel:  int(dModel),
		MaxLen:  table.Vector.Len() / int(dModel),
		Table:   table.Vector,
		Dropout: dropout,
	}, nil
}

// Apply adds the first length rows of the table to every
// sequence in the batch and applies dropout.
//
// The input is a packed batch*length x DModel matrix.
func (p *PositionalEncoding) Apply(in anydiff.Res, batch, length int,
	mode mtattention.Mode) anydiff.Res {
	if length > p.MaxLen {
		panic(fmt.Sprintf("sequence length %d exceeds maximum %d", length, p.MaxLen))
	}
	if in.Output().Len() != batch*length*p.DModel {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			batch*length*p.DModel, in.Output().Len()))
	}
	rows := anydiff.NewConst(p.Table.Slice(0, length*p.DModel))
	return p.Dropout.Apply(anydiff.AddRepeated(in, rows), batch*length, mode)
}

// SerializerType returns the unique ID used to serialize
// a PositionalEncoding with the serializer package.
func (p *PositionalEncoding) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.PositionalEncoding"
}

// Serialize serializes the encoding, including its table.
func (p *PositionalEncoding) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(p.DModel),
		&anyvecsave.S{Vector: p.Table},
		p.Dropout,
	)
}
