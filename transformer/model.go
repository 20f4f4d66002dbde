// Package transformer implements an encoder/decoder
// Transformer for univariate time-series forecasting,
// combined with a linear autoregressive (AR) skip path.
//
// Sequences are packed row-major: a batch of B sequences
// of length L with F features is a vector of B*L*F values,
// and every per-position layer treats it as B*L rows.
package transformer

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sepidehkoohfar/MTAttention"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// ModelConfig holds the hyper-parameters of a Model.
type ModelConfig struct {
	// InputSize is the number of raw features per position
	// (the window length).
	InputSize int

	// OutputSize is the number of predicted values per
	// position (the horizon).
	OutputSize int

	DModel     int
	NumHeads   int
	DForward   int
	Activation mtattention.Activation
	Dropout    float64

	NumEncoderLayers int
	NumDecoderLayers int

	// IndependentLayers gives every stack depth its own
	// weights instead of repeating one layer.
	IndependentLayers bool

	// EncodeLength is recorded with the model but does not
	// affect the forward pass.
	EncodeLength int

	// MaxLen bounds the sequence length.
	// If it is 0, DefaultMaxLen is used.
	MaxLen int
}

// Validate checks that the hyper-parameters describe a
// buildable model.
func (m *ModelConfig) Validate() error {
	switch {
	case m.InputSize <= 0:
		return errors.New("input size must be positive")
	case m.OutputSize <= 0:
		return errors.New("output size must be positive")
	case m.DModel <= 0:
		return errors.New("model width must be positive")
	case m.NumHeads <= 0:
		return errors.New("head count must be positive")
	case m.DModel%m.NumHeads != 0:
		return fmt.Errorf("model width %d not divisible by %d heads", m.DModel, m.NumHeads)
	case m.DForward <= 0:
		return errors.New("feed-forward width must be positive")
	case m.NumEncoderLayers <= 0 || m.NumDecoderLayers <= 0:
		return errors.New("layer counts must be positive")
	case m.Dropout < 0 || m.Dropout >= 1:
		return fmt.Errorf("dropout rate %f not in [0, 1)", m.Dropout)
	case m.MaxLen < 0:
		return errors.New("maximum length must not be negative")
	}
	return nil
}

// Model is the full forecaster.
//
// The forecast for a raw input x is
//
//     Out(Decoder(Embed(shift(x)), Encoder(Embed(x)))) + AR(x)
//
// where Embed includes the positional encoding.
type Model struct {
	EncodeLength int

	Position     *PositionalEncoding
	EncoderEmbed *mtattention.FC
	DecoderEmbed *mtattention.FC
	Encoder      *EncoderStack
	Decoder      *DecoderStack

	// Head sums the output projection of the decoder (In1)
	// and the AR branch applied to the raw input (In2).
	Head *mtattention.AddMixer

	// Probe, if non-nil, is applied to the encoder input
	// after the positional encoding.
	// It is not serialized.
	Probe mtattention.Layer
}

// NewAR creates the autoregressive branch: a linear map
// from a raw input window to the output horizon.
func NewAR(c anyvec.Creator, window, horizon int, r *rand.Rand) *mtattention.FC {
	return mtattention.NewFC(c, window, horizon, r)
}

// NewModel creates a randomized Model.
//
// If r is nil, the global random source is used for the
// weights and the dropout masks.
func NewModel(c anyvec.Creator, cfg *ModelConfig, r *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, essentials.AddCtx("new model", err)
	}
	var encoder *EncoderStack
	var decoder *DecoderStack
	if cfg.IndependentLayers {
		encoder = &EncoderStack{}
		for i := 0; i < cfg.NumEncoderLayers; i++ {
			encoder.Layers = append(encoder.Layers, NewEncoderLayer(c, cfg, r))
		}
		decoder = &DecoderStack{}
		for i := 0; i < cfg.NumDecoderLayers; i++ {
			decoder.Layers = append(decoder.Layers, NewDecoderLayer(c, cfg, r))
		}
	} else {
		encoder = NewEncoderStack(NewEncoderLayer(c, cfg, r), cfg.NumEncoderLayers)
		decoder = NewDecoderStack(NewDecoderLayer(c, cfg, r), cfg.NumDecoderLayers)
	}
	return &Model{
		EncodeLength: cfg.EncodeLength,
		Position:     NewPositionalEncoding(c, cfg.DModel, cfg.MaxLen, cfg.Dropout, r),
		EncoderEmbed: mtattention.NewFC(c, cfg.InputSize, cfg.DModel, r),
		DecoderEmbed: mtattention.NewFC(c, cfg.InputSize, cfg.DModel, r),
		Encoder:      encoder,
		Decoder:      decoder,
		Head: &mtattention.AddMixer{
			In1: mtattention.NewFC(c, cfg.DModel, cfg.OutputSize, r),
			In2: NewAR(c, cfg.InputSize, cfg.OutputSize, r),
		},
	}, nil
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	var res Model
	var encodeLength serializer.Int
	err := serializer.DeserializeAny(d, &encodeLength, &res.Position, &res.EncoderEmbed,
		&res.DecoderEmbed, &res.Encoder, &res.Decoder, &res.Head)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	res.EncodeLength = int(encodeLength)
	if _, ok := res.Head.In1.(*mtattention.FC); !ok {
		return nil, fmt.Errorf("deserialize Model: unexpected output layer %T", res.Head.In1)
	}
	if _, ok := res.Head.In2.(*mtattention.FC); !ok {
		return nil, fmt.Errorf("deserialize Model: unexpected AR layer %T", res.Head.In2)
	}
	return &res, nil
}

// InputSize returns the number of raw features per
// position.
func (m *Model) InputSize() int {
	return m.EncoderEmbed.InCount
}

// OutputSize returns the number of predicted values per
// position.
func (m *Model) OutputSize() int {
	return m.AR().OutCount
}

// DModel returns the embedding width.
func (m *Model) DModel() int {
	return m.EncoderEmbed.OutCount
}

// AR returns the autoregressive branch.
func (m *Model) AR() *mtattention.FC {
	return m.Head.In2.(*mtattention.FC)
}

// Apply computes the forecast for a packed batch of raw
// inputs (batch*length rows of InputSize values).
//
// The result has batch*length rows of OutputSize values.
func (m *Model) Apply(in anydiff.Res, batch, length int, mode mtattention.Mode) anydiff.Res {
	if in.Output().Len() != batch*length*m.InputSize() {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			batch*length*m.InputSize(), in.Output().Len()))
	}
	rows := batch * length
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		encIn := m.EncoderEmbed.Apply(in, rows, mode)
		encIn = m.Position.Apply(encIn, batch, length, mode)
		if m.Probe != nil {
			encIn = m.Probe.Apply(encIn, rows, mode)
		}

		decIn := m.DecoderEmbed.Apply(ShiftRight(in, batch, length), rows, mode)
		decIn = m.Position.Apply(decIn, batch, length, mode)

		encOut := m.Encoder.Apply(encIn, batch, length, mode)
		decOut := m.Decoder.Apply(decIn, encOut, batch, length, length, mode)

		return m.Head.Mix(decOut, in, rows, mode)
	})
}

// Parameters returns every learnable variable once.
func (m *Model) Parameters() []*anydiff.Var {
	return mtattention.AllParameters(m.EncoderEmbed, m.DecoderEmbed, m.Encoder,
		m.Decoder, m.Head)
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.Model"
}

// Serialize serializes the model.
func (m *Model) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(m.EncodeLength),
		m.Position,
		m.EncoderEmbed,
		m.DecoderEmbed,
		m.Encoder,
		m.Decoder,
		m.Head,
	)
}

// ShiftRight rotates every sequence in a packed batch by
// one position: row length-1 becomes row 0 and every other
// row moves down by one.
//
// Applying it length times yields the original input.
func ShiftRight(in anydiff.Res, batch, length int) anydiff.Res {
	if length <= 1 {
		return in
	}
	total := in.Output().Len()
	if total%(batch*length) != 0 {
		panic("input length not divisible by batch*length")
	}
	cols := total / (batch * length)
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		parts := make([]anydiff.Res, 0, 2*batch)
		for b := 0; b < batch; b++ {
			start := b * length * cols
			end := start + length*cols
			parts = append(parts,
				anydiff.Slice(in, end-cols, end),
				anydiff.Slice(in, start, end-cols))
		}
		return anydiff.Concat(parts...)
	})
}
