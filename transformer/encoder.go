package transformer

import (
	"fmt"
	"math/rand"

	"github.com/sepidehkoohfar/MTAttention"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var l EncoderLayer
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeEncoderLayer)
	var s EncoderStack
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeEncoderStack)
}

// NewFeedForward creates the position-wise feed-forward
// block: expand to dForward, activation, dropout, contract
// back to dModel.
func NewFeedForward(c anyvec.Creator, dModel, dForward int, act mtattention.Activation,
	dropout float64, r *rand.Rand) mtattention.Net {
	return mtattention.Net{
		mtattention.NewFC(c, dModel, dForward, r),
		act,
		mtattention.NewDropout(dropout, r),
		mtattention.NewFC(c, dForward, dModel, r),
	}
}

// An EncoderLayer applies self-attention followed by a
// feed-forward block.
type EncoderLayer struct {
	SelfAttention *MultiHeadAttention
	FeedForward   mtattention.Net
}

// NewEncoderLayer creates a randomized EncoderLayer.
func NewEncoderLayer(c anyvec.Creator, cfg *ModelConfig, r *rand.Rand) *EncoderLayer {
	return &EncoderLayer{
		SelfAttention: NewMultiHeadAttention(c, cfg.DModel, cfg.NumHeads, cfg.Dropout, r),
		FeedForward:   NewFeedForward(c, cfg.DModel, cfg.DForward, cfg.Activation, cfg.Dropout, r),
	}
}

// DeserializeEncoderLayer deserializes an EncoderLayer.
func DeserializeEncoderLayer(d []byte) (*EncoderLayer, error) {
	var res EncoderLayer
	if err := serializer.DeserializeAny(d, &res.SelfAttention, &res.FeedForward); err != nil {
		return nil, essentials.AddCtx("deserialize EncoderLayer", err)
	}
	return &res, nil
}

// Apply applies the layer to a packed batch of sequences.
func (e *EncoderLayer) Apply(in anydiff.Res, batch, length int,
	mode mtattention.Mode) anydiff.Res {
	out := e.SelfAttention.SelfApply(in, batch, length, mode)
	return e.FeedForward.Apply(out, batch*length, mode)
}

// Parameters returns the attention parameters followed by
// the feed-forward parameters.
func (e *EncoderLayer) Parameters() []*anydiff.Var {
	return mtattention.AllParameters(e.SelfAttention, e.FeedForward)
}

// SerializerType returns the unique ID used to serialize
// an EncoderLayer with the serializer package.
func (e *EncoderLayer) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.EncoderLayer"
}

// Serialize serializes the layer.
func (e *EncoderLayer) Serialize() ([]byte, error) {
	return serializer.SerializeAny(e.SelfAttention, e.FeedForward)
}

// An EncoderStack feeds the output of each layer into the
// next one.
//
// The same *EncoderLayer may appear several times, in
// which case those depths share weights.
type EncoderStack struct {
	Layers []*EncoderLayer
}

// NewEncoderStack creates a stack which applies layer n
// times, sharing its weights across every depth.
func NewEncoderStack(layer *EncoderLayer, n int) *EncoderStack {
	layers := make([]*EncoderLayer, n)
	for i := range layers {
		layers[i] = layer
	}
	return &EncoderStack{Layers: layers}
}

// DeserializeEncoderStack deserializes an EncoderStack.
func DeserializeEncoderStack(d []byte) (*EncoderStack, error) {
	count, objs, err := deserializeStack(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize EncoderStack", err)
	}
	var unique []*EncoderLayer
	for _, obj := range objs {
		layer, ok := obj.(*EncoderLayer)
		if !ok {
			return nil, fmt.Errorf("deserialize EncoderStack: not an EncoderLayer: %T", obj)
		}
		unique = append(unique, layer)
	}
	res := &EncoderStack{Layers: make([]*EncoderLayer, count)}
	for i := range res.Layers {
		res.Layers[i] = unique[i%len(unique)]
	}
	return res, nil
}

// Shared reports whether every depth uses the same layer.
func (e *EncoderStack) Shared() bool {
	for _, l := range e.Layers {
		if l != e.Layers[0] {
			return false
		}
	}
	return len(e.Layers) > 1
}

// Apply applies every layer in order.
func (e *EncoderStack) Apply(in anydiff.Res, batch, length int,
	mode mtattention.Mode) anydiff.Res {
	for _, l := range e.Layers {
		in = l.Apply(in, batch, length, mode)
	}
	return in
}

// Parameters returns the parameters of every distinct
// layer.
func (e *EncoderStack) Parameters() []*anydiff.Var {
	objs := make([]interface{}, len(e.Layers))
	for i, l := range e.Layers {
		objs[i] = l
	}
	return mtattention.AllParameters(objs...)
}

// SerializerType returns the unique ID used to serialize
// an EncoderStack with the serializer package.
func (e *EncoderStack) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.EncoderStack"
}

// Serialize serializes the stack.
// A shared layer is only stored once.
func (e *EncoderStack) Serialize() ([]byte, error) {
	var unique []serializer.Serializer
	if e.Shared() {
		unique = append(unique, e.Layers[0])
	} else {
		for _, l := range e.Layers {
			unique = append(unique, l)
		}
	}
	return serializeStack(len(e.Layers), unique)
}

func serializeStack(count int, layers []serializer.Serializer) ([]byte, error) {
	objs := append([]serializer.Serializer{serializer.Int(count)}, layers...)
	return serializer.SerializeSlice(objs)
}

func deserializeStack(d []byte) (int, []serializer.Serializer, error) {
	objs, err := serializer.DeserializeSlice(d)
	if err != nil {
		return 0, nil, err
	}
	if len(objs) == 0 {
		return 0, nil, fmt.Errorf("missing layer count")
	}
	count, ok := objs[0].(serializer.Int)
	if !ok {
		return 0, nil, fmt.Errorf("bad layer count type: %T", objs[0])
	}
	layers := objs[1:]
	if count > 0 && len(layers) != 1 && len(layers) != int(count) {
		return 0, nil, fmt.Errorf("%d layers stored for a stack of %d", len(layers), count)
	}
	if count > 0 && len(layers) == 0 {
		return 0, nil, fmt.Errorf("no layers stored for a stack of %d", count)
	}
	return int(count), layers, nil
}
