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
	var l DecoderLayer
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeDecoderLayer)
	var s DecoderStack
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeDecoderStack)
}

// A DecoderLayer applies self-attention, cross-attention
// against the encoder output, and a feed-forward block.
type DecoderLayer struct {
	SelfAttention  *MultiHeadAttention
	CrossAttention *MultiHeadAttention
	FeedForward    mtattention.Net
}

// NewDecoderLayer creates a randomized DecoderLayer.
func NewDecoderLayer(c anyvec.Creator, cfg *ModelConfig, r *rand.Rand) *DecoderLayer {
	return &DecoderLayer{
		SelfAttention:  NewMultiHeadAttention(c, cfg.DModel, cfg.NumHeads, cfg.Dropout, r),
		CrossAttention: NewMultiHeadAttention(c, cfg.DModel, cfg.NumHeads, cfg.Dropout, r),
		FeedForward:    NewFeedForward(c, cfg.DModel, cfg.DForward, cfg.Activation, cfg.Dropout, r),
	}
}

// DeserializeDecoderLayer deserializes a DecoderLayer.
func DeserializeDecoderLayer(d []byte) (*DecoderLayer, error) {
	var res DecoderLayer
	err := serializer.DeserializeAny(d, &res.SelfAttention, &res.CrossAttention,
		&res.FeedForward)
	if err != nil {
		return nil, essentials.AddCtx("deserialize DecoderLayer", err)
	}
	return &res, nil
}

// Apply applies the layer to a packed batch of decoder
// sequences, attending to the packed encoder output mem.
func (l *DecoderLayer) Apply(in, mem anydiff.Res, batch, length, memLen int,
	mode mtattention.Mode) anydiff.Res {
	out := l.SelfAttention.SelfApply(in, batch, length, mode)
	out = l.CrossAttention.CrossApply(out, mem, batch, length, memLen, mode)
	return l.FeedForward.Apply(out, batch*length, mode)
}

// Parameters returns the self-attention, cross-attention
// and feed-forward parameters, in that order.
func (l *DecoderLayer) Parameters() []*anydiff.Var {
	return mtattention.AllParameters(l.SelfAttention, l.CrossAttention, l.FeedForward)
}

// SerializerType returns the unique ID used to serialize
// a DecoderLayer with the serializer package.
func (l *DecoderLayer) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.DecoderLayer"
}

// Serialize serializes the layer.
func (l *DecoderLayer) Serialize() ([]byte, error) {
	return serializer.SerializeAny(l.SelfAttention, l.CrossAttention, l.FeedForward)
}

// A DecoderStack feeds the output of each layer into the
// next one; every layer attends to the same encoder
// output.
//
// The same *DecoderLayer may appear several times, in
// which case those depths share weights.
type DecoderStack struct {
	Layers []*DecoderLayer
}

// NewDecoderStack creates a stack which applies layer n
// times, sharing its weights across every depth.
func NewDecoderStack(layer *DecoderLayer, n int) *DecoderStack {
	layers := make([]*DecoderLayer, n)
	for i := range layers {
		layers[i] = layer
	}
	return &DecoderStack{Layers: layers}
}

// DeserializeDecoderStack deserializes a DecoderStack.
func DeserializeDecoderStack(d []byte) (*DecoderStack, error) {
	count, objs, err := deserializeStack(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize DecoderStack", err)
	}
	var unique []*DecoderLayer
	for _, obj := range objs {
		layer, ok := obj.(*DecoderLayer)
		if !ok {
			return nil, fmt.Errorf("deserialize DecoderStack: not a DecoderLayer: %T", obj)
		}
		unique = append(unique, layer)
	}
	res := &DecoderStack{Layers: make([]*DecoderLayer, count)}
	for i := range res.Layers {
		res.Layers[i] = unique[i%len(unique)]
	}
	return res, nil
}

// Shared reports whether every depth uses the same layer.
func (d *DecoderStack) Shared() bool {
	for _, l := range d.Layers {
		if l != d.Layers[0] {
			return false
		}
	}
	return len(d.Layers) > 1
}

// Apply applies every layer in order.
func (d *DecoderStack) Apply(in, mem anydiff.Res, batch, length, memLen int,
	mode mtattention.Mode) anydiff.Res {
	return anydiff.Pool(mem, func(mem anydiff.Res) anydiff.Res {
		for _, l := range d.Layers {
			in = l.Apply(in, mem, batch, length, memLen, mode)
		}
		return in
	})
}

// Parameters returns the parameters of every distinct
// layer.
func (d *DecoderStack) Parameters() []*anydiff.Var {
	objs := make([]interface{}, len(d.Layers))
	for i, l := range d.Layers {
		objs[i] = l
	}
	return mtattention.AllParameters(objs...)
}

// SerializerType returns the unique ID used to serialize
// a DecoderStack with the serializer package.
func (d *DecoderStack) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention/transformer.DecoderStack"
}

// Serialize serializes the stack.
// A shared layer is only stored once.
func (d *DecoderStack) Serialize() ([]byte, error) {
	var unique []serializer.Serializer
	if d.Shared() {
		unique = append(unique, d.Layers[0])
	} else {
		for _, l := range d.Layers {
			unique = append(unique, l)
		}
	}
	return serializeStack(len(d.Layers), unique)
}
