// Package mtattention provides the building blocks of a
// Transformer-style time-series forecaster: layers, costs
// and the Mode switch that separates training from
// evaluation.
//
// The transformer itself lives in the transformer
// sub-package, training plumbing in anysgd and forecast.
package mtattention

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n Net
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNet)
}

// Mode tells a layer whether it is being trained or
// evaluated.
//
// It is passed explicitly to every forward call, so a
// single model can be evaluated while it is being
// trained.
type Mode int

// These are the supported modes.
const (
	Evaluation Mode = iota
	Training
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Evaluation:
		return "evaluation"
	case Training:
		return "training"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// A Parameterizer is anything with learnable variables.
//
// The parameters of a Parameterizer must be in the same
// order every time Parameters() is called.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// A Layer is a composable computation unit.
//
// A Layer's Apply method is inherently batched.
// The input's length must be divisible by the batch size,
// since the batch size indicates how many equally-long
// vectors (rows) are packed into the input vector.
type Layer interface {
	Apply(in anydiff.Res, batchSize int, mode Mode) anydiff.Res
}

// A Net evaluates a list of layers, one after another.
type Net []Layer

// DeserializeNet attempts to deserialize the network.
func DeserializeNet(d []byte) (Net, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Net", err)
	}
	res := make(Net, len(slice))
	for i, x := range slice {
		if layer, ok := x.(Layer); ok {
			res[i] = layer
		} else {
			return nil, fmt.Errorf("deserialize Net: not a Layer: %T", x)
		}
	}
	return res, nil
}

// Apply applies the network to a batch.
// If the network contains no layers, the input is
// returned as output.
func (n Net) Apply(in anydiff.Res, batchSize int, mode Mode) anydiff.Res {
	for _, l := range n {
		in = l.Apply(in, batchSize, mode)
	}
	return in
}

// Parameters returns the parameters of the network.
//
// Every layer which implements Parameterizer will have
// its parameters added to the slice.
// Parameters are ordered from the first layer onwards.
func (n Net) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range n {
		if p, ok := x.(Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Net with the serializer package.
func (n Net) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention.Net"
}

// Serialize attempts to serialize the network.
// If any Layer is not a serializer.Serializer,
// this fails.
func (n Net) Serialize() ([]byte, error) {
	var slice []serializer.Serializer
	for _, x := range n {
		if s, ok := x.(serializer.Serializer); ok {
			slice = append(slice, s)
		} else {
			return nil, fmt.Errorf("not a Serializer: %T", x)
		}
	}
	return serializer.SerializeSlice(slice)
}

// AllParameters collects the parameters of every object
// that implements Parameterizer.
//
// A variable shared by several objects is only reported
// once, at the position of its first occurrence.
func AllParameters(objs ...interface{}) []*anydiff.Var {
	seen := map[*anydiff.Var]bool{}
	var res []*anydiff.Var
	for _, obj := range objs {
		p, ok := obj.(Parameterizer)
		if !ok {
			continue
		}
		for _, v := range p.Parameters() {
			if !seen[v] {
				seen[v] = true
				res = append(res, v)
			}
		}
	}
	return res
}
