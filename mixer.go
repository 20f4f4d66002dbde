package mtattention

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var a AddMixer
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeAddMixer)
}

// An AddMixer combines two inputs by applying layers to
// each of them, adding the results together, and then
// applying an optional output layer to the sum.
//
// The two input layers must produce outputs of the same
// size, which makes an AddMixer suitable for skip paths
// like the forecaster's AR branch.
type AddMixer struct {
	In1 Layer
	In2 Layer

	// Out may be nil, in which case the sum is returned.
	Out Layer
}

// DeserializeAddMixer deserializes an AddMixer.
func DeserializeAddMixer(d []byte) (*AddMixer, error) {
	var res AddMixer
	var out Net
	if err := serializer.DeserializeAny(d, &res.In1, &res.In2, &out); err != nil {
		return nil, essentials.AddCtx("deserialize AddMixer", err)
	}
	if len(out) == 1 {
		res.Out = out[0]
	}
	return &res, nil
}

// Mix applies a.In1 to in1 and a.In2 to in2, then adds
// the results, then applies a.Out if it is set.
func (a *AddMixer) Mix(in1, in2 anydiff.Res, batch int, mode Mode) anydiff.Res {
	sum := anydiff.Add(
		a.In1.Apply(in1, batch, mode),
		a.In2.Apply(in2, batch, mode),
	)
	if a.Out == nil {
		return sum
	}
	return a.Out.Apply(sum, batch, mode)
}

// Parameters gets the parameters of all the layers that
// implement Parameterizer.
func (a *AddMixer) Parameters() []*anydiff.Var {
	return AllParameters(a.In1, a.In2, a.Out)
}

// SerializerType returns the unique ID used to serialize
// an AddMixer with the serializer package.
func (a *AddMixer) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention.AddMixer"
}

// Serialize attempts to serialize the AddMixer.
func (a *AddMixer) Serialize() ([]byte, error) {
	var out Net
	if a.Out != nil {
		out = Net{a.Out}
	}
	return serializer.SerializeAny(a.In1, a.In2, out)
}
