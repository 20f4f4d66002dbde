package mtattention

import (
	"fmt"
	"strings"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/serializer"
)

func init() {
	var a Activation
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeActivation)
}

// An Activation is an element-wise nonlinearity.
type Activation int

// These are the supported activation functions.
const (
	ReLU Activation = iota
	Tanh
	Sigmoid
	Sin
)

// ParseActivation maps a command-line name (as used by
// the act_type flag) to an Activation.
func ParseActivation(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "relu":
		return ReLU, nil
	case "tanh":
		return Tanh, nil
	case "sigmoid":
		return Sigmoid, nil
	case "sin":
		return Sin, nil
	default:
		return 0, fmt.Errorf("unknown activation: %q", name)
	}
}

// DeserializeActivation deserializes an Activation.
func DeserializeActivation(d []byte) (Activation, error) {
	if len(d) != 1 {
		return 0, fmt.Errorf("deserialize Activation: data length (%d) should be 1", len(d))
	}
	a := Activation(d[0])
	if a > Sin {
		return 0, fmt.Errorf("deserialize Activation: unknown activation ID: %d", a)
	}
	return a, nil
}

// Apply applies the activation function.
// The batch size and mode are ignored.
func (a Activation) Apply(in anydiff.Res, n int, mode Mode) anydiff.Res {
	switch a {
	case ReLU:
		return anydiff.ClipPos(in)
	case Tanh:
		return anydiff.Tanh(in)
	case Sigmoid:
		return anydiff.Sigmoid(in)
	case Sin:
		return anydiff.Sin(in)
	default:
		panic(fmt.Sprintf("unknown activation: %d", a))
	}
}

// String returns the command-line name of a.
func (a Activation) String() string {
	switch a {
	case ReLU:
		return "relu"
	case Tanh:
		return "tanh"
	case Sigmoid:
		return "sigmoid"
	case Sin:
		return "sin"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// SerializerType returns the unique ID used to serialize
// an Activation.
func (a Activation) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention.Activation"
}

// Serialize serializes the activation.
func (a Activation) Serialize() ([]byte, error) {
	return []byte{byte(a)}, nil
}
