package anysgd

import (
	"fmt"

	"github.com/unixpickle/anydiff"
)

const momentumDefault = 0.9

// Momentum implements SGD with momentum.
//
// The transformed gradient v is computed as
//
//     v := momentum * v + grad
type Momentum struct {
	// Momentum is the decay of the rolling gradient.
	// If it is 0, a default of 0.9 is used.
	Momentum float64

	rolling anydiff.Grad
}

// Transform transforms the gradient using momentum.
//
// This is not thread-safe.
func (m *Momentum) Transform(g anydiff.Grad) anydiff.Grad {
	if m.rolling == nil {
		m.rolling = copyGrad(g)
		return g
	}
	decay := valueOrDefault(m.Momentum, momentumDefault)
	for v, x := range m.rolling {
		x.Scale(x.Creator().MakeNumeric(decay))
		x.Add(g[v])
		g[v].Set(x)
	}
	return g
}

// NewTransformer creates a fresh Transformer by name.
//
// Supported names are "adam", "rmsprop", "momentum" and
// "sgd" (no transformation, which yields a nil
// Transformer).
func NewTransformer(name string) (Transformer, error) {
	switch name {
	case "adam":
		return &Adam{}, nil
	case "rmsprop":
		return &RMSProp{}, nil
	case "momentum":
		return &Momentum{}, nil
	case "sgd":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown optimizer: %s", name)
	}
}
