package anysgd

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

const (
	adamDefaultDecayRate1 = 0.9
	adamDefaultDecayRate2 = 0.999
	adamDefaultDamping    = 1e-8
)

// Adam implements the adaptive moments SGD technique
// described in https://arxiv.org/pdf/1412.6980.pdf.
//
// The zero value uses the defaults from the paper, which
// match the forecaster's default optimizer.
type Adam struct {
	// These are decay rates for the first and second
	// moments of the gradient.
	// If these are 0, defaults as suggested in the
	// original Adam paper are used.
	DecayRate1, DecayRate2 float64

	// Damping is used to prevent divisions by zero.
	// This should be very small.
	// If it is 0, a default is used.
	Damping float64

	firstMoment  anydiff.Grad
	secondMoment anydiff.Grad
	iteration    float64
}

// Transform transforms the gradient into a bias-corrected
// Adam step direction.
//
// This is not thread-safe.
func (a *Adam) Transform(realGrad anydiff.Grad) anydiff.Grad {
	decay1 := valueOrDefault(a.DecayRate1, adamDefaultDecayRate1)
	decay2 := valueOrDefault(a.DecayRate2, adamDefaultDecayRate2)

	if a.firstMoment == nil {
		a.firstMoment = zeroLike(realGrad)
		a.secondMoment = zeroLike(realGrad)
	}
	for variable, vec := range realGrad {
		accumulateMoment(a.firstMoment[variable], vec, decay1, false)
		accumulateMoment(a.secondMoment[variable], vec, decay2, true)
	}

	a.iteration++
	scale := math.Sqrt(1-math.Pow(decay2, a.iteration)) /
		(1 - math.Pow(decay1, a.iteration))
	damping := valueOrDefault(a.Damping, adamDefaultDamping)
	for variable, vec := range realGrad {
		c := vec.Creator()
		vec.Set(a.firstMoment[variable])
		vec.Scale(c.MakeNumeric(scale))

		divisor := a.secondMoment[variable].Copy()
		divisor.AddScalar(c.MakeNumeric(damping))
		anyvec.Pow(divisor, c.MakeNumeric(0.5))
		vec.Div(divisor)
	}

	return realGrad
}

// accumulateMoment sets moment to
//
//     decay*moment + (1-decay)*x
//
// where x is grad, or grad squared if square is set.
func accumulateMoment(moment, grad anyvec.Vector, decay float64, square bool) {
	c := grad.Creator()
	x := grad.Copy()
	if square {
		anyvec.Pow(x, c.MakeNumeric(2))
	}
	x.Scale(c.MakeNumeric(1 - decay))
	moment.Scale(c.MakeNumeric(decay))
	moment.Add(x)
}

func zeroLike(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, vec := range g {
		res[v] = vec.Creator().MakeVector(vec.Len())
	}
	return res
}
