package mtattention

import (
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/serializer"
)

func init() {
	serializer.RegisterTypedDeserializer((&Debug{}).SerializerType(), DeserializeDebug)
}

// Debug is a layer which logs statistics about its
// inputs.
// Besides logging, the Debug layer does nothing to
// interfere with the flow of values in a network.
//
// Statistics are computed per column, treating the input
// as a batch of equally sized rows.
type Debug struct {
	// Logger receives the statistics at debug level.
	// If nil, the standard logrus logger is used.
	Logger *logrus.Logger

	ID            string
	PrintMean     bool
	PrintVariance bool
}

// DeserializeDebug deserializes a Debug layer.
// The Logger will be nil.
func DeserializeDebug(d []byte) (*Debug, error) {
	var res Debug
	err := serializer.DeserializeAny(d, &res.ID, &res.PrintMean, &res.PrintVariance)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Apply logs information about its input.
// The input is returned, untouched.
func (d *Debug) Apply(in anydiff.Res, n int, mode Mode) anydiff.Res {
	if !d.PrintMean && !d.PrintVariance {
		return in
	}
	fields := logrus.Fields{"layer": d.ID, "rows": n, "mode": mode.String()}
	cols := in.Output().Len() / n
	mean := anyvec.SumRows(in.Output(), cols)
	normalizer := mean.Creator().MakeNumeric(1 / float64(n))
	mean.Scale(normalizer)
	if d.PrintMean {
		fields["mean"] = mean.Data()
	}
	if d.PrintVariance {
		two := mean.Creator().MakeNumeric(2)
		squared := in.Output().Copy()
		anyvec.Pow(squared, two)
		variance := anyvec.SumRows(squared, cols)
		variance.Scale(normalizer)
		anyvec.Pow(mean, two)
		variance.Sub(mean)
		fields["variance"] = variance.Data()
	}
	d.logger().WithFields(fields).Debug("layer statistics")
	return in
}

// SerializerType returns the unique ID used to serialize
// a Debug layer with the serializer package.
func (d *Debug) SerializerType() string {
	return "github.com/sepidehkoohfar/MTAttention.Debug"
}

// Serialize serializes the layer.
func (d *Debug) Serialize() ([]byte, error) {
	return serializer.SerializeAny(d.ID, d.PrintMean, d.PrintVariance)
}

func (d *Debug) logger() *logrus.Logger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}
