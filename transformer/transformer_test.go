package transformer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sepidehkoohfar/MTAttention"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/serializer"
)

func testConfig() *ModelConfig {
	return &ModelConfig{
		InputSize:        3,
		OutputSize:       2,
		DModel:           4,
		NumHeads:         2,
		DForward:         3,
		Activation:       mtattention.Tanh,
		Dropout:          0.1,
		NumEncoderLayers: 2,
		NumDecoderLayers: 2,
		EncodeLength:     7,
		MaxLen:           16,
	}
}

func randomInput(c anyvec.Creator, r *rand.Rand, size int) *anydiff.Var {
	data := make([]float64, size)
	for i := range data {
		data[i] = r.NormFloat64()
	}
	return anydiff.NewVar(c.MakeVectorData(c.MakeNumericList(data)))
}

func TestPositionalTable(t *testing.T) {
	table := PositionalTable(4, 3)
	for pos := 0; pos < 3; pos++ {
		for i := 0; i < 4; i += 2 {
			arg := float64(pos) / math.Pow(10000, float64(i)/4)
			if math.Abs(table[pos*4+i]-math.Sin(arg)) > 1e-12 {
				t.Errorf("sin entry (%d, %d) is %f", pos, i, table[pos*4+i])
			}
			if math.Abs(table[pos*4+i+1]-math.Cos(arg)) > 1e-12 {
				t.Errorf("cos entry (%d, %d) is %f", pos, i+1, table[pos*4+i+1])
			}
		}
	}
	if table[0] != 0 || table[1] != 1 {
		t.Error("position 0 should encode to sin(0), cos(0)")
	}
}

func TestPositionalEncodingTooLong(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	pe := NewPositionalEncoding(c, 2, 3, 0, nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for an over-long sequence")
		}
	}()
	pe.Apply(anydiff.NewConst(c.MakeVector(8)), 1, 4, mtattention.Evaluation)
}

func TestShiftRight(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	in := anydiff.NewConst(c.MakeVectorData([]float64{
		1, 10,
		2, 20,
		3, 30,

		4, 40,
		5, 50,
		6, 60,
	}))
	actual := ShiftRight(in, 2, 3).Output().Data().([]float64)
	expected := []float64{
		3, 30,
		1, 10,
		2, 20,

		6, 60,
		4, 40,
		5, 50,
	}
	for i, x := range expected {
		if actual[i] != x {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}

	var res anydiff.Res = in
	for i := 0; i < 3; i++ {
		res = ShiftRight(res, 2, 3)
	}
	cycled := res.Output().Data().([]float64)
	original := in.Output().Data().([]float64)
	for i, x := range original {
		if cycled[i] != x {
			t.Errorf("component %d after a full cycle: expected %f but got %f", i, x, cycled[i])
		}
	}
}

func TestShiftRightProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	in := randomInput(c, rand.New(rand.NewSource(1)), 12)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return ShiftRight(in, 2, 3)
		},
		V: []*anydiff.Var{in},
	}
	checker.FullCheck(t)
}

func TestAttentionWeightsSumToOne(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(2))
	m := NewMultiHeadAttention(c, 4, 2, 0, r)

	// Every value row is all ones and the output projection
	// is the identity, so convex weights yield all ones.
	m.Value.Weights.Vector.Scale(c.MakeNumeric(0))
	m.Value.Biases.Vector.SetData([]float64{1, 1, 1, 1})
	m.OutWeights.Vector.SetData([]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	in := randomInput(c, r, 2*3*4)
	out := m.SelfApply(in, 2, 3, mtattention.Evaluation).Output().Data().([]float64)
	for i, x := range out {
		if math.Abs(x-1) > 1e-8 {
			t.Errorf("component %d: expected 1 but got %f", i, x)
		}
	}
}

func TestAttentionSequencesIndependent(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(3))
	m := NewMultiHeadAttention(c, 4, 2, 0, r)
	in := randomInput(c, r, 2*3*4)
	both := m.SelfApply(in, 2, 3, mtattention.Evaluation).Output().Data().([]float64)

	second := anydiff.NewConst(in.Vector.Slice(12, 24))
	alone := m.SelfApply(second, 1, 3, mtattention.Evaluation).Output().Data().([]float64)
	for i, x := range alone {
		if math.Abs(both[12+i]-x) > 1e-8 {
			t.Errorf("component %d: expected %f but got %f", i, x, both[12+i])
		}
	}
}

func TestAttentionProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(4))
	m := NewMultiHeadAttention(c, 4, 2, 0, r)
	q := randomInput(c, r, 2*2*4)
	mem := randomInput(c, r, 2*3*4)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return m.CrossApply(q, mem, 2, 2, 3, mtattention.Training)
		},
		V: append([]*anydiff.Var{q, mem}, m.Parameters()...),
	}
	checker.FullCheck(t)
}

func TestModelProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(5))
	cfg := testConfig()
	cfg.Dropout = 0
	model, err := NewModel(c, cfg, r)
	if err != nil {
		t.Fatal(err)
	}
	in := randomInput(c, r, 2*3*cfg.InputSize)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return model.Apply(in, 2, 3, mtattention.Training)
		},
		V: append([]*anydiff.Var{in}, model.Parameters()...),
	}
	checker.FullCheck(t)
}

func TestModelEvaluationDeterministic(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(6))
	cfg := testConfig()
	cfg.Dropout = 0.5
	model, err := NewModel(c, cfg, r)
	if err != nil {
		t.Fatal(err)
	}
	in := randomInput(c, r, 2*4*cfg.InputSize)
	out1 := model.Apply(in, 2, 4, mtattention.Evaluation).Output().Data().([]float64)
	out2 := model.Apply(in, 2, 4, mtattention.Evaluation).Output().Data().([]float64)
	if len(out1) != 2*4*cfg.OutputSize {
		t.Fatalf("expected %d outputs but got %d", 2*4*cfg.OutputSize, len(out1))
	}
	for i, x := range out1 {
		if x != out2[i] {
			t.Fatalf("component %d differs between runs: %f vs %f", i, x, out2[i])
		}
	}
}

func TestModelSharedLayers(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	cfg := testConfig()
	shared, err := NewModel(c, cfg, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	cfg.IndependentLayers = true
	independent, err := NewModel(c, cfg, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	if !shared.Encoder.Shared() || !shared.Decoder.Shared() {
		t.Error("default stacks should share one layer")
	}
	if independent.Encoder.Shared() || independent.Decoder.Shared() {
		t.Error("independent stacks should not share layers")
	}
	encParams := len(shared.Encoder.Layers[0].Parameters())
	decParams := len(shared.Decoder.Layers[0].Parameters())
	diff := len(independent.Parameters()) - len(shared.Parameters())
	if diff != encParams+decParams {
		t.Errorf("expected %d extra parameters but got %d", encParams+decParams, diff)
	}
}

func TestModelSerialize(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(8))
	for _, independent := range []bool{false, true} {
		cfg := testConfig()
		cfg.IndependentLayers = independent
		model, err := NewModel(c, cfg, r)
		if err != nil {
			t.Fatal(err)
		}
		data, err := serializer.SerializeAny(model)
		if err != nil {
			t.Fatal(err)
		}
		var decoded *Model
		if err := serializer.DeserializeAny(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.EncodeLength != cfg.EncodeLength {
			t.Errorf("encode length: expected %d but got %d", cfg.EncodeLength,
				decoded.EncodeLength)
		}
		if decoded.Encoder.Shared() != !independent {
			t.Errorf("independent=%v: sharing not preserved", independent)
		}
		if len(decoded.Decoder.Layers) != cfg.NumDecoderLayers {
			t.Errorf("expected %d decoder layers but got %d", cfg.NumDecoderLayers,
				len(decoded.Decoder.Layers))
		}
		if len(decoded.Parameters()) != len(model.Parameters()) {
			t.Fatalf("expected %d parameters but got %d", len(model.Parameters()),
				len(decoded.Parameters()))
		}

		in := randomInput(c, r, 3*cfg.InputSize)
		expected := model.Apply(in, 1, 3, mtattention.Evaluation).Output().Data().([]float64)
		actual := decoded.Apply(in, 1, 3, mtattention.Evaluation).Output().Data().([]float64)
		for i, x := range expected {
			if math.Abs(actual[i]-x) > 1e-8 {
				t.Errorf("independent=%v component %d: expected %f but got %f",
					independent, i, x, actual[i])
			}
		}
	}
}

func TestModelConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.NumHeads = 3
	if _, err := NewModel(anyvec64.DefaultCreator{}, cfg, nil); err == nil {
		t.Error("expected error for indivisible head count")
	}
	cfg = testConfig()
	cfg.Dropout = 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for dropout rate 1")
	}
}

func TestModelInputSizePanics(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	model, err := NewModel(c, testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for a mismatched input")
		}
	}()
	model.Apply(anydiff.NewConst(c.MakeVector(10)), 1, 3, mtattention.Evaluation)
}

func TestStackSerialize(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(9))
	cfg := testConfig()

	enc := NewEncoderStack(NewEncoderLayer(c, cfg, r), 3)
	data, err := enc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	decodedEnc, err := DeserializeEncoderStack(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(decodedEnc.Layers) != 3 || !decodedEnc.Shared() {
		t.Errorf("expected 3 shared encoder layers but got %d (shared=%v)",
			len(decodedEnc.Layers), decodedEnc.Shared())
	}

	dec := &DecoderStack{Layers: []*DecoderLayer{
		NewDecoderLayer(c, cfg, r),
		NewDecoderLayer(c, cfg, r),
	}}
	data, err = dec.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	decodedDec, err := DeserializeDecoderStack(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(decodedDec.Layers) != 2 || decodedDec.Shared() {
		t.Errorf("expected 2 independent decoder layers but got %d (shared=%v)",
			len(decodedDec.Layers), decodedDec.Shared())
	}
	expected := dec.Layers[1].Parameters()[0].Vector.Data().([]float64)
	actual := decodedDec.Layers[1].Parameters()[0].Vector.Data().([]float64)
	for i, x := range expected {
		if actual[i] != x {
			t.Errorf("decoder layer 1 component %d: expected %f but got %f", i, x, actual[i])
		}
	}

	bad, err := serializeStack(3, []serializer.Serializer{dec.Layers[0], dec.Layers[1]})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DeserializeDecoderStack(bad); err == nil {
		t.Error("expected error for 2 layers stored in a stack of 3")
	}
}
