package mtattention

import (
	"reflect"
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/serializer"
)

func TestActivationSerialize(t *testing.T) {
	a1 := ReLU
	a2 := Tanh
	a3 := Sigmoid
	a4 := Sin
	data, err := serializer.SerializeAny(a1, a2, a3, a4)
	if err != nil {
		t.Fatal(err)
	}
	var newA1, newA2, newA3, newA4 Activation
	err = serializer.DeserializeAny(data, &newA1, &newA2, &newA3, &newA4)
	if err != nil {
		t.Fatal(err)
	}
	if newA1 != a1 {
		t.Error("ReLU failed")
	}
	if newA2 != a2 {
		t.Error("Tanh failed")
	}
	if newA3 != a3 {
		t.Error("Sigmoid failed")
	}
	if newA4 != a4 {
		t.Error("Sin failed")
	}
}

func TestParseActivation(t *testing.T) {
	for _, a := range []Activation{ReLU, Tanh, Sigmoid, Sin} {
		parsed, err := ParseActivation(a.String())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != a {
			t.Errorf("expected %v but got %v", a, parsed)
		}
	}
	if _, err := ParseActivation("gelu"); err == nil {
		t.Error("expected error for unknown activation")
	}
}

func TestFCSerialize(t *testing.T) {
	fc := NewFC(anyvec32.DefaultCreator{}, 7, 5, nil)
	data, err := serializer.SerializeAny(fc)
	if err != nil {
		t.Fatal(err)
	}
	var newFC *FC
	if err := serializer.DeserializeAny(data, &newFC); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fc, newFC) {
		t.Fatal("incorrect result")
	}
}

func TestDropoutSerialize(t *testing.T) {
	do := &Dropout{KeepProb: 0.335}
	data, err := serializer.SerializeAny(do)
	if err != nil {
		t.Fatal(err)
	}
	var do1 *Dropout
	if err := serializer.DeserializeAny(data, &do1); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(do, do1) {
		t.Fatal("incorrect result")
	}
}

func TestNetSerialize(t *testing.T) {
	net := Net{ReLU, Tanh}
	data, err := serializer.SerializeAny(net)
	if err != nil {
		t.Fatal(err)
	}
	var net1 Net
	if err := serializer.DeserializeAny(data, &net1); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(net, net1) {
		t.Fatal("networks not equal")
	}
}

func TestAddMixerSerialize(t *testing.T) {
	c := anyvec32.DefaultCreator{}
	mixer := &AddMixer{
		In1: NewFC(c, 3, 2, nil),
		In2: NewFC(c, 4, 2, nil),
	}
	data, err := serializer.SerializeAny(mixer)
	if err != nil {
		t.Fatal(err)
	}
	var mixer1 *AddMixer
	if err := serializer.DeserializeAny(data, &mixer1); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(mixer, mixer1) {
		t.Fatal("mixers not equal")
	}
}
