package initwfn

import (
	"encoding/json"
	"testing"

	"gorgonia.org/tensor"
)

func TestUnmarshalJSON(t *testing.T) {
	var init InitWFn
	data := []byte(`{"Type": "Gaussian", "Config": {"Mean": 1, "StdDev": 0.5}}`)
	if err := json.Unmarshal(data, &init); err != nil {
		t.Fatal(err)
	}
	if init.Type != Gaussian {
		t.Errorf("type: \n\twant(%v)\n\thave(%v)", Gaussian, init.Type)
	}
	want := GaussianConfig{Mean: 1, StdDev: 0.5}
	if init.Config != want {
		t.Errorf("config: \n\twant(%v)\n\thave(%v)", want, init.Config)
	}
	if init.InitWFn() == nil {
		t.Errorf("no initializer created")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	he, err := NewHeU(2)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(he)
	if err != nil {
		t.Fatal(err)
	}
	var have InitWFn
	if err := json.Unmarshal(data, &have); err != nil {
		t.Fatal(err)
	}
	if have.Type != HeU || have.Config != he.Config {
		t.Errorf("round trip: \n\twant(%v)\n\thave(%v)", he, &have)
	}
}

func TestUnmarshalUnknown(t *testing.T) {
	var init InitWFn
	if err := json.Unmarshal([]byte(`{"Type": "Xavier"}`), &init); err == nil {
		t.Errorf("expected an error for an unknown type")
	}
}

func TestConstant(t *testing.T) {
	c, err := NewConstant(0.5)
	if err != nil {
		t.Fatal(err)
	}
	values := c.InitWFn()(tensor.Float64, 2, 2).([]float64)
	for _, v := range values {
		if v != 0.5 {
			t.Fatalf("value: \n\twant(0.5)\n\thave(%v)", v)
		}
	}
}
