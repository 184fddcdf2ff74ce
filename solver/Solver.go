// Package solver wraps Gorgonia solvers so that they can be described
// in JSON configuration files
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

var configTypes = map[Type]reflect.Type{
	Adam:    reflect.TypeOf(AdamConfig{}),
	Vanilla: reflect.TypeOf(VanillaConfig{}),
	RMSProp: reflect.TypeOf(RMSPropConfig{}),
}

// Solver wraps a Gorgonia Solver with the description it was created
// from. Since Gorgonia solvers keep per-parameter state, each set of
// learnables should be stepped by its own solver created with
// Config.Create.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// New returns a new solver with the given type and configuration
func New(t Type, c Config) (*Solver, error) {
	if c == nil || !c.ValidType(t) {
		return nil, fmt.Errorf("new: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	return &Solver{Solver: c.Create(), Type: t, Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	ty, ok := configTypes[raw.Type]
	if !ok {
		return fmt.Errorf("unmarshalJSON: unknown solver type %q", raw.Type)
	}
	value := reflect.New(ty)
	if len(raw.Config) > 0 {
		if err := json.Unmarshal(raw.Config, value.Interface()); err != nil {
			return fmt.Errorf("unmarshalJSON: %v", err)
		}
	}

	solver, err := New(raw.Type, value.Elem().Interface().(Config))
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	*s = *solver
	return nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create the Gorgonia Solvers it describes
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
