package nnet

import (
	"math"

	"github.com/pkg/errors"
)

// Activation is an elementwise nonlinearity. Deriv receives both the
// pre-activation value and the activated output so that cheap forms like
// sigmoid's y*(1-y) can be used.
type Activation struct {
	Name  string
	Fn    func(x float64) float64
	Deriv func(x, y float64) float64
}

// Linear is the identity activation.
var Linear = Activation{
	Name:  "linear",
	Fn:    func(x float64) float64 { return x },
	Deriv: func(x, y float64) float64 { return 1 },
}

// ReLU is the rectified linear activation.
var ReLU = Activation{
	Name: "relu",
	Fn:   func(x float64) float64 { return math.Max(0, x) },
	Deriv: func(x, y float64) float64 {
		if x > 0 {
			return 1
		}
		return 0
	},
}

// Sigmoid is the logistic activation.
var Sigmoid = Activation{
	Name:  "sigmoid",
	Fn:    func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	Deriv: func(x, y float64) float64 { return y * (1 - y) },
}

// Registry maps activation names to implementations. Deserialization
// resolves activations through an explicit registry passed by the caller,
// so models saved with non-standard activations can be reloaded without
// any hidden global lookup.
type Registry map[string]Activation

// DefaultRegistry returns a registry with the standard activations.
func DefaultRegistry() Registry {
	return Registry{
		Linear.Name:  Linear,
		ReLU.Name:    ReLU,
		Sigmoid.Name: Sigmoid,
	}
}

// Merge returns a copy of r with the entries of other added. Entries in
// other win on name collisions.
func (r Registry) Merge(other Registry) Registry {
	merged := make(Registry, len(r)+len(other))
	for name, act := range r {
		merged[name] = act
	}
	for name, act := range other {
		merged[name] = act
	}
	return merged
}

func (r Registry) lookup(name string) (Activation, error) {
	if name == "" {
		return Linear, nil
	}
	act, ok := r[name]
	if !ok {
		return Activation{}, errors.Errorf("unknown activation %q: register it before loading the model", name)
	}
	return act, nil
}
