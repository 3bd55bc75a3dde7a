package nnet

import (
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"
)

// layerSpec is the on-disk form of a layer. Checkpoints are JSON; Go's
// float64 encoding round-trips exactly, so a reloaded model reproduces the
// saved model's predictions bit for bit.
type layerSpec struct {
	Type       string    `json:"type"`
	Filters    int       `json:"filters,omitempty"`
	Kernel     int       `json:"kernel,omitempty"`
	Units      int       `json:"units,omitempty"`
	Rate       float64   `json:"rate,omitempty"`
	Activation string    `json:"activation,omitempty"`
	Weights    []float64 `json:"weights,omitempty"`
	Bias       []float64 `json:"bias,omitempty"`
}

type modelSpec struct {
	InputShape [2]int      `json:"input_shape"`
	Layers     []layerSpec `json:"layers"`
}

// Save writes the compiled model's architecture and weights to path.
func (m *Sequential) Save(path string) error {
	if !m.compiled {
		return errors.Errorf("cannot save an uncompiled model")
	}
	spec := modelSpec{InputShape: [2]int{m.input.Steps, m.input.Feats}}
	for _, l := range m.layers {
		spec.Layers = append(spec.Layers, l.spec())
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return errors.Wrapf(err, "encoding model")
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing model to %s", path)
	}
	return nil
}

// LoadModel reads a saved model from path, resolving activations through
// the given registry. The returned model is uncompiled: attach a loss and
// optimizer with Compile(m.InputShape(), ...) before using it.
func LoadModel(path string, reg Registry) (*Sequential, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model from %s", path)
	}
	var spec modelSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrapf(err, "decoding model from %s", path)
	}
	if reg == nil {
		reg = DefaultRegistry()
	}

	layers := make([]Layer, 0, len(spec.Layers))
	for i, ls := range spec.Layers {
		var layer Layer
		switch ls.Type {
		case "dense":
			act, err := reg.lookup(ls.Activation)
			if err != nil {
				return nil, errors.Wrapf(err, "layer %d", i)
			}
			layer = &Dense{Units: ls.Units, Activation: act, w: paramFrom(ls.Weights), b: paramFrom(ls.Bias)}
		case "conv1d":
			act, err := reg.lookup(ls.Activation)
			if err != nil {
				return nil, errors.Wrapf(err, "layer %d", i)
			}
			layer = &Conv1D{Filters: ls.Filters, Kernel: ls.Kernel, Activation: act, w: paramFrom(ls.Weights), b: paramFrom(ls.Bias)}
		case "dropout":
			layer = &Dropout{Rate: ls.Rate}
		case "flatten":
			layer = &Flatten{}
		default:
			return nil, errors.Errorf("layer %d has unknown type %q", i, ls.Type)
		}
		layers = append(layers, layer)
	}

	m := NewSequential(layers...)
	m.input = Shape{Steps: spec.InputShape[0], Feats: spec.InputShape[1]}
	return m, nil
}
