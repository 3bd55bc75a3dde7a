package nnet

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Shape describes a sample as (timesteps, features). Samples are laid out
// as flat row-major slices of length Steps*Feats. Flat outputs (dense
// layers, flattened conv stacks) use Steps == 1.
type Shape struct {
	Steps int
	Feats int
}

// Len returns the number of values in a sample of this shape.
func (s Shape) Len() int {
	return s.Steps * s.Feats
}

// Param is a trainable weight slice with its accumulated gradient.
type Param struct {
	W    []float64
	Grad []float64
}

func newParam(n int) *Param {
	return &Param{W: make([]float64, n), Grad: make([]float64, n)}
}

func paramFrom(w []float64) *Param {
	return &Param{W: w, Grad: make([]float64, len(w))}
}

// Layer is one stage of a Sequential model. Forward/backward operate on a
// single sample at a time; gradients accumulate in the layer's params until
// the optimizer consumes them at the end of a batch.
type Layer interface {
	build(in Shape, rng *rand.Rand) (Shape, error)
	forward(x []float64, train bool, rng *rand.Rand) []float64
	backward(grad []float64) []float64
	params() []*Param
	spec() layerSpec
}

func glorotInit(rng *rand.Rand, w []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Dense is a fully-connected layer.
type Dense struct {
	Units      int
	Activation Activation

	in      Shape
	w, b    *Param
	x, z, o []float64
	dx      []float64
}

func (d *Dense) build(in Shape, rng *rand.Rand) (Shape, error) {
	if d.Units <= 0 {
		return Shape{}, errors.Errorf("dense layer needs a positive unit count, got %d", d.Units)
	}
	if d.Activation.Fn == nil {
		d.Activation = Linear
	}
	n := in.Len()
	if n == 0 {
		return Shape{}, errors.Errorf("dense layer got an empty input shape")
	}
	if d.w == nil {
		d.w = newParam(n * d.Units)
		d.b = newParam(d.Units)
		glorotInit(rng, d.w.W, n, d.Units)
	} else if len(d.w.W) != n*d.Units {
		return Shape{}, errors.Errorf("dense layer has %d weights, want %d for input %dx%d", len(d.w.W), n*d.Units, in.Steps, in.Feats)
	}
	d.in = in
	d.x = make([]float64, n)
	d.z = make([]float64, d.Units)
	d.o = make([]float64, d.Units)
	d.dx = make([]float64, n)
	return Shape{Steps: 1, Feats: d.Units}, nil
}

func (d *Dense) forward(x []float64, train bool, rng *rand.Rand) []float64 {
	n := d.in.Len()
	copy(d.x, x)
	for u := 0; u < d.Units; u++ {
		z := d.b.W[u]
		row := d.w.W[u*n : (u+1)*n]
		for i, xi := range x {
			z += row[i] * xi
		}
		d.z[u] = z
		d.o[u] = d.Activation.Fn(z)
	}
	return d.o
}

func (d *Dense) backward(grad []float64) []float64 {
	n := d.in.Len()
	for i := range d.dx {
		d.dx[i] = 0
	}
	for u := 0; u < d.Units; u++ {
		dz := grad[u] * d.Activation.Deriv(d.z[u], d.o[u])
		d.b.Grad[u] += dz
		row := d.w.W[u*n : (u+1)*n]
		grow := d.w.Grad[u*n : (u+1)*n]
		for i := 0; i < n; i++ {
			grow[i] += dz * d.x[i]
			d.dx[i] += row[i] * dz
		}
	}
	return d.dx
}

func (d *Dense) params() []*Param {
	return []*Param{d.w, d.b}
}

func (d *Dense) spec() layerSpec {
	return layerSpec{Type: "dense", Units: d.Units, Activation: d.Activation.Name, Weights: d.w.W, Bias: d.b.W}
}

// Conv1D slides Filters kernels of width Kernel over the time axis with
// stride 1 and no padding, so the output has Steps-Kernel+1 timesteps.
type Conv1D struct {
	Filters    int
	Kernel     int
	Activation Activation
	// InputShape may be set on the first layer of a model for
	// documentation; Compile checks it against the shape it is given.
	InputShape Shape

	in       Shape
	outSteps int
	w, b     *Param
	x, z, o  []float64
	dx       []float64
}

func (c *Conv1D) build(in Shape, rng *rand.Rand) (Shape, error) {
	if c.Filters <= 0 || c.Kernel <= 0 {
		return Shape{}, errors.Errorf("conv1d layer needs positive filter and kernel counts, got %d and %d", c.Filters, c.Kernel)
	}
	if c.InputShape != (Shape{}) && c.InputShape != in {
		return Shape{}, errors.Errorf("conv1d declares input %dx%d but got %dx%d", c.InputShape.Steps, c.InputShape.Feats, in.Steps, in.Feats)
	}
	if c.Activation.Fn == nil {
		c.Activation = Linear
	}
	c.outSteps = in.Steps - c.Kernel + 1
	if c.outSteps < 1 {
		return Shape{}, errors.Errorf("conv1d kernel %d does not fit %d timesteps", c.Kernel, in.Steps)
	}
	nw := c.Filters * c.Kernel * in.Feats
	if c.w == nil {
		c.w = newParam(nw)
		c.b = newParam(c.Filters)
		glorotInit(rng, c.w.W, c.Kernel*in.Feats, c.Kernel*c.Filters)
	} else if len(c.w.W) != nw {
		return Shape{}, errors.Errorf("conv1d layer has %d weights, want %d for input %dx%d", len(c.w.W), nw, in.Steps, in.Feats)
	}
	c.in = in
	c.x = make([]float64, in.Len())
	c.z = make([]float64, c.outSteps*c.Filters)
	c.o = make([]float64, c.outSteps*c.Filters)
	c.dx = make([]float64, in.Len())
	return Shape{Steps: c.outSteps, Feats: c.Filters}, nil
}

// weight index for filter f, kernel offset k, input channel ch
func (c *Conv1D) widx(f, k, ch int) int {
	return (f*c.Kernel+k)*c.in.Feats + ch
}

func (c *Conv1D) forward(x []float64, train bool, rng *rand.Rand) []float64 {
	copy(c.x, x)
	nc := c.in.Feats
	for t := 0; t < c.outSteps; t++ {
		for f := 0; f < c.Filters; f++ {
			z := c.b.W[f]
			for k := 0; k < c.Kernel; k++ {
				xoff := (t + k) * nc
				woff := (f*c.Kernel + k) * nc
				for ch := 0; ch < nc; ch++ {
					z += c.w.W[woff+ch] * x[xoff+ch]
				}
			}
			c.z[t*c.Filters+f] = z
			c.o[t*c.Filters+f] = c.Activation.Fn(z)
		}
	}
	return c.o
}

func (c *Conv1D) backward(grad []float64) []float64 {
	nc := c.in.Feats
	for i := range c.dx {
		c.dx[i] = 0
	}
	for t := 0; t < c.outSteps; t++ {
		for f := 0; f < c.Filters; f++ {
			i := t*c.Filters + f
			dz := grad[i] * c.Activation.Deriv(c.z[i], c.o[i])
			c.b.Grad[f] += dz
			for k := 0; k < c.Kernel; k++ {
				xoff := (t + k) * nc
				woff := (f*c.Kernel + k) * nc
				for ch := 0; ch < nc; ch++ {
					c.w.Grad[woff+ch] += dz * c.x[xoff+ch]
					c.dx[xoff+ch] += c.w.W[woff+ch] * dz
				}
			}
		}
	}
	return c.dx
}

func (c *Conv1D) params() []*Param {
	return []*Param{c.w, c.b}
}

func (c *Conv1D) spec() layerSpec {
	return layerSpec{Type: "conv1d", Filters: c.Filters, Kernel: c.Kernel, Activation: c.Activation.Name, Weights: c.w.W, Bias: c.b.W}
}

// Dropout zeroes a fraction of activations during training and rescales the
// survivors by 1/(1-Rate), so inference is a plain identity.
type Dropout struct {
	Rate float64

	in     Shape
	mask   []float64
	o, dx  []float64
	masked bool
}

func (d *Dropout) build(in Shape, rng *rand.Rand) (Shape, error) {
	if d.Rate < 0 || d.Rate >= 1 {
		return Shape{}, errors.Errorf("dropout rate must be in [0, 1), got %g", d.Rate)
	}
	d.in = in
	d.mask = make([]float64, in.Len())
	d.o = make([]float64, in.Len())
	d.dx = make([]float64, in.Len())
	return in, nil
}

func (d *Dropout) forward(x []float64, train bool, rng *rand.Rand) []float64 {
	if !train || d.Rate == 0 {
		d.masked = false
		return x
	}
	d.masked = true
	keep := 1 / (1 - d.Rate)
	for i, xi := range x {
		if rng.Float64() < d.Rate {
			d.mask[i] = 0
		} else {
			d.mask[i] = keep
		}
		d.o[i] = xi * d.mask[i]
	}
	return d.o
}

func (d *Dropout) backward(grad []float64) []float64 {
	if !d.masked {
		return grad
	}
	for i, g := range grad {
		d.dx[i] = g * d.mask[i]
	}
	return d.dx
}

func (d *Dropout) params() []*Param {
	return nil
}

func (d *Dropout) spec() layerSpec {
	return layerSpec{Type: "dropout", Rate: d.Rate}
}

// Flatten collapses (steps, feats) to a flat vector. Since samples are
// already stored flat it only rewrites the shape.
type Flatten struct {
	in Shape
}

func (f *Flatten) build(in Shape, rng *rand.Rand) (Shape, error) {
	f.in = in
	return Shape{Steps: 1, Feats: in.Len()}, nil
}

func (f *Flatten) forward(x []float64, train bool, rng *rand.Rand) []float64 {
	return x
}

func (f *Flatten) backward(grad []float64) []float64 {
	return grad
}

func (f *Flatten) params() []*Param {
	return nil
}

func (f *Flatten) spec() layerSpec {
	return layerSpec{Type: "flatten"}
}
