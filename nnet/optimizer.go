package nnet

import "math"

// Optimizer applies accumulated gradients to model parameters once per
// batch. step scales gradients by the given factor (1/batch size) and
// zeroes them afterwards.
type Optimizer interface {
	Name() string
	init(params []*Param)
	step(params []*Param, scale float64)
}

// SGD is plain minibatch gradient descent.
type SGD struct {
	LR float64
}

// NewSGD returns an SGD optimizer with the given learning rate.
func NewSGD(lr float64) *SGD {
	return &SGD{LR: lr}
}

// Name implements Optimizer.
func (s *SGD) Name() string { return "sgd" }

func (s *SGD) init(params []*Param) {}

func (s *SGD) step(params []*Param, scale float64) {
	for _, p := range params {
		for i, g := range p.Grad {
			p.W[i] -= s.LR * g * scale
			p.Grad[i] = 0
		}
	}
}

// Adam keeps bias-corrected first and second moment estimates per weight.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t    int
	m, v [][]float64
}

// NewAdam returns an Adam optimizer with the given learning rate and the
// usual moment defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Name implements Optimizer.
func (a *Adam) Name() string { return "adam" }

func (a *Adam) init(params []*Param) {
	a.t = 0
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, len(p.W))
		a.v[i] = make([]float64, len(p.W))
	}
}

func (a *Adam) step(params []*Param, scale float64) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j, g := range p.Grad {
			g *= scale
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
			p.W[j] -= a.LR * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.Eps)
			p.Grad[j] = 0
		}
	}
}
