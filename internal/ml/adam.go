package ml

import "math"

const (
	DefaultLearningRate = 0.001
	Beta1               = 0.9
	Beta2               = 0.999
	Epsilon             = 1e-8
)

// Adam applies bias-corrected adaptive moment estimation to a fixed set of
// parameters. Moment buffers are owned by the optimizer.
type Adam struct {
	learningRate float64
	step         int
	params       []*Param
	m1           [][]float64
	m2           [][]float64
}

// NewAdam creates an optimizer for params.
func NewAdam(params []*Param, learningRate float64) *Adam {
	a := &Adam{
		learningRate: learningRate,
		params:       params,
		m1:           make([][]float64, len(params)),
		m2:           make([][]float64, len(params)),
	}
	for i, p := range params {
		n := len(p.Value.RawMatrix().Data)
		a.m1[i] = make([]float64, n)
		a.m2[i] = make([]float64, n)
	}
	return a
}

// LearningRate returns the configured step size.
func (a *Adam) LearningRate() float64 {
	return a.learningRate
}

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int {
	return a.step
}

// Step updates every parameter from its accumulated gradient.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(Beta1, float64(a.step))
	c2 := 1 - math.Pow(Beta2, float64(a.step))

	for i, p := range a.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		m1, m2 := a.m1[i], a.m2[i]
		for j, g := range grad {
			m1[j] = m1[j]*Beta1 + g*(1-Beta1)
			m2[j] = m2[j]*Beta2 + (g*g)*(1-Beta2)
			value[j] -= a.learningRate * (m1[j] / c1) / (math.Sqrt(m2[j]/c2) + Epsilon)
		}
	}
}

// ZeroGrad clears the gradients of every parameter.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.Grad.Zero()
	}
}
