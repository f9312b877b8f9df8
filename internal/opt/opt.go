// Package opt provides optimization algorithms.
package opt

import "math"

// Optimizer updates network parameters based on gradients.
//
// Step receives every parameter group of the model in a fixed order and
// updates them in-place. Stateful optimizers keep their moment buffers per
// group index, so the same group must always be passed at the same index.
type Optimizer interface {
	Step(params, gradients [][]float64)

	// Name returns the identifier used in genomes and summaries.
	Name() string
}

// growState makes sure state has one buffer per group sized like params.
func growState(state [][]float64, params [][]float64) [][]float64 {
	for len(state) < len(params) {
		state = append(state, nil)
	}
	for i, p := range params {
		if len(state[i]) != len(p) {
			state[i] = make([]float64, len(p))
		}
	}
	return state
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LearningRate float64
}

// NewSGD creates an SGD optimizer. The usual rate is 0.01.
func NewSGD(learningRate float64) *SGD {
	return &SGD{LearningRate: learningRate}
}

// Step updates params in-place: params = params - lr * gradients
func (s *SGD) Step(params, gradients [][]float64) {
	for g := range params {
		p, grad := params[g], gradients[g]
		for i := range p {
			p[i] -= s.LearningRate * grad[i]
		}
	}
}

func (s *SGD) Name() string { return "sgd" }

// RMSprop divides the gradient by a running average of its recent magnitude.
type RMSprop struct {
	LearningRate float64
	Rho          float64 // Decay rate of the squared-gradient average
	Epsilon      float64 // Small constant for numerical stability

	v [][]float64
}

// NewRMSprop creates an RMSprop optimizer with the usual defaults (rho 0.9, epsilon 1e-7).
func NewRMSprop(learningRate float64) *RMSprop {
	return &RMSprop{
		LearningRate: learningRate,
		Rho:          0.9,
		Epsilon:      1e-7,
	}
}

// Step applies v = rho*v + (1-rho)*g^2; p -= lr * g / (sqrt(v) + eps)
func (r *RMSprop) Step(params, gradients [][]float64) {
	r.v = growState(r.v, params)
	for g := range params {
		p, grad, v := params[g], gradients[g], r.v[g]
		for i := range p {
			v[i] = r.Rho*v[i] + (1-r.Rho)*grad[i]*grad[i]
			p[i] -= r.LearningRate * grad[i] / (math.Sqrt(v[i]) + r.Epsilon)
		}
	}
}

func (r *RMSprop) Name() string { return "rmsprop" }

// Adam optimizer with bias-corrected first and second moments.
type Adam struct {
	LearningRate float64
	Beta1        float64 // Exponential decay rate for first moment
	Beta2        float64 // Exponential decay rate for second moment
	Epsilon      float64 // Small constant for numerical stability

	t int
	m [][]float64
	v [][]float64
}

// NewAdam creates a new Adam optimizer with default values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}

// Step computes updated parameters using Adam
func (a *Adam) Step(params, gradients [][]float64) {
	a.m = growState(a.m, params)
	a.v = growState(a.v, params)
	a.t++

	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for g := range params {
		p, grad, m, v := params[g], gradients[g], a.m[g], a.v[g]
		for i := range p {
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*grad[i]
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*grad[i]*grad[i]
			p[i] -= a.LearningRate * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.Epsilon)
		}
	}
}

func (a *Adam) Name() string { return "adam" }

// Nadam is Adam with Nesterov momentum and the warming momentum schedule
// of Dozat (2016).
type Nadam struct {
	LearningRate  float64
	Beta1         float64
	Beta2         float64
	Epsilon       float64
	ScheduleDecay float64

	t         int
	mSchedule float64
	m         [][]float64
	v         [][]float64
}

// NewNadam creates a Nadam optimizer with beta1 0.9, beta2 0.999 and schedule decay 0.004.
func NewNadam(learningRate float64) *Nadam {
	return &Nadam{
		LearningRate:  learningRate,
		Beta1:         0.9,
		Beta2:         0.999,
		Epsilon:       1e-7,
		ScheduleDecay: 0.004,
		mSchedule:     1,
	}
}

// Step applies one Nadam update to every group.
func (n *Nadam) Step(params, gradients [][]float64) {
	n.m = growState(n.m, params)
	n.v = growState(n.v, params)
	n.t++

	t := float64(n.t)
	momentumT := n.Beta1 * (1 - 0.5*math.Pow(0.96, t*n.ScheduleDecay))
	momentumNext := n.Beta1 * (1 - 0.5*math.Pow(0.96, (t+1)*n.ScheduleDecay))
	scheduleNew := n.mSchedule * momentumT
	scheduleNext := scheduleNew * momentumNext
	n.mSchedule = scheduleNew
	vCorrection := 1 - math.Pow(n.Beta2, t)

	for g := range params {
		p, grad, m, v := params[g], gradients[g], n.m[g], n.v[g]
		for i := range p {
			gPrime := grad[i] / (1 - scheduleNew)
			m[i] = n.Beta1*m[i] + (1-n.Beta1)*grad[i]
			mPrime := m[i] / (1 - scheduleNext)
			v[i] = n.Beta2*v[i] + (1-n.Beta2)*grad[i]*grad[i]
			vPrime := v[i] / vCorrection
			mBar := (1-momentumT)*gPrime + momentumNext*mPrime
			p[i] -= n.LearningRate * mBar / (math.Sqrt(vPrime) + n.Epsilon)
		}
	}
}

func (n *Nadam) Name() string { return "nadam" }
