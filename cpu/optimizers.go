package cpu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-fit/backend"
)

// optimizer updates trainable params in place from their gradients.
// State is keyed by param so one instance can serve a single graph.
type optimizer interface {
	backend.Optimizer
	step(params []*param)
}

func newOptimizer(name string, p backend.OptimizerParams) (optimizer, error) {
	if p.LearningRate <= 0 {
		return nil, fmt.Errorf("optimizer %s: learning rate must be positive, got %v", name, p.LearningRate)
	}
	switch canonicalName(name) {
	case "sgd":
		return &sgdOptimizer{params: p, velocity: map[*param][]float64{}}, nil
	case "adam":
		p.Beta1 = orDefault(p.Beta1, 0.9)
		p.Beta2 = orDefault(p.Beta2, 0.999)
		p.Epsilon = orDefault(p.Epsilon, 1e-8)
		return &adamOptimizer{params: p, m: map[*param][]float64{}, v: map[*param][]float64{}}, nil
	case "rmsprop":
		p.Rho = orDefault(p.Rho, 0.9)
		p.Epsilon = orDefault(p.Epsilon, 1e-8)
		return &rmspropOptimizer{params: p, sq: map[*param][]float64{}, mom: map[*param][]float64{}}, nil
	case "adagrad":
		p.Epsilon = orDefault(p.Epsilon, 1e-10)
		return &adagradOptimizer{params: p, acc: map[*param][]float64{}}, nil
	case "adadelta":
		p.Rho = orDefault(p.Rho, 0.95)
		p.Epsilon = orDefault(p.Epsilon, 1e-6)
		return &adadeltaOptimizer{params: p, accGrad: map[*param][]float64{}, accDelta: map[*param][]float64{}}, nil
	default:
		return nil, fmt.Errorf("unsupported optimizer %q", name)
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// decayedGradient returns the param gradient with L2 decay folded in.
func decayedGradient(p *param, decay float64) []float64 {
	if decay == 0 {
		return p.grad
	}
	g := make([]float64, len(p.grad))
	copy(g, p.grad)
	floats.AddScaled(g, decay, p.value)
	return g
}

func stateFor(m map[*param][]float64, p *param) []float64 {
	s, ok := m[p]
	if !ok {
		s = make([]float64, len(p.value))
		m[p] = s
	}
	return s
}

type sgdOptimizer struct {
	params   backend.OptimizerParams
	velocity map[*param][]float64
}

func (o *sgdOptimizer) Name() string          { return "sgd" }
func (o *sgdOptimizer) LearningRate() float64 { return o.params.LearningRate }

func (o *sgdOptimizer) step(params []*param) {
	lr, mom := o.params.LearningRate, o.params.Momentum
	for _, p := range params {
		if !p.trainable {
			continue
		}
		g := decayedGradient(p, o.params.Decay)
		if mom == 0 {
			floats.AddScaled(p.value, -lr, g)
			continue
		}
		v := stateFor(o.velocity, p)
		for i := range v {
			v[i] = mom*v[i] - lr*g[i]
			if o.params.Nesterov {
				p.value[i] += mom*v[i] - lr*g[i]
			} else {
				p.value[i] += v[i]
			}
		}
	}
}

type adamOptimizer struct {
	params backend.OptimizerParams
	m, v   map[*param][]float64
	t      int
}

func (o *adamOptimizer) Name() string          { return "adam" }
func (o *adamOptimizer) LearningRate() float64 { return o.params.LearningRate }

func (o *adamOptimizer) step(params []*param) {
	o.t++
	b1, b2 := o.params.Beta1, o.params.Beta2
	c1 := 1 - math.Pow(b1, float64(o.t))
	c2 := 1 - math.Pow(b2, float64(o.t))
	for _, p := range params {
		if !p.trainable {
			continue
		}
		g := decayedGradient(p, o.params.Decay)
		m, v := stateFor(o.m, p), stateFor(o.v, p)
		for i, gi := range g {
			m[i] = b1*m[i] + (1-b1)*gi
			v[i] = b2*v[i] + (1-b2)*gi*gi
			mhat := m[i] / c1
			vhat := v[i] / c2
			p.value[i] -= o.params.LearningRate * mhat / (math.Sqrt(vhat) + o.params.Epsilon)
		}
	}
}

type rmspropOptimizer struct {
	params  backend.OptimizerParams
	sq, mom map[*param][]float64
}

func (o *rmspropOptimizer) Name() string          { return "rmsprop" }
func (o *rmspropOptimizer) LearningRate() float64 { return o.params.LearningRate }

func (o *rmspropOptimizer) step(params []*param) {
	rho := o.params.Rho
	for _, p := range params {
		if !p.trainable {
			continue
		}
		g := decayedGradient(p, o.params.Decay)
		sq := stateFor(o.sq, p)
		var buf []float64
		if o.params.Momentum != 0 {
			buf = stateFor(o.mom, p)
		}
		for i, gi := range g {
			sq[i] = rho*sq[i] + (1-rho)*gi*gi
			update := o.params.LearningRate * gi / (math.Sqrt(sq[i]) + o.params.Epsilon)
			if buf != nil {
				buf[i] = o.params.Momentum*buf[i] + update
				update = buf[i]
			}
			p.value[i] -= update
		}
	}
}

type adagradOptimizer struct {
	params backend.OptimizerParams
	acc    map[*param][]float64
}

func (o *adagradOptimizer) Name() string          { return "adagrad" }
func (o *adagradOptimizer) LearningRate() float64 { return o.params.LearningRate }

func (o *adagradOptimizer) step(params []*param) {
	for _, p := range params {
		if !p.trainable {
			continue
		}
		g := decayedGradient(p, o.params.Decay)
		acc := stateFor(o.acc, p)
		for i, gi := range g {
			acc[i] += gi * gi
			p.value[i] -= o.params.LearningRate * gi / (math.Sqrt(acc[i]) + o.params.Epsilon)
		}
	}
}

type adadeltaOptimizer struct {
	params            backend.OptimizerParams
	accGrad, accDelta map[*param][]float64
}

func (o *adadeltaOptimizer) Name() string          { return "adadelta" }
func (o *adadeltaOptimizer) LearningRate() float64 { return o.params.LearningRate }

func (o *adadeltaOptimizer) step(params []*param) {
	rho, eps := o.params.Rho, o.params.Epsilon
	for _, p := range params {
		if !p.trainable {
			continue
		}
		g := decayedGradient(p, o.params.Decay)
		ag, ad := stateFor(o.accGrad, p), stateFor(o.accDelta, p)
		for i, gi := range g {
			ag[i] = rho*ag[i] + (1-rho)*gi*gi
			delta := math.Sqrt(ad[i]+eps) / math.Sqrt(ag[i]+eps) * gi
			ad[i] = rho*ad[i] + (1-rho)*delta*delta
			p.value[i] -= o.params.LearningRate * delta
		}
	}
}
