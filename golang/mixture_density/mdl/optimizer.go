package mdl

import (
	"math"
)

//AdamOptimizer holds the state of the Adam update rule: the first and second
//moment accumulators per parameter matrix and the step counter used for bias
//correction. The state lives in the optimizer object, not in any ambient
//global collection.
type AdamOptimizer struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	StepCount    int
	M            map[string][]float64
	V            map[string][]float64
}

//NewAdamOptimizer creates an Adam optimizer with the usual moment constants.
func NewAdamOptimizer(learningRate float64) *AdamOptimizer {
	return &AdamOptimizer{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		M:            make(map[string][]float64),
		V:            make(map[string][]float64),
	}
}

//Step applies one bias-corrected Adam update to every parameter matrix.
func (opt *AdamOptimizer) Step(params *NetworkParameters, grads *parameterGradients) {
	opt.StepCount++
	t := float64(opt.StepCount)
	lrT := opt.LearningRate * math.Sqrt(1.0-math.Pow(opt.Beta2, t)) / (1.0 - math.Pow(opt.Beta1, t))

	if opt.M == nil {
		opt.M = make(map[string][]float64)
	}
	if opt.V == nil {
		opt.V = make(map[string][]float64)
	}

	namedGrads := grads.namedGrads()
	for ind, param := range params.namedParams() {
		w := param.value.RawMatrix().Data
		g := namedGrads[ind].value.RawMatrix().Data

		m, ok := opt.M[param.name]
		if !ok || len(m) != len(w) {
			m = make([]float64, len(w))
			opt.M[param.name] = m
		}
		v, ok := opt.V[param.name]
		if !ok || len(v) != len(w) {
			v = make([]float64, len(w))
			opt.V[param.name] = v
		}

		for pos := range w {
			m[pos] = opt.Beta1*m[pos] + (1.0-opt.Beta1)*g[pos]
			v[pos] = opt.Beta2*v[pos] + (1.0-opt.Beta2)*g[pos]*g[pos]
			w[pos] -= lrT * m[pos] / (math.Sqrt(v[pos]) + opt.Epsilon)
		}
	}
}
