package mdl

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func flattenParams(np *NetworkParameters) []float64 {
	var out []float64
	for _, param := range np.namedParams() {
		out = append(out, param.value.RawMatrix().Data...)
	}
	return out
}

func setParams(np *NetworkParameters, flat []float64) {
	pos := 0
	for _, param := range np.namedParams() {
		data := param.value.RawMatrix().Data
		copy(data, flat[pos:pos+len(data)])
		pos += len(data)
	}
}

func flattenGrads(grads *parameterGradients) []float64 {
	var out []float64
	for _, grad := range grads.namedGrads() {
		out = append(out, grad.value.RawMatrix().Data...)
	}
	return out
}

//The analytic backward pass is checked against central finite differences of
//the loss on a tiny network.
func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	const sigmaFloor = 1e-6

	np := NewNetworkParameters(1, 3, 2, rand.NewSource(7))

	features := mat.NewDense(4, 1, []float64{-0.8, -0.1, 0.3, 0.9})
	target := mat.NewDense(4, 1, []float64{2.0, -1.0, 0.5, 1.5})

	cache, err := np.forwardPass(features, sigmaFloor)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	_, headGrads, err := lossAndHeadGradients(cache, target, sigmaFloor)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	analytic := flattenGrads(np.backward(features, cache, headGrads))

	point := flattenParams(np)
	lossAt := func(flat []float64) float64 {
		setParams(np, flat)
		cache, err := np.forwardPass(features, sigmaFloor)
		if err != nil {
			t.Fatalf("forward failed during gradient check: %v", err)
		}
		loss, err := mixtureNLL(cache.Out, target)
		if err != nil {
			t.Fatalf("loss failed during gradient check: %v", err)
		}
		return loss
	}

	numeric := make([]float64, len(point))
	fd.Gradient(numeric, lossAt, point, &fd.Settings{Formula: fd.Central})
	setParams(np, point)

	if len(numeric) != len(analytic) {
		t.Fatalf("gradient length mismatch: %d vs %d", len(numeric), len(analytic))
	}
	for ind := range numeric {
		if math.Abs(numeric[ind]-analytic[ind]) > 1e-4 {
			t.Fatalf("gradient component %d differs: numeric %g, analytic %g", ind, numeric[ind], analytic[ind])
		}
	}
}
