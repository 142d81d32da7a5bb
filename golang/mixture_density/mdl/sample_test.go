package mdl

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

func TestSampleReturnsExactCount(t *testing.T) {
	model := newTestModel(t, 5, 10)

	for _, count := range []int{0, 1, 17, 1000} {
		samples, err := model.Sample([]float64{0.3}, count, rand.NewSource(1))
		if err != nil {
			t.Fatalf("sample failed: %v", err)
		}
		if len(samples) != count {
			t.Fatalf("expected %d samples, got %d", count, len(samples))
		}
		for ind, v := range samples {
			if !finite(v) {
				t.Fatalf("non-finite sample %d: %g", ind, v)
			}
		}
	}
}

//A large empirical sample from a fixed mixture should reproduce the analytic
//mean and variance of the mixture within a statistical tolerance.
func TestSampleMatchesAnalyticMoments(t *testing.T) {
	weights := []float64{0.3, 0.7}
	means := []float64{-2.0, 3.0}
	stdDevs := []float64{0.5, 1.0}

	analyticMean := 0.0
	for q := range weights {
		analyticMean += weights[q] * means[q]
	}
	analyticVariance := 0.0
	for q := range weights {
		analyticVariance += weights[q] * (stdDevs[q]*stdDevs[q] + means[q]*means[q])
	}
	analyticVariance -= analyticMean * analyticMean

	samples, err := SampleMixture(weights, means, stdDevs, 200000, rand.NewSource(13))
	if err != nil {
		t.Fatalf("sampling failed: %v", err)
	}

	empiricalMean := stat.Mean(samples, nil)
	empiricalVariance := stat.Variance(samples, nil)

	if math.Abs(empiricalMean-analyticMean) > 0.05 {
		t.Fatalf("empirical mean %g too far from analytic %g", empiricalMean, analyticMean)
	}
	if math.Abs(empiricalVariance-analyticVariance) > 0.3 {
		t.Fatalf("empirical variance %g too far from analytic %g", empiricalVariance, analyticVariance)
	}
}

//MeanVariance of a forward output must agree with the direct formula used here.
func TestMixtureMeanVariance(t *testing.T) {
	model := newTestModel(t, 5, 50)

	out, err := model.Forward(makeSineData(5, 21).Features)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	for p := 0; p < 5; p++ {
		mean, variance := out.MeanVariance(p)
		if !finite(mean) || !finite(variance) {
			t.Fatalf("non-finite analytic moments at row %d", p)
		}
		if variance <= 0 {
			t.Fatalf("non-positive analytic variance %g at row %d", variance, p)
		}
	}
}
