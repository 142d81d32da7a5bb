package mdl

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
	"math"
)

//Indices of the head planes in the (h, 3, k) head-gradient tensor.
const (
	headPi = iota
	headMu
	headSigma
)

const logTwoPi = 1.8378770664093453

//degenerateSigmaThreshold is the smallest standard deviation the loss accepts.
//A component below it has collapsed and the step fails explicitly.
const degenerateSigmaThreshold = 1e-12

//logNormal evaluates the log density of a univariate Gaussian.
func logNormal(y, mu, sigma float64) float64 {
	d := (y - mu) / sigma
	return -0.5*logTwoPi - math.Log(sigma) - 0.5*d*d
}

//mixtureNLL computes the negative log likelihood of a target batch under the
//predicted mixtures. The log of the weighted sum of component densities is
//evaluated with a log-sum-exp over the components, the contributions are
//summed over the batch.
func mixtureNLL(out MixtureOutput, target *mat.Dense) (float64, error) {
	h, _ := out.Weights.Dims()
	targetH, targetW := target.Dims()
	if targetH != h {
		return 0, &ShapeMismatchError{What: "target rows", Want: h, Got: targetH}
	}
	if targetW != 1 {
		return 0, &ShapeMismatchError{What: "target columns", Want: 1, Got: targetW}
	}

	k := out.KComponents()
	logComp := make([]float64, k)

	total := 0.0
	for p := 0; p < h; p++ {
		y := target.At(p, 0)
		for q := 0; q < k; q++ {
			sigma := out.StdDevs.At(p, q)
			if sigma < degenerateSigmaThreshold {
				return 0, &DegenerateComponentError{Row: p, Component: q, Sigma: sigma}
			}
			logComp[q] = math.Log(out.Weights.At(p, q)) + logNormal(y, out.Means.At(p, q), sigma)
		}
		total -= floats.LogSumExp(logComp)
	}

	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, &DegenerateComponentError{Row: -1, Component: -1, Loss: total}
	}

	return total, nil
}

//lossAndHeadGradients computes the batch negative log likelihood together
//with the gradients of the loss with respect to the three raw head outputs.
//The gradients are stored per example in an (h, 3, k) array: the softmax head
//receives pi - r, the mean head r*(mu-y)/sigma^2 and the raw deviation head
//r*(1 - ((y-mu)/sigma)^2) scaled by (sigma-sigmaFloor)/sigma to account for
//the floored exponential transform, where r is the posterior responsibility
//of the component.
func lossAndHeadGradients(cache *forwardCache, target *mat.Dense, sigmaFloor float64) (float64, *tensor.Dense, error) {
	out := cache.Out
	h, _ := out.Weights.Dims()
	targetH, targetW := target.Dims()
	if targetH != h {
		return 0, nil, &ShapeMismatchError{What: "target rows", Want: h, Got: targetH}
	}
	if targetW != 1 {
		return 0, nil, &ShapeMismatchError{What: "target columns", Want: 1, Got: targetW}
	}

	k := out.KComponents()
	logComp := make([]float64, k)

	headGrads := tensor.New(tensor.WithShape(h, 3, k), tensor.Of(tensor.Float64))

	total := 0.0
	for p := 0; p < h; p++ {
		y := target.At(p, 0)
		for q := 0; q < k; q++ {
			sigma := out.StdDevs.At(p, q)
			if sigma < degenerateSigmaThreshold {
				return 0, nil, &DegenerateComponentError{Row: p, Component: q, Sigma: sigma}
			}
			logComp[q] = math.Log(out.Weights.At(p, q)) + logNormal(y, out.Means.At(p, q), sigma)
		}
		lse := floats.LogSumExp(logComp)
		total -= lse

		for q := 0; q < k; q++ {
			responsibility := math.Exp(logComp[q] - lse)
			sigma := out.StdDevs.At(p, q)
			mu := out.Means.At(p, q)
			d := (y - mu) / sigma

			HandleError(headGrads.SetAt(out.Weights.At(p, q)-responsibility, p, headPi, q))
			HandleError(headGrads.SetAt(responsibility*(mu-y)/(sigma*sigma), p, headMu, q))
			HandleError(headGrads.SetAt(responsibility*(1.0-d*d)*(sigma-sigmaFloor)/sigma, p, headSigma, q))
		}
	}

	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, nil, &DegenerateComponentError{Row: -1, Component: -1, Loss: total}
	}

	return total, headGrads, nil
}
