package mdl

import (
	"gonum.org/v1/gonum/mat"
)

//MixtureOutput bundles the per-example parameters of a K-component univariate
//Gaussian mixture predicted by the network. Every matrix has one row per
//example and one column per component. The weight rows lie on the simplex and
//all standard deviations are strictly positive.
type MixtureOutput struct {
	Weights *mat.Dense
	Means   *mat.Dense
	StdDevs *mat.Dense
}

//KComponents returns the number of mixture components.
func (out MixtureOutput) KComponents() int {
	_, k := out.Weights.Dims()
	return k
}

//MeanVariance computes the analytic mean and variance of the mixture
//predicted for one row.
func (out MixtureOutput) MeanVariance(row int) (mean, variance float64) {
	k := out.KComponents()

	for q := 0; q < k; q++ {
		mean += out.Weights.At(row, q) * out.Means.At(row, q)
	}

	for q := 0; q < k; q++ {
		sigma := out.StdDevs.At(row, q)
		mu := out.Means.At(row, q)
		variance += out.Weights.At(row, q) * (sigma*sigma + mu*mu)
	}
	variance -= mean * mean

	return
}
