package mdl

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

//Sample draws count independent values from the mixture predicted for one
//input vector. A component index is drawn according to the predicted weights,
//then a Gaussian value is drawn from the chosen component.
func (model *MixtureDensity) Sample(x []float64, count int, src rand.Source) ([]float64, error) {
	if len(x) != model.Params.InputDim() {
		return nil, &ShapeMismatchError{What: "sample input length", Want: model.Params.InputDim(), Got: len(x)}
	}

	out, err := model.Forward(mat.NewDense(1, len(x), x))
	if err != nil {
		return nil, err
	}

	return SampleMixture(
		mat.Row(nil, 0, out.Weights),
		mat.Row(nil, 0, out.Means),
		mat.Row(nil, 0, out.StdDevs),
		count, src,
	)
}

//SampleMixture draws count independent values from a univariate Gaussian
//mixture given by parallel slices of weights, means and standard deviations.
func SampleMixture(weights, means, stdDevs []float64, count int, src rand.Source) ([]float64, error) {
	if len(means) != len(weights) {
		return nil, &ShapeMismatchError{What: "means length", Want: len(weights), Got: len(means)}
	}
	if len(stdDevs) != len(weights) {
		return nil, &ShapeMismatchError{What: "standard deviations length", Want: len(weights), Got: len(stdDevs)}
	}

	categorical := distuv.NewCategorical(weights, src)

	samples := make([]float64, count)
	for ind := range samples {
		q := int(categorical.Rand())
		normal := distuv.Normal{Mu: means[q], Sigma: stdDevs[q], Src: src}
		samples[ind] = normal.Rand()
	}

	return samples, nil
}
