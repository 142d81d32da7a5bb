package mdl

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
	"math"
)

//NetworkParameters holds the weights and biases of the mixture density network:
//two tanh hidden layers followed by three linear heads that parameterize the
//mixture weights, the means and the standard deviations.
type NetworkParameters struct {
	W1, B1         *mat.Dense
	W2, B2         *mat.Dense
	WPi, BPi       *mat.Dense
	WMu, BMu       *mat.Dense
	WSigma, BSigma *mat.Dense
}

//namedParam binds a parameter matrix to a stable name used by the optimizer state.
type namedParam struct {
	name  string
	value *mat.Dense
}

//NewNetworkParameters creates Xavier-initialized network parameters for
//an input of width inputDim, two hidden layers of width hiddenSize and
//three heads of width kComponents each.
func NewNetworkParameters(inputDim, hiddenSize, kComponents int, src rand.Source) *NetworkParameters {
	rnd := rand.New(src)

	return &NetworkParameters{
		W1:     xavierDense(inputDim, hiddenSize, rnd),
		B1:     mat.NewDense(1, hiddenSize, nil),
		W2:     xavierDense(hiddenSize, hiddenSize, rnd),
		B2:     mat.NewDense(1, hiddenSize, nil),
		WPi:    xavierDense(hiddenSize, kComponents, rnd),
		BPi:    mat.NewDense(1, kComponents, nil),
		WMu:    xavierDense(hiddenSize, kComponents, rnd),
		BMu:    mat.NewDense(1, kComponents, nil),
		WSigma: xavierDense(hiddenSize, kComponents, rnd),
		BSigma: mat.NewDense(1, kComponents, nil),
	}
}

//xavierDense fills a new dense matrix with the Xavier uniform distribution.
func xavierDense(rows, cols int, rnd *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6.0 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for ind := range data {
		data[ind] = (2.0*rnd.Float64() - 1.0) * limit
	}
	return mat.NewDense(rows, cols, data)
}

//InputDim returns the expected feature width.
func (np *NetworkParameters) InputDim() int {
	h, _ := np.W1.Dims()
	return h
}

//HiddenSize returns the width of the hidden layers.
func (np *NetworkParameters) HiddenSize() int {
	_, w := np.W1.Dims()
	return w
}

//KComponents returns the number of mixture components.
func (np *NetworkParameters) KComponents() int {
	_, w := np.WPi.Dims()
	return w
}

//namedParams enumerates the parameter matrices in a fixed order.
func (np *NetworkParameters) namedParams() []namedParam {
	return []namedParam{
		{"W1", np.W1}, {"B1", np.B1},
		{"W2", np.W2}, {"B2", np.B2},
		{"WPi", np.WPi}, {"BPi", np.BPi},
		{"WMu", np.WMu}, {"BMu", np.BMu},
		{"WSigma", np.WSigma}, {"BSigma", np.BSigma},
	}
}

//forwardCache keeps the activations of one forward pass for backpropagation.
type forwardCache struct {
	A1, A2 *mat.Dense
	Out    MixtureOutput
}

//affine computes x*w + b with the bias row broadcast over the batch.
func affine(x, w, b *mat.Dense) *mat.Dense {
	h, _ := x.Dims()
	_, cols := w.Dims()
	out := mat.NewDense(h, cols, nil)
	out.Mul(x, w)
	for p := 0; p < h; p++ {
		for q := 0; q < cols; q++ {
			out.Set(p, q, out.At(p, q)+b.At(0, q))
		}
	}
	return out
}

//tanhDense applies tanh elementwise.
func tanhDense(z *mat.Dense) *mat.Dense {
	h, w := z.Dims()
	out := mat.NewDense(h, w, nil)
	out.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
	return out
}

//forwardPass applies the network to a batch of features and produces the
//mixture parameters together with the cached hidden activations. The raw
//weight head goes through a max-shifted softmax, the raw deviation head
//through exp with sigmaFloor added to keep every component away from zero.
func (np *NetworkParameters) forwardPass(features *mat.Dense, sigmaFloor float64) (*forwardCache, error) {
	h, w := features.Dims()
	if w != np.InputDim() {
		return nil, &ShapeMismatchError{What: "feature columns", Want: np.InputDim(), Got: w}
	}

	a1 := tanhDense(affine(features, np.W1, np.B1))
	a2 := tanhDense(affine(a1, np.W2, np.B2))

	alphaRaw := affine(a2, np.WPi, np.BPi)
	means := affine(a2, np.WMu, np.BMu)
	sigmaRaw := affine(a2, np.WSigma, np.BSigma)

	k := np.KComponents()

	weights := mat.NewDense(h, k, nil)
	for p := 0; p < h; p++ {
		maxRaw := alphaRaw.At(p, 0)
		for q := 1; q < k; q++ {
			if alphaRaw.At(p, q) > maxRaw {
				maxRaw = alphaRaw.At(p, q)
			}
		}
		norm := 0.0
		for q := 0; q < k; q++ {
			e := math.Exp(alphaRaw.At(p, q) - maxRaw)
			weights.Set(p, q, e)
			norm += e
		}
		for q := 0; q < k; q++ {
			weights.Set(p, q, weights.At(p, q)/norm)
		}
	}

	stdDevs := mat.NewDense(h, k, nil)
	stdDevs.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) + sigmaFloor }, sigmaRaw)

	return &forwardCache{
		A1:  a1,
		A2:  a2,
		Out: MixtureOutput{Weights: weights, Means: means, StdDevs: stdDevs},
	}, nil
}

//parameterGradients mirrors the layout of NetworkParameters.
type parameterGradients struct {
	W1, B1         *mat.Dense
	W2, B2         *mat.Dense
	WPi, BPi       *mat.Dense
	WMu, BMu       *mat.Dense
	WSigma, BSigma *mat.Dense
}

//namedGrads enumerates the gradient matrices in the same order as namedParams.
func (pg *parameterGradients) namedGrads() []namedParam {
	return []namedParam{
		{"W1", pg.W1}, {"B1", pg.B1},
		{"W2", pg.W2}, {"B2", pg.B2},
		{"WPi", pg.WPi}, {"BPi", pg.BPi},
		{"WMu", pg.WMu}, {"BMu", pg.BMu},
		{"WSigma", pg.WSigma}, {"BSigma", pg.BSigma},
	}
}

//columnSums collapses a batch gradient into a bias gradient row.
func columnSums(m *mat.Dense) *mat.Dense {
	h, w := m.Dims()
	out := mat.NewDense(1, w, nil)
	for q := 0; q < w; q++ {
		s := 0.0
		for p := 0; p < h; p++ {
			s += m.At(p, q)
		}
		out.Set(0, q, s)
	}
	return out
}

//tanhBackward multiplies an incoming gradient by the tanh derivative taken
//from the cached activation.
func tanhBackward(incoming, activation *mat.Dense) *mat.Dense {
	h, w := incoming.Dims()
	out := mat.NewDense(h, w, nil)
	for p := 0; p < h; p++ {
		for q := 0; q < w; q++ {
			a := activation.At(p, q)
			out.Set(p, q, incoming.At(p, q)*(1.0-a*a))
		}
	}
	return out
}

//headSlice extracts one head plane from the (h, 3, k) head-gradient tensor.
func headSlice(headGrads *tensor.Dense, head, h, k int) *mat.Dense {
	out := mat.NewDense(h, k, nil)
	for p := 0; p < h; p++ {
		for q := 0; q < k; q++ {
			element, err := headGrads.At(p, head, q)
			HandleError(err)
			out.Set(p, q, element.(float64))
		}
	}
	return out
}

//backward propagates the per-example head gradients through the network and
//accumulates the gradients of every parameter matrix.
func (np *NetworkParameters) backward(features *mat.Dense, cache *forwardCache, headGrads *tensor.Dense) *parameterGradients {
	h, _ := features.Dims()
	k := np.KComponents()

	dAlpha := headSlice(headGrads, headPi, h, k)
	dMu := headSlice(headGrads, headMu, h, k)
	dSigma := headSlice(headGrads, headSigma, h, k)

	grads := &parameterGradients{}

	grads.WPi = mat.NewDense(np.HiddenSize(), k, nil)
	grads.WPi.Mul(cache.A2.T(), dAlpha)
	grads.BPi = columnSums(dAlpha)

	grads.WMu = mat.NewDense(np.HiddenSize(), k, nil)
	grads.WMu.Mul(cache.A2.T(), dMu)
	grads.BMu = columnSums(dMu)

	grads.WSigma = mat.NewDense(np.HiddenSize(), k, nil)
	grads.WSigma.Mul(cache.A2.T(), dSigma)
	grads.BSigma = columnSums(dSigma)

	dA2 := mat.NewDense(h, np.HiddenSize(), nil)
	dA2.Mul(dAlpha, np.WPi.T())

	part := mat.NewDense(h, np.HiddenSize(), nil)
	part.Mul(dMu, np.WMu.T())
	dA2.Add(dA2, part)
	part.Mul(dSigma, np.WSigma.T())
	dA2.Add(dA2, part)

	dZ2 := tanhBackward(dA2, cache.A2)
	grads.W2 = mat.NewDense(np.HiddenSize(), np.HiddenSize(), nil)
	grads.W2.Mul(cache.A1.T(), dZ2)
	grads.B2 = columnSums(dZ2)

	dA1 := mat.NewDense(h, np.HiddenSize(), nil)
	dA1.Mul(dZ2, np.W2.T())

	dZ1 := tanhBackward(dA1, cache.A1)
	grads.W1 = mat.NewDense(np.InputDim(), np.HiddenSize(), nil)
	grads.W1.Mul(features.T(), dZ1)
	grads.B1 = columnSums(dZ1)

	return grads
}
