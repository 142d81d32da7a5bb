package mdl

import (
	"encoding/json"
	"fmt"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"log"
	"math"
	"os"
)

//MixtureDensity is the model class.
type MixtureDensity struct {
	KComponents         int
	HiddenSize          int
	SigmaFloor          float64
	Params              *NetworkParameters
	Optimizer           *AdamOptimizer
	LearningCurveTitles []string
	Trace               []TraceRow
}

//TraceRow is one per-epoch record of the training trace: the train loss and
//the held-out losses in the order of the monitored datasets.
type TraceRow struct {
	Epoch      int
	TrainLoss  float64
	TestLosses []float64
}

//MixtureDensityParams collect arguments required to construct and fit a model.
type MixtureDensityParams struct {
	Matrix        MMatrix
	KComponents   int
	HiddenSize    int
	Epochs        int
	LearningRate  float64
	SigmaFloor    float64
	Seed          uint64
	PrintMessages []MMatrix
}

//NewMixtureDensity creates a new model and fits it to the train matrix with
//full-batch maximum likelihood. One epoch performs one train step over the
//whole batch and one evaluation per monitored dataset; both losses are
//appended to the trace. A degenerate step stops the training with an explicit
//error carrying the last finite loss, the partially trained model is returned
//alongside it.
func NewMixtureDensity(params MixtureDensityParams) (*MixtureDensity, error) {
	if params.KComponents <= 0 {
		return nil, fmt.Errorf("the number of mixture components should be positive, not %d", params.KComponents)
	}

	hiddenSize := params.HiddenSize
	if hiddenSize == 0 {
		hiddenSize = 15
	}
	learningRate := params.LearningRate
	if learningRate == 0 {
		learningRate = 1e-3
	}
	sigmaFloor := params.SigmaFloor
	if sigmaFloor == 0 {
		sigmaFloor = 1e-6
	}

	_, w := params.Matrix.validatedDimensions()

	model := &MixtureDensity{
		KComponents: params.KComponents,
		HiddenSize:  hiddenSize,
		SigmaFloor:  sigmaFloor,
		Params:      NewNetworkParameters(w, hiddenSize, params.KComponents, rand.NewSource(params.Seed)),
		Optimizer:   NewAdamOptimizer(learningRate),
	}

	for _, currentMessage := range params.PrintMessages {
		description := ""
		if currentMessage.Description != nil {
			description = *currentMessage.Description
		}
		model.LearningCurveTitles = append(model.LearningCurveTitles, description)
	}

	for epoch := 0; epoch < params.Epochs; epoch++ {
		trainLoss, err := model.TrainStep(params.Matrix.Features, params.Matrix.Target)
		if err != nil {
			return model, fmt.Errorf("epoch %d failed (last finite train NLL %g): %w", epoch+1, model.lastFiniteLoss(), err)
		}
		log.Printf("Epoch number %d, train NLL = %g\n", epoch+1, trainLoss)

		row := TraceRow{Epoch: epoch, TrainLoss: trainLoss}
		for _, currentMmatrix := range params.PrintMessages {
			learningCurveValue, err := currentMmatrix.Message(model)
			if err != nil {
				return model, fmt.Errorf("epoch %d failed (last finite train NLL %g): %w", epoch+1, model.lastFiniteLoss(), err)
			}
			row.TestLosses = append(row.TestLosses, learningCurveValue)
		}
		model.Trace = append(model.Trace, row)
	}

	return model, nil
}

//lastFiniteLoss returns the train loss of the last completed epoch.
func (model *MixtureDensity) lastFiniteLoss() float64 {
	if len(model.Trace) == 0 {
		return math.NaN()
	}
	return model.Trace[len(model.Trace)-1].TrainLoss
}

//Forward infers the mixture parameters for a batch of features. No side effects.
func (model *MixtureDensity) Forward(features *mat.Dense) (MixtureOutput, error) {
	cache, err := model.Params.forwardPass(features, model.SigmaFloor)
	if err != nil {
		return MixtureOutput{}, err
	}
	return cache.Out, nil
}

//NegativeLogLikelihood computes the training loss of a batch without touching
//the parameters.
func (model *MixtureDensity) NegativeLogLikelihood(features, target *mat.Dense) (float64, error) {
	cache, err := model.Params.forwardPass(features, model.SigmaFloor)
	if err != nil {
		return 0, err
	}
	return mixtureNLL(cache.Out, target)
}

//TrainStep computes the gradients of the negative log likelihood with respect
//to all network parameters and applies one optimizer update. The returned
//loss is the one observed before the update.
func (model *MixtureDensity) TrainStep(features, target *mat.Dense) (float64, error) {
	cache, err := model.Params.forwardPass(features, model.SigmaFloor)
	if err != nil {
		return 0, err
	}

	loss, headGrads, err := lossAndHeadGradients(cache, target, model.SigmaFloor)
	if err != nil {
		return 0, err
	}

	grads := model.Params.backward(features, cache, headGrads)
	model.Optimizer.Step(model.Params, grads)

	return loss, nil
}

//Evaluate computes the same loss as TrainStep without gradient computation or
//parameter mutation. It is used for held-out reporting.
func (model *MixtureDensity) Evaluate(features, target *mat.Dense) (float64, error) {
	return model.NegativeLogLikelihood(features, target)
}

//DenseDump is a plain representation of a dense matrix used in model files.
type DenseDump struct {
	Rows int
	Cols int
	Data []float64
}

func dumpDense(m *mat.Dense) DenseDump {
	h, w := m.Dims()
	data := make([]float64, h*w)
	copy(data, m.RawMatrix().Data)
	return DenseDump{Rows: h, Cols: w, Data: data}
}

func restoreDense(dump DenseDump) *mat.Dense {
	return mat.NewDense(dump.Rows, dump.Cols, dump.Data)
}

type modelDump struct {
	KComponents         int
	HiddenSize          int
	SigmaFloor          float64
	Weights             map[string]DenseDump
	Optimizer           *AdamOptimizer
	LearningCurveTitles []string
	Trace               []TraceRow
}

func (model *MixtureDensity) Save(filename string) {
	dest, err := os.Create(filename)
	if err != nil {
		log.Print("can't open file ", filename, " to write")
	}
	HandleError(err)
	defer func() { HandleError(dest.Close()) }()

	dump := modelDump{
		KComponents:         model.KComponents,
		HiddenSize:          model.HiddenSize,
		SigmaFloor:          model.SigmaFloor,
		Weights:             make(map[string]DenseDump),
		Optimizer:           model.Optimizer,
		LearningCurveTitles: model.LearningCurveTitles,
		Trace:               model.Trace,
	}
	for _, param := range model.Params.namedParams() {
		dump.Weights[param.name] = dumpDense(param.value)
	}

	modelByteRepr, err := json.MarshalIndent(dump, "", "  ")
	HandleError(err)

	_, err = dest.Write(modelByteRepr)
	HandleError(err)
}

func LoadModel(filename string) (model MixtureDensity) {
	source, err := os.Open(filename)
	HandleError(err)
	defer func() { HandleError(source.Close()) }()

	var dump modelDump
	decoder := json.NewDecoder(source)
	HandleError(decoder.Decode(&dump))

	model.KComponents = dump.KComponents
	model.HiddenSize = dump.HiddenSize
	model.SigmaFloor = dump.SigmaFloor
	model.Optimizer = dump.Optimizer
	if model.Optimizer == nil {
		model.Optimizer = NewAdamOptimizer(1e-3)
	}
	model.LearningCurveTitles = dump.LearningCurveTitles
	model.Trace = dump.Trace

	model.Params = &NetworkParameters{
		W1:     restoreDense(dump.Weights["W1"]),
		B1:     restoreDense(dump.Weights["B1"]),
		W2:     restoreDense(dump.Weights["W2"]),
		B2:     restoreDense(dump.Weights["B2"]),
		WPi:    restoreDense(dump.Weights["WPi"]),
		BPi:    restoreDense(dump.Weights["BPi"]),
		WMu:    restoreDense(dump.Weights["WMu"]),
		BMu:    restoreDense(dump.Weights["BMu"]),
		WSigma: restoreDense(dump.Weights["WSigma"]),
		BSigma: restoreDense(dump.Weights["BSigma"]),
	}

	return
}

type LearningCurvesDump struct {
	Titles []string
	Values [][]float64
}

func (model *MixtureDensity) DumpLearningCurves(filenameLearningCurves string) {
	destination, err := os.Create(filenameLearningCurves)
	HandleError(err)
	defer func() { HandleError(destination.Close()) }()

	var learningCurvesDump LearningCurvesDump

	learningCurvesDump.Titles = append([]string{"train"}, model.LearningCurveTitles...)
	learningCurvesDump.Values = make([][]float64, 0)

	for _, row := range model.Trace {
		values := append([]float64{row.TrainLoss}, row.TestLosses...)
		learningCurvesDump.Values = append(learningCurvesDump.Values, values)
	}

	bytesResult, err := json.MarshalIndent(learningCurvesDump, "", "  ")
	HandleError(err)
	_, err = destination.Write(bytesResult)
	HandleError(err)
}
