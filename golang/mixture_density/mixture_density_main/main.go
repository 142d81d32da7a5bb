package main

import (
	"encoding/json"
	"flag"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"log"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/tarstars/mixture_density/golang/mixture_density/mdl"
)

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	mdl.HandleError(err)
	defer func() { mdl.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	mdl.HandleError(decoder.Decode(out))
}

type TestConfig struct {
	Description         string `json:"description"`
	FileNameTestInputs  string `json:"filename_test_inputs"`
	FileNameTestTargets string `json:"filename_test_targets"`
}

type TrainConfig struct {
	FileNameTrainInputs  string       `json:"filename_train_inputs"`
	FileNameTrainTargets string       `json:"filename_train_targets"`
	Tests                []TestConfig `json:"tests"`
	FileNameModel        string       `json:"filename_model"`
	KComponents          int          `json:"k_components"`
	HiddenSize           int          `json:"hidden_size"`
	Epochs               int          `json:"epochs"`
	LearningRate         float64      `json:"learning_rate"`
	SigmaFloor           float64      `json:"sigma_floor"`
	Seed                 uint64       `json:"seed"`
}

func train(srcConfig string) {
	var trainConfig TrainConfig
	decodeConfig(srcConfig, &trainConfig)

	log.Println("load train")
	mmatrixTrain := mdl.ReadMMatrix(
		trainConfig.FileNameTrainInputs,
		trainConfig.FileNameTrainTargets,
	)

	var mmatrixTests []mdl.MMatrix
	for _, testConfig := range trainConfig.Tests {
		log.Println("load test")
		mmatrix := mdl.ReadMMatrix(
			testConfig.FileNameTestInputs,
			testConfig.FileNameTestTargets,
		)
		mmatrix.SetDescription(testConfig.Description)
		mmatrixTests = append(mmatrixTests, mmatrix)
	}

	model, err := mdl.NewMixtureDensity(mdl.MixtureDensityParams{
		Matrix:        mmatrixTrain,
		KComponents:   trainConfig.KComponents,
		HiddenSize:    trainConfig.HiddenSize,
		Epochs:        trainConfig.Epochs,
		LearningRate:  trainConfig.LearningRate,
		SigmaFloor:    trainConfig.SigmaFloor,
		Seed:          trainConfig.Seed,
		PrintMessages: mmatrixTests,
	})
	mdl.HandleError(err)

	model.Save(trainConfig.FileNameModel)
}

type PredictConfig struct {
	FileNameInputs  string `json:"filename_inputs"`
	FileNameModel   string `json:"filename_model"`
	FileNameWeights string `json:"filename_weights"`
	FileNameMeans   string `json:"filename_means"`
	FileNameStdDevs string `json:"filename_stddevs"`
}

func predict(srcConfig string) {
	var predictConfig PredictConfig
	decodeConfig(srcConfig, &predictConfig)

	features := mdl.ReadNpy(predictConfig.FileNameInputs)

	model := mdl.LoadModel(predictConfig.FileNameModel)

	out, err := model.Forward(features)
	mdl.HandleError(err)

	mdl.WriteNpy(predictConfig.FileNameWeights, out.Weights)
	mdl.WriteNpy(predictConfig.FileNameMeans, out.Means)
	mdl.WriteNpy(predictConfig.FileNameStdDevs, out.StdDevs)
}

type SampleConfig struct {
	FileNameInputs  string `json:"filename_inputs"`
	FileNameModel   string `json:"filename_model"`
	RowIndex        int    `json:"row_index"`
	Count           int    `json:"count"`
	Seed            uint64 `json:"seed"`
	FileNameSamples string `json:"filename_samples"`
}

func sample(srcConfig string) {
	var sampleConfig SampleConfig
	decodeConfig(srcConfig, &sampleConfig)

	features := mdl.ReadNpy(sampleConfig.FileNameInputs)

	model := mdl.LoadModel(sampleConfig.FileNameModel)

	x := mat.Row(nil, sampleConfig.RowIndex, features)
	samples, err := model.Sample(x, sampleConfig.Count, rand.NewSource(sampleConfig.Seed))
	mdl.HandleError(err)

	mdl.WriteNpy(sampleConfig.FileNameSamples, mat.NewDense(len(samples), 1, samples))
}

type GraphConfig struct {
	FileNameModel  string `json:"filename_model"`
	FigureType     string `json:"figure_type"`
	FileNameFigure string `json:"filename_figure"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	model := mdl.LoadModel(graphConfig.FileNameModel)
	model.RenderNetwork(graphConfig.FileNameFigure, graphConfig.FigureType)
}

type ModelLearningCurvesConfig struct {
	PathToModel            string `json:"path_to_model"`
	FilenameLearningCurves string `json:"filename_learning_curves"`
}

func getLearningCurves(srcConfig string) {
	var modelLearningCurves ModelLearningCurvesConfig
	decodeConfig(srcConfig, &modelLearningCurves)

	model := mdl.LoadModel(modelLearningCurves.PathToModel)
	model.DumpLearningCurves(modelLearningCurves.FilenameLearningCurves)
}

func main() {
	runMode := flag.String("mode", "train", "you can select either 'train', 'predict', 'sample', 'graph' or 'get_learning_curves' modes")
	config := flag.String("config", "mixture_config.json", "a config file for the run of the program")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")

	flag.Parse()

	map[string]func(string){
		"train":               train,
		"predict":             predict,
		"sample":              sample,
		"graph":               graph,
		"get_learning_curves": getLearningCurves,
	}[*runMode](*config)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		mdl.HandleError(err)
		defer func() { mdl.HandleError(f.Close()) }()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
