package mdl

import (
	"github.com/sbinet/npyio"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"log"
	"os"
)

//MMatrix contains one partition of a mixture density data set
type MMatrix struct {
	Features    *mat.Dense
	Target      *mat.Dense
	RecordIds   []int
	Description *string
}

//Sets a description for an MMatrix object
func (mmatrix *MMatrix) SetDescription(description string) {
	mmatrix.Description = &description
}

//Message prints a message about the current state of the model on the current dataset
//and returns the held-out negative log likelihood.
func (mmatrix MMatrix) Message(model *MixtureDensity) (float64, error) {
	learningCurveValue, err := model.Evaluate(mmatrix.Features, mmatrix.Target)
	if err != nil {
		return learningCurveValue, err
	}

	description := ""
	if mmatrix.Description != nil {
		description = *(mmatrix.Description)
	}

	log.Print("NLL for ", description, " = ", learningCurveValue)

	return learningCurveValue, nil
}

//ReadMMatrix reads two components of a data set and unites them into one MMatrix object
func ReadMMatrix(fileNameFeatures, fileNameTarget string) (mm MMatrix) {
	log.Print("\ttry to load features <", string(fileNameFeatures), ">")
	mm.Features = ReadNpy(fileNameFeatures)
	log.Print("\ttry to load Target <", string(fileNameTarget), ">")
	mm.Target = ReadNpy(fileNameTarget)

	h := Height(mm.Features)
	mm.RecordIds = make([]int, h)
	for p := 0; p < h; p++ {
		mm.RecordIds[p] = p
	}

	return
}

//ReadNpy reads the content of npy file
func ReadNpy(fileName string) (denseMat *mat.Dense) {
	f, err := os.Open(fileName)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { HandleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	if err != nil {
		log.Fatal(err)
	}

	denseMat = &mat.Dense{}
	HandleError(r.Read(denseMat))
	return
}

//WriteNpy dumps a dense matrix into an npy file
func WriteNpy(fileName string, denseMat *mat.Dense) {
	dst, err := os.Create(fileName)
	HandleError(err)
	defer func() { HandleError(dst.Close()) }()

	HandleError(npyio.Write(dst, denseMat))
}

//SplitTrainTest partitions a data set into train and test subsets with a fixed
//pseudo-random permutation. The partition is decided once, both parts are
//independent copies of the source rows.
func SplitTrainTest(mm MMatrix, testFraction float64, seed uint64) (train, test MMatrix) {
	h, w := mm.validatedDimensions()

	testCount := int(float64(h) * testFraction)
	if testCount < 0 {
		testCount = 0
	}
	if testCount > h {
		testCount = h
	}
	trainCount := h - testCount

	perm := rand.New(rand.NewSource(seed)).Perm(h)

	train.Features = mat.NewDense(trainCount, w, nil)
	train.Target = mat.NewDense(trainCount, 1, nil)
	train.RecordIds = make([]int, 0, trainCount)

	test.Features = mat.NewDense(testCount, w, nil)
	test.Target = mat.NewDense(testCount, 1, nil)
	test.RecordIds = make([]int, 0, testCount)

	for pos, p := range perm {
		if pos < testCount {
			ind := len(test.RecordIds)
			for q := 0; q < w; q++ {
				test.Features.Set(ind, q, mm.Features.At(p, q))
			}
			test.Target.Set(ind, 0, mm.Target.At(p, 0))
			test.RecordIds = append(test.RecordIds, mm.RecordIds[p])
		} else {
			ind := len(train.RecordIds)
			for q := 0; q < w; q++ {
				train.Features.Set(ind, q, mm.Features.At(p, q))
			}
			train.Target.Set(ind, 0, mm.Target.At(p, 0))
			train.RecordIds = append(train.RecordIds, mm.RecordIds[p])
		}
	}

	return
}

//batchDims checks the consistency of dimensions of one (features, target) batch
//and returns the height (the number of objects) and the width (the number of
//features) of the batch.
func batchDims(features, target *mat.Dense) (h, w int, err error) {
	h, w = features.Dims()
	targetH, targetW := target.Dims()
	if targetH != h {
		return 0, 0, &ShapeMismatchError{What: "target rows", Want: h, Got: targetH}
	}
	if targetW != 1 {
		return 0, 0, &ShapeMismatchError{What: "target columns", Want: 1, Got: targetW}
	}
	return h, w, nil
}

//validatedDimensions checks the consistency of dimensions in arrays from the current dataset
//and returns the height (the number of objects) and the width (the number of features)
//of the current dataset.
func (mm MMatrix) validatedDimensions() (h, w int) {
	h, w, err := batchDims(mm.Features, mm.Target)
	if err != nil {
		log.Panic(err)
	}
	return h, w
}
