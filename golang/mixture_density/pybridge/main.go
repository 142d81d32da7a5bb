// SPDX-License-Identifier: Apache-2.0

package main

/*
#cgo CFLAGS: -I.
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"io"
	"log"
	"sync"
	"unsafe"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	mdl "github.com/tarstars/mixture_density/golang/mixture_density/mdl"
)

var (
	handleMu   sync.Mutex
	nextHandle uint64 = 1
	models            = make(map[uint64]*mdl.MixtureDensity)

	monitorMu       sync.Mutex
	pendingMonitors []mdl.MMatrix

	lastErrorMu sync.Mutex
	lastError   string

	logSilenceOnce sync.Once
)

func setLastError(err error) {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	if err != nil {
		lastError = err.Error()
	} else {
		lastError = ""
	}
}

func getLastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	return lastError
}

func storeModel(m *mdl.MixtureDensity) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	handle := nextHandle
	models[handle] = m
	nextHandle++
	return handle
}

func fetchModel(handle uint64) (*mdl.MixtureDensity, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	model, ok := models[handle]
	if !ok {
		return nil, errors.New("invalid model handle")
	}
	return model, nil
}

//export FreeModel
func FreeModel(handle C.ulonglong) {
	handleMu.Lock()
	defer handleMu.Unlock()
	delete(models, uint64(handle))
}

func copyFloatSlice(ptr *C.double, length int) ([]float64, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	src := unsafe.Slice((*float64)(unsafe.Pointer(ptr)), length)
	dst := make([]float64, length)
	copy(dst, src)
	return dst, nil
}

func sliceFromPtr(ptr *C.double, length int) ([]float64, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(ptr)), length), nil
}

func buildDense(ptr *C.double, rows, cols C.int) (*mat.Dense, error) {
	r := int(rows)
	c := int(cols)
	if r < 0 || c < 0 {
		return nil, errors.New("invalid matrix dimensions")
	}
	if r == 0 || c == 0 {
		return mat.NewDense(r, c, nil), nil
	}
	data, err := copyFloatSlice(ptr, r*c)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(r, c, data), nil
}

func makeRecordIDs(rows int) []int {
	ids := make([]int, rows)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

//export RegisterLearningCurveDataset
func RegisterLearningCurveDataset(
	featuresPtr *C.double,
	rows C.int,
	cols C.int,
	targetPtr *C.double,
	desc *C.char,
) C.int {
	setLastError(nil)

	if rows <= 0 {
		setLastError(errors.New("monitor rows must be positive"))
		return 1
	}

	features, err := buildDense(featuresPtr, rows, cols)
	if err != nil {
		setLastError(err)
		return 2
	}

	target, err := buildDense(targetPtr, rows, 1)
	if err != nil {
		setLastError(err)
		return 3
	}

	matrix := mdl.MMatrix{
		Features:  features,
		Target:    target,
		RecordIds: makeRecordIDs(int(rows)),
	}

	if desc != nil {
		description := C.GoString(desc)
		matrix.SetDescription(description)
	}

	monitorMu.Lock()
	defer monitorMu.Unlock()
	pendingMonitors = append(pendingMonitors, matrix)
	return 0
}

//export TrainModel
func TrainModel(
	featuresPtr *C.double,
	rows C.int,
	cols C.int,
	targetPtr *C.double,
	kComponents C.int,
	hiddenSize C.int,
	epochs C.int,
	learningRate C.double,
	sigmaFloor C.double,
	seed C.ulonglong,
) C.ulonglong {
	setLastError(nil)
	logSilenceOnce.Do(func() {
		log.SetOutput(io.Discard)
	})

	if rows <= 0 {
		setLastError(errors.New("rows must be positive"))
		return 0
	}

	features, err := buildDense(featuresPtr, rows, cols)
	if err != nil {
		setLastError(err)
		return 0
	}

	target, err := buildDense(targetPtr, rows, 1)
	if err != nil {
		setLastError(err)
		return 0
	}

	params := mdl.MixtureDensityParams{
		Matrix: mdl.MMatrix{
			Features:  features,
			Target:    target,
			RecordIds: makeRecordIDs(int(rows)),
		},
		KComponents:  int(kComponents),
		HiddenSize:   int(hiddenSize),
		Epochs:       int(epochs),
		LearningRate: float64(learningRate),
		SigmaFloor:   float64(sigmaFloor),
		Seed:         uint64(seed),
	}

	monitorMu.Lock()
	if len(pendingMonitors) > 0 {
		params.PrintMessages = append([]mdl.MMatrix(nil), pendingMonitors...)
		pendingMonitors = nil
	}
	monitorMu.Unlock()

	model, err := mdl.NewMixtureDensity(params)
	if err != nil {
		setLastError(err)
		return 0
	}
	handle := storeModel(model)
	return C.ulonglong(handle)
}

//export Predict
func Predict(
	handle C.ulonglong,
	featuresPtr *C.double,
	rows C.int,
	cols C.int,
	weightsPtr *C.double,
	meansPtr *C.double,
	stdDevsPtr *C.double,
) C.int {
	setLastError(nil)
	model, err := fetchModel(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}

	features, err := buildDense(featuresPtr, rows, cols)
	if err != nil {
		setLastError(err)
		return 2
	}

	out, err := model.Forward(features)
	if err != nil {
		setLastError(err)
		return 3
	}

	outLen := int(rows) * model.KComponents

	weightsOut, err := sliceFromPtr(weightsPtr, outLen)
	if err != nil {
		setLastError(err)
		return 4
	}
	meansOut, err := sliceFromPtr(meansPtr, outLen)
	if err != nil {
		setLastError(err)
		return 5
	}
	stdDevsOut, err := sliceFromPtr(stdDevsPtr, outLen)
	if err != nil {
		setLastError(err)
		return 6
	}

	copy(weightsOut, out.Weights.RawMatrix().Data)
	copy(meansOut, out.Means.RawMatrix().Data)
	copy(stdDevsOut, out.StdDevs.RawMatrix().Data)
	return 0
}

//export SampleModel
func SampleModel(
	handle C.ulonglong,
	xPtr *C.double,
	xLen C.int,
	count C.int,
	seed C.ulonglong,
	outputPtr *C.double,
) C.int {
	setLastError(nil)
	model, err := fetchModel(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}

	x, err := copyFloatSlice(xPtr, int(xLen))
	if err != nil {
		setLastError(err)
		return 2
	}

	samples, err := model.Sample(x, int(count), rand.NewSource(uint64(seed)))
	if err != nil {
		setLastError(err)
		return 3
	}

	outSlice, err := sliceFromPtr(outputPtr, int(count))
	if err != nil {
		setLastError(err)
		return 4
	}
	copy(outSlice, samples)
	return 0
}

//export SaveModel
func SaveModel(handle C.ulonglong, path *C.char) C.int {
	setLastError(nil)
	model, err := fetchModel(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}
	goPath := C.GoString(path)
	model.Save(goPath)
	return 0
}

//export LoadModel
func LoadModel(path *C.char) C.ulonglong {
	setLastError(nil)
	goPath := C.GoString(path)
	model := mdl.LoadModel(goPath)
	handle := storeModel(&model)
	return C.ulonglong(handle)
}

//export RenderNetwork
func RenderNetwork(handle C.ulonglong, path, figureType *C.char) C.int {
	setLastError(nil)
	model, err := fetchModel(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}
	goPath := C.GoString(path)
	goFigureType := C.GoString(figureType)
	if goPath == "" {
		goPath = "network.svg"
	}
	if goFigureType == "" {
		goFigureType = "svg"
	}
	model.RenderNetwork(goPath, goFigureType)
	return 0
}

//export DumpLearningCurves
func DumpLearningCurves(handle C.ulonglong, path *C.char) C.int {
	setLastError(nil)
	model, err := fetchModel(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}
	goPath := C.GoString(path)
	model.DumpLearningCurves(goPath)
	return 0
}

//export GetLastError
func GetLastError() *C.char {
	errStr := getLastError()
	if errStr == "" {
		return nil
	}
	return C.CString(errStr)
}

//export FreeCString
func FreeCString(str *C.char) {
	if str != nil {
		C.free(unsafe.Pointer(str))
	}
}

func main() {}
