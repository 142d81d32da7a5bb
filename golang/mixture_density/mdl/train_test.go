package mdl

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

//End-to-end scenario on the sine toy problem: after 200 full-batch epochs the
//training loss should be strictly lower than at the first epoch, and the
//predicted mixtures on held-out inputs should stay valid.
func TestTrainingReducesLoss(t *testing.T) {
	mmatrix := makeSineData(100, 17)
	heldOut := makeSineData(30, 99)
	heldOut.SetDescription("held out")

	model, err := NewMixtureDensity(MixtureDensityParams{
		Matrix:        mmatrix,
		KComponents:   5,
		HiddenSize:    15,
		Epochs:        200,
		LearningRate:  0.01,
		Seed:          42,
		PrintMessages: []MMatrix{heldOut},
	})
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	if got := len(model.Trace); got != 200 {
		t.Fatalf("expected 200 trace rows, got %d", got)
	}

	first := model.Trace[0].TrainLoss
	last := model.Trace[len(model.Trace)-1].TrainLoss
	if !(last < first) {
		t.Fatalf("training loss did not decrease: first %g, last %g", first, last)
	}

	for _, row := range model.Trace {
		if !finite(row.TrainLoss) {
			t.Fatalf("non-finite train loss at epoch %d", row.Epoch)
		}
		if len(row.TestLosses) != 1 || !finite(row.TestLosses[0]) {
			t.Fatalf("bad held-out loss at epoch %d: %v", row.Epoch, row.TestLosses)
		}
	}

	out, err := model.Forward(heldOut.Features)
	if err != nil {
		t.Fatalf("forward on held-out failed: %v", err)
	}
	h, k := out.Weights.Dims()
	for p := 0; p < h; p++ {
		rowSum := 0.0
		for q := 0; q < k; q++ {
			rowSum += out.Weights.At(p, q)
			if out.StdDevs.At(p, q) <= 0 {
				t.Fatalf("non-positive sigma on held-out row %d", p)
			}
		}
		if math.Abs(rowSum-1.0) > 1e-9 {
			t.Fatalf("held-out weights of row %d sum to %g", p, rowSum)
		}
	}
}

//The loss returned by a train step is the pre-update loss, so an evaluation
//right before the step must produce the same value.
func TestTrainStepReturnsPreUpdateLoss(t *testing.T) {
	model := newTestModel(t, 3, 0)
	mmatrix := makeSineData(25, 3)

	for step := 0; step < 5; step++ {
		before, err := model.Evaluate(mmatrix.Features, mmatrix.Target)
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		fromStep, err := model.TrainStep(mmatrix.Features, mmatrix.Target)
		if err != nil {
			t.Fatalf("train step failed: %v", err)
		}
		if math.Abs(before-fromStep) > 1e-12 {
			t.Fatalf("step %d: evaluate %g, train step %g", step, before, fromStep)
		}
	}
}

func TestSplitTrainTest(t *testing.T) {
	mmatrix := makeSineData(100, 11)

	train, test := SplitTrainTest(mmatrix, 0.25, 7)

	if got := Height(train.Features); got != 75 {
		t.Fatalf("expected 75 train rows, got %d", got)
	}
	if got := Height(test.Features); got != 25 {
		t.Fatalf("expected 25 test rows, got %d", got)
	}

	seen := map[int]bool{}
	for _, id := range append(append([]int{}, train.RecordIds...), test.RecordIds...) {
		if seen[id] {
			t.Fatalf("record %d appears in both partitions", id)
		}
		seen[id] = true
	}
	if len(seen) != 100 {
		t.Fatalf("expected all 100 records in the union, got %d", len(seen))
	}

	trainAgain, _ := SplitTrainTest(mmatrix, 0.25, 7)
	for ind, id := range train.RecordIds {
		if trainAgain.RecordIds[ind] != id {
			t.Fatalf("partition is not deterministic for a fixed seed")
		}
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	model := newTestModel(t, 4, 20)

	path := filepath.Join(t.TempDir(), "model.mdn")
	model.Save(path)
	restored := LoadModel(path)

	features := mat.NewDense(3, 1, []float64{-0.7, 0.0, 0.7})
	original, err := model.Forward(features)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	reloaded, err := restored.Forward(features)
	if err != nil {
		t.Fatalf("forward on restored model failed: %v", err)
	}

	h, k := original.Weights.Dims()
	for p := 0; p < h; p++ {
		for q := 0; q < k; q++ {
			if math.Abs(original.Weights.At(p, q)-reloaded.Weights.At(p, q)) > 1e-12 ||
				math.Abs(original.Means.At(p, q)-reloaded.Means.At(p, q)) > 1e-12 ||
				math.Abs(original.StdDevs.At(p, q)-reloaded.StdDevs.At(p, q)) > 1e-12 {
				t.Fatalf("restored model predicts differently at (%d,%d)", p, q)
			}
		}
	}

	if len(restored.Trace) != len(model.Trace) {
		t.Fatalf("trace length changed after reload: %d vs %d", len(restored.Trace), len(model.Trace))
	}
}
