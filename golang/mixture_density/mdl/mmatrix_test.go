package mdl

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNpyRoundtrip(t *testing.T) {
	original := mat.NewDense(3, 2, []float64{
		1.0, -2.5,
		0.125, 7.0,
		-3.75, 0.0,
	})

	path := filepath.Join(t.TempDir(), "roundtrip.npy")
	WriteNpy(path, original)
	restored := ReadNpy(path)

	h, w := restored.Dims()
	if h != 3 || w != 2 {
		t.Fatalf("unexpected shape (%d,%d) after roundtrip", h, w)
	}
	for p := 0; p < h; p++ {
		for q := 0; q < w; q++ {
			if math.Abs(restored.At(p, q)-original.At(p, q)) > 0 {
				t.Fatalf("value at (%d,%d) changed: %g vs %g", p, q, restored.At(p, q), original.At(p, q))
			}
		}
	}
}

func TestBatchDims(t *testing.T) {
	features := mat.NewDense(4, 2, nil)
	target := mat.NewDense(4, 1, nil)

	h, w, err := batchDims(features, target)
	if err != nil {
		t.Fatalf("consistent batch rejected: %v", err)
	}
	if h != 4 || w != 2 {
		t.Fatalf("wrong dimensions (%d,%d)", h, w)
	}

	if _, _, err := batchDims(features, mat.NewDense(3, 1, nil)); err == nil {
		t.Fatalf("short target accepted")
	}
	if _, _, err := batchDims(features, mat.NewDense(4, 2, nil)); err == nil {
		t.Fatalf("wide target accepted")
	}
}
