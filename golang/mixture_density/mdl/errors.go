package mdl

import "fmt"

//ShapeMismatchError reports inconsistent dimensions between the arrays of one batch.
type ShapeMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %s: want %d, got %d", e.What, e.Want, e.Got)
}

//DegenerateComponentError reports a mixture component whose standard deviation
//collapsed towards zero, or a loss value that is no longer finite. Training
//steps fail with this error instead of propagating NaN into later epochs.
type DegenerateComponentError struct {
	Row       int
	Component int
	Sigma     float64
	Loss      float64
}

func (e *DegenerateComponentError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("degenerate mixture component %d at row %d: sigma = %g", e.Component, e.Row, e.Sigma)
	}
	return fmt.Sprintf("non-finite negative log likelihood: %g", e.Loss)
}
