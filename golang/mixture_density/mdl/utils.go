package mdl

import (
	"gonum.org/v1/gonum/mat"
	"log"
)

//HandleError interrupts the execution if its argument is not nil.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}

//Height returns the number of rows of a dense matrix.
func Height(m *mat.Dense) int {
	h, _ := m.Dims()
	return h
}
