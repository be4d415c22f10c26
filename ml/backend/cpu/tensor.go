// tensor.go - Dichter float32-Tensor fuer die CPU-Kernel
// Enthaelt: Tensor, New, FromFloats, Reshape, Fehlerdefinitionen

package cpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ollama/mlexport/ml"
)

// ErrShape wird bei inkompatiblen Tensor-Formen zurueckgegeben
var ErrShape = errors.New("shape mismatch")

// Tensor ist ein zusammenhaengender row-major float32-Tensor
type Tensor struct {
	Shape []int
	Data  []float32
}

// New alloziert einen mit Nullen gefuellten Tensor
func New(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, ml.Elements(shape))}
}

// FromFloats uebernimmt data ohne Kopie, sofern die Elementanzahl passt
func FromFloats(data []float32, shape ...int) (*Tensor, error) {
	if n := ml.Elements(shape); n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v (%d elements)", ErrShape, len(data), shape, n)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// FromParameter sieht einen Parameter als Tensor an
func FromParameter(p *ml.Parameter) (*Tensor, error) {
	if p == nil {
		return nil, nil
	}
	t, err := FromFloats(p.Data, p.Shape...)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	return t, nil
}

// Elements gibt die Anzahl der Elemente zurueck
func (t *Tensor) Elements() int {
	return ml.Elements(t.Shape)
}

// Dim gibt die Groesse der Dimension n zurueck
func (t *Tensor) Dim(n int) int {
	if n < 0 || n >= len(t.Shape) {
		return 1
	}
	return t.Shape[n]
}

// Clone erstellt eine tiefe Kopie
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Reshape gibt eine neue Sicht mit anderer Form zurueck. Eine Dimension darf -1 sein.
func Reshape(x *Tensor, shape ...int) (*Tensor, error) {
	shape = slices.Clone(shape)
	infer, known := -1, 1
	for i, d := range shape {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d <= 0:
			return nil, fmt.Errorf("%w: invalid reshape target %v", ErrShape, shape)
		default:
			known *= d
		}
	}

	n := x.Elements()
	if infer >= 0 {
		if known == 0 || n%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShape, x.Shape, shape)
		}
		shape[infer] = n / known
	}

	if ml.Elements(shape) != n {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShape, x.Shape, shape)
	}

	return &Tensor{Shape: shape, Data: x.Data}, nil
}

// nchw prueft auf einen 4D-Tensor und gibt seine Dimensionen zurueck
func nchw(op string, x *Tensor) (n, c, h, w int, err error) {
	if len(x.Shape) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("%w: %s expects NCHW input, got %v", ErrShape, op, x.Shape)
	}
	return x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3], nil
}
