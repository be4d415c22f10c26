// linear.go - Vollverbundene Schicht und Softmax
// Enthaelt: Linear (GEMM mit transponiertem Gewicht), Softmax

package cpu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear berechnet x [N, in] * w[out, in]^T + b[out]
func Linear(x, w, b *Tensor) (*Tensor, error) {
	if len(x.Shape) != 2 || len(w.Shape) != 2 || x.Shape[1] != w.Shape[1] {
		return nil, fmt.Errorf("%w: linear input %v, weight %v", ErrShape, x.Shape, w.Shape)
	}

	n, in, o := x.Shape[0], x.Shape[1], w.Shape[0]
	if b != nil && b.Elements() != o {
		return nil, fmt.Errorf("%w: linear bias %v for %d outputs", ErrShape, b.Shape, o)
	}

	out := New(n, o)
	if b != nil {
		for i := range n {
			copy(out.Data[i*o:(i+1)*o], b.Data)
		}
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: n, Cols: in, Stride: in, Data: x.Data},
		blas32.General{Rows: o, Cols: in, Stride: in, Data: w.Data},
		1,
		blas32.General{Rows: n, Cols: o, Stride: o, Data: out.Data},
	)

	return out, nil
}

// Softmax normalisiert entlang der letzten Achse zu einer Wahrscheinlichkeitsverteilung
func Softmax(x *Tensor) (*Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("%w: softmax on scalar", ErrShape)
	}

	out := New(x.Shape...)
	inner := x.Shape[len(x.Shape)-1]
	if inner == 0 {
		return out, nil
	}

	for off := 0; off < len(x.Data); off += inner {
		row := x.Data[off : off+inner]
		dst := out.Data[off : off+inner]

		// Maximum abziehen fuer numerische Stabilitaet
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}

		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - m))
			dst[i] = float32(e)
			sum += e
		}

		for i := range dst {
			dst[i] = float32(float64(dst[i]) / sum)
		}
	}
	return out, nil
}
