// dump.go - Dump-Funktionen fuer Tensor-Debugging
// Dieses Modul gibt Tensor-Inhalte verschachtelt wie numpy aus.
package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places to print.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithThreshold sets the threshold for printing the entire tensor. If the number of elements
// is less than or equal to this value, the entire tensor will be printed. Otherwise, only the
// beginning and end of each dimension will be printed.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Threshold = n
	}
}

// DumpWithEdgeItems sets the number of elements to print at the beginning and end of each dimension.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, Threshold, EdgeItems int
}

// dumpable ist der Teil von Tensor, den Dump braucht
type dumpable interface {
	Shape() []int
	Floats() []float32
}

// Dump converts a tensor to a human-readable string representation.
// Die aeusserste Dimension steht aussen (NCHW).
func Dump(t dumpable, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{Precision: 4, Threshold: 1000, EdgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	shape := t.Shape()
	if Elements(shape) <= opts.Threshold {
		opts.EdgeItems = math.MaxInt
	}

	return dump(t.Floats(), shape, opts.EdgeItems, func(f float32) string {
		return strconv.FormatFloat(float64(f), 'f', opts.Precision, 32)
	})
}

func dump(s []float32, shape []int, items int, fn func(float32) string) string {
	if len(shape) == 0 || len(s) < Elements(shape) {
		return "<invalid>"
	}

	var sb strings.Builder
	var f func([]int, int)
	f = func(dims []int, stride int) {
		prefix := strings.Repeat(" ", len(shape)-len(dims)+1)
		sb.WriteString("[")
		defer func() { sb.WriteString("]") }()
		for i := 0; i < dims[0]; i++ {
			if i >= items && i < dims[0]-items {
				sb.WriteString("..., ")
				// zum naechsten druckbaren Element springen
				skip := dims[0] - 2*items
				if len(dims) > 1 {
					stride += Elements(append(dims[1:len(dims):len(dims)], skip))
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
			} else if len(dims) > 1 {
				f(dims[1:], stride)
				stride += Elements(dims[1:])
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				text := fn(s[stride+i])
				if len(text) > 0 && text[0] != '-' {
					sb.WriteString(" ")
				}

				sb.WriteString(text)
				if i < dims[0]-1 {
					sb.WriteString(", ")
				}
			}
		}
	}
	f(shape, 0)

	return sb.String()
}
