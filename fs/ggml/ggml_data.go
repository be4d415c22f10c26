// ggml_data.go - Float-Tensor Nutzdaten
// Enthält: Encoder für F32/F16 Nutzdaten und Decoder für F32/F16/BF16

package ggml

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// floatData schreibt float32 Werte im gewaehlten Tensor-Typ
type floatData struct {
	data []float32
	kind TensorType
}

// WriteTo kodiert die Werte little-endian
func (d floatData) WriteTo(w io.Writer) (int64, error) {
	var b []byte
	switch d.kind {
	case TensorTypeF32:
		b = make([]byte, 4*len(d.data))
		for i, f := range d.data {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
		}
	case TensorTypeF16:
		b = make([]byte, 2*len(d.data))
		for i, f := range d.data {
			binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(f).Bits())
		}
	case TensorTypeBF16:
		b = bfloat16.EncodeFloat32(d.data)
	default:
		return 0, fmt.Errorf("cannot encode tensor type %s", d.kind)
	}

	n, err := w.Write(b)
	return int64(n), err
}

// NewFloatTensor erstellt einen schreibbaren Tensor aus Zeilen-Major Daten.
// shape ist aeusserste Dimension zuerst und wird fuer GGUF umgedreht.
func NewFloatTensor(name string, shape []int, data []float32, kind TensorType) *Tensor {
	dims := make([]uint64, len(shape))
	for i, n := range shape {
		dims[len(shape)-1-i] = uint64(n)
	}

	return &Tensor{
		Name:     name,
		Kind:     uint32(kind),
		Shape:    dims,
		WriterTo: floatData{data: slices.Clone(data), kind: kind},
	}
}

// ReadFloats liest die Nutzdaten eines Tensors aus dem Artefakt als float32
func (g *GGML) ReadFloats(r io.ReaderAt, t *Tensor) ([]float32, error) {
	size := t.Size()
	if size == 0 && t.Elements() > 0 {
		return nil, fmt.Errorf("%w: tensor %s has type %s", ErrUnsupportedFormat, t.Name, t.Type())
	}

	b := make([]byte, size)
	if _, err := r.ReadAt(b, int64(g.Tensors().Offset+t.Offset)); err != nil {
		return nil, fmt.Errorf("reading tensor %s: %w", t.Name, err)
	}

	n := int(t.Elements())
	switch TensorType(t.Kind) {
	case TensorTypeF32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return out, nil
	case TensorTypeF16:
		out := make([]float32, n)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
		return out, nil
	case TensorTypeBF16:
		return bfloat16.DecodeFloat32(b), nil
	default:
		return nil, fmt.Errorf("%w: tensor %s has type %s", ErrUnsupportedFormat, t.Name, t.Type())
	}
}
