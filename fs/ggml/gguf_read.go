// gguf_read.go - Dekodierung von GGUF-Artefakten
//
// Unterstuetzt werden die Versionen 2 und 3 in Little-Endian, also alles,
// was WriteGGUF erzeugt. Anzahl und Laenge von Schluesseln, Strings und
// Tensoren sind begrenzt, damit ein beschaedigter Header keine riesigen
// Allokationen ausloest.
package ggml

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// valueType ist der Typ-Identifikator eines GGUF-Werts
type valueType uint32

const (
	typeUint8 valueType = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

const (
	maxKVCount     = 1 << 20
	maxTensorCount = 1 << 20
	maxTensorDims  = 8
	maxStringLen   = 1 << 28
)

// array haelt ein dekodiertes GGUF-Array. Ist es groesser als die beim
// Dekodieren erlaubte Groesse, bleibt values nil und nur size ist gesetzt.
type array[T any] struct {
	size   int
	values []T
}

func newArray[T any](size, maxSize int) *array[T] {
	a := array[T]{size: size}
	if maxSize < 0 || size <= maxSize {
		a.values = make([]T, size)
	}
	return &a
}

// gguf ist der dekodierte Inhalt: Metadaten und Tensor-Verzeichnis
type gguf struct {
	version      uint32
	kv           KV
	tensors      []*Tensor
	tensorOffset uint64
}

func (g *gguf) KV() KV {
	return g.kv
}

func (g *gguf) Tensors() Tensors {
	return Tensors{items: g.tensors, Offset: g.tensorOffset}
}

// decoder liest GGUF-Werte sequentiell
type decoder struct {
	r            io.Reader
	maxArraySize int
}

func read[T any](d *decoder) (T, error) {
	var v T
	err := binary.Read(d.r, binary.LittleEndian, &v)
	return v, err
}

func (d *decoder) length(what string, limit uint64) (int, error) {
	n, err := read[uint64](d)
	if err != nil {
		return 0, err
	}
	if n > limit {
		return 0, fmt.Errorf("%w: %s length %d exceeds %d", ErrUnsupportedFormat, what, n, limit)
	}
	return int(n), nil
}

func (d *decoder) string() (string, error) {
	n, err := d.length("string", maxStringLen)
	if err != nil {
		return "", err
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) skipString() error {
	n, err := d.length("string", maxStringLen)
	if err != nil {
		return err
	}
	_, err = io.CopyN(io.Discard, d.r, int64(n))
	return err
}

func (d *decoder) value(t valueType) (any, error) {
	switch t {
	case typeUint8:
		return read[uint8](d)
	case typeInt8:
		return read[int8](d)
	case typeUint16:
		return read[uint16](d)
	case typeInt16:
		return read[int16](d)
	case typeUint32:
		return read[uint32](d)
	case typeInt32:
		return read[int32](d)
	case typeUint64:
		return read[uint64](d)
	case typeInt64:
		return read[int64](d)
	case typeFloat32:
		return read[float32](d)
	case typeFloat64:
		return read[float64](d)
	case typeBool:
		return read[bool](d)
	case typeString:
		return d.string()
	case typeArray:
		return d.array()
	}
	return nil, fmt.Errorf("%w: invalid value type %d", ErrUnsupportedFormat, t)
}

func readArray[T any](d *decoder, n int) (any, error) {
	a := newArray[T](n, d.maxArraySize)
	for i := range n {
		v, err := read[T](d)
		if err != nil {
			return nil, err
		}
		if a.values != nil {
			a.values[i] = v
		}
	}
	return a, nil
}

func (d *decoder) array() (any, error) {
	t, err := read[valueType](d)
	if err != nil {
		return nil, err
	}

	n, err := d.length("array", maxStringLen)
	if err != nil {
		return nil, err
	}

	switch t {
	case typeUint8:
		return readArray[uint8](d, n)
	case typeInt8:
		return readArray[int8](d, n)
	case typeUint16:
		return readArray[uint16](d, n)
	case typeInt16:
		return readArray[int16](d, n)
	case typeUint32:
		return readArray[uint32](d, n)
	case typeInt32:
		return readArray[int32](d, n)
	case typeUint64:
		return readArray[uint64](d, n)
	case typeInt64:
		return readArray[int64](d, n)
	case typeFloat32:
		return readArray[float32](d, n)
	case typeFloat64:
		return readArray[float64](d, n)
	case typeBool:
		return readArray[bool](d, n)
	case typeString:
		a := newArray[string](n, d.maxArraySize)
		for i := range n {
			if a.values == nil {
				if err := d.skipString(); err != nil {
					return nil, err
				}
				continue
			}

			if a.values[i], err = d.string(); err != nil {
				return nil, err
			}
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: invalid array type %d", ErrUnsupportedFormat, t)
}

func (d *decoder) tensor() (*Tensor, error) {
	name, err := d.string()
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor name: %w", err)
	}

	dims, err := read[uint32](d)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor dimensions: %w", err)
	}
	if dims > maxTensorDims {
		return nil, fmt.Errorf("%w: tensor %s has %d dimensions", ErrUnsupportedFormat, name, dims)
	}

	shape := make([]uint64, dims)
	if err := binary.Read(d.r, binary.LittleEndian, shape); err != nil {
		return nil, fmt.Errorf("failed to read tensor shape: %w", err)
	}

	kind, err := read[uint32](d)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor kind: %w", err)
	}

	offset, err := read[uint64](d)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor offset: %w", err)
	}

	// Elementzahl und Bytegroesse muessen in uint64 passen
	count := uint64(1)
	for _, n := range shape {
		hi, lo := bits.Mul64(count, n)
		if hi != 0 {
			return nil, fmt.Errorf("%w: tensor %s shape %v overflows", ErrUnsupportedFormat, name, shape)
		}
		count = lo
	}
	if hi, _ := bits.Mul64(count, TensorType(kind).TypeSize()); hi != 0 {
		return nil, fmt.Errorf("%w: tensor %s shape %v overflows", ErrUnsupportedFormat, name, shape)
	}

	return &Tensor{Name: name, Kind: kind, Offset: offset, Shape: shape}, nil
}

// decodeGGUF liest alles nach der Magic: Version, Zaehler, KV, Tensor-Verzeichnis.
// Danach wird geprueft, dass alle Tensor-Daten innerhalb des Streams liegen.
func decodeGGUF(rs io.ReadSeeker, maxArraySize int) (*gguf, error) {
	d := &decoder{r: rs, maxArraySize: maxArraySize}

	version, err := read[uint32](d)
	if err != nil {
		return nil, err
	}
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("%w: gguf version %d", ErrUnsupportedFormat, version)
	}

	var counts struct{ NumTensor, NumKV uint64 }
	if err := binary.Read(rs, binary.LittleEndian, &counts); err != nil {
		return nil, err
	}
	if counts.NumTensor > maxTensorCount || counts.NumKV > maxKVCount {
		return nil, fmt.Errorf("%w: %d tensors, %d keys", ErrUnsupportedFormat, counts.NumTensor, counts.NumKV)
	}

	g := &gguf{version: version, kv: make(KV, counts.NumKV+1)}
	for range counts.NumKV {
		k, err := d.string()
		if err != nil {
			return nil, err
		}

		t, err := read[valueType](d)
		if err != nil {
			return nil, err
		}

		v, err := d.value(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		g.kv[k] = v
	}

	var parameters uint64
	for range counts.NumTensor {
		t, err := d.tensor()
		if err != nil {
			return nil, err
		}
		g.tensors = append(g.tensors, t)
		parameters += t.Elements()
	}
	g.kv["general.parameter_count"] = parameters

	alignment := int64(g.kv.Uint("general.alignment", 32))
	offset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	g.tensorOffset = uint64(offset + ggufPadding(offset, alignment))

	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	var avail uint64
	if uint64(end) > g.tensorOffset {
		avail = uint64(end) - g.tensorOffset
	}
	for _, t := range g.tensors {
		if t.Offset > avail || t.Size() > avail-t.Offset {
			return nil, fmt.Errorf("tensor %s: %w", t.Name, io.ErrUnexpectedEOF)
		}
	}

	return g, nil
}

// ggufPadding berechnet das Padding fuer Alignment
func ggufPadding(offset, align int64) int64 {
	return (align - offset%align) % align
}
