// gguf_write.go - Schreiben von GGUF-Artefakten (Version 3)
//
// Aufbau: Header, sortierte KV-Paare, Tensor-Verzeichnis, ausgerichtete
// Tensor-Daten. Der Header wird gepuffert geschrieben, die Tensor-Daten
// danach parallel an ihre Offsets.
package ggml

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/mlexport/fs"
)

// encoder schreibt Little-Endian Werte und merkt sich den ersten Fehler
type encoder struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
	if e.err == nil {
		e.n += int64(binary.Size(v))
	}
}

func (e *encoder) string(s string) {
	e.write(uint64(len(s)))
	if e.err != nil {
		return
	}
	var n int
	n, e.err = e.w.WriteString(s)
	e.n += int64(n)
}

func writeArray[S ~[]E, E any](e *encoder, t valueType, s S) {
	e.write(typeArray)
	e.write(t)
	e.write(uint64(len(s)))
	e.write(s)
}

func (e *encoder) strings(s []string) {
	e.write(typeArray)
	e.write(typeString)
	e.write(uint64(len(s)))
	for _, v := range s {
		e.string(v)
	}
}

// value schreibt Typ-Identifikator und Wert
func (e *encoder) value(v any) error {
	switch v := v.(type) {
	case int32:
		e.write(typeInt32)
		e.write(v)
	case int64:
		e.write(typeInt64)
		e.write(v)
	case uint32:
		e.write(typeUint32)
		e.write(v)
	case FileType:
		e.write(typeUint32)
		e.write(uint32(v))
	case uint64:
		e.write(typeUint64)
		e.write(v)
	case float32:
		e.write(typeFloat32)
		e.write(v)
	case bool:
		e.write(typeBool)
		e.write(v)
	case string:
		e.write(typeString)
		e.string(v)
	case []int32:
		writeArray(e, typeInt32, v)
	case *array[int32]:
		writeArray(e, typeInt32, v.values)
	case []int64:
		writeArray(e, typeInt64, v)
	case []uint32:
		writeArray(e, typeUint32, v)
	case *array[uint32]:
		writeArray(e, typeUint32, v.values)
	case []float32:
		writeArray(e, typeFloat32, v)
	case *array[float32]:
		writeArray(e, typeFloat32, v.values)
	case []bool:
		writeArray(e, typeBool, v)
	case []string:
		e.strings(v)
	case *array[string]:
		e.strings(v.values)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return e.err
}

func (e *encoder) tensorInfo(t *Tensor) {
	slog.Debug(t.Name, "kind", TensorType(t.Kind), "shape", t.Shape, "offset", t.Offset)
	e.string(t.Name)
	e.write(uint32(len(t.Shape)))
	e.write(t.Shape)
	e.write(t.Kind)
	e.write(t.Offset)
}

// WriteGGUF schreibt ein GGUF-File mit KV-Paaren und Tensors. Schluessel
// ausserhalb der festen Namespaces erhalten das Architektur-Praefix.
func WriteGGUF(f *os.File, kv fs.Config, ts []*Tensor) error {
	arch := kv.String("general.architecture")
	if arch == "" {
		return errors.New("architecture not set")
	}

	base, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	e := &encoder{w: bufio.NewWriterSize(f, 64<<10)}
	e.write([]byte("GGUF"))
	e.write(uint32(3))
	e.write(uint64(len(ts)))
	e.write(uint64(kv.Len()))

	for _, k := range slices.Sorted(kv.Keys()) {
		v := kv.Value(k)
		if !strings.HasPrefix(k, arch+".") && !hasNamespace(k) {
			k = arch + "." + k
		}

		slog.Debug(k, "type", fmt.Sprintf("%T", v))
		e.string(k)
		if err := e.value(v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}

	// Reihenfolge: Block-Nummer, dann Name
	slices.SortStableFunc(ts, func(a, b *Tensor) int {
		return cmp.Or(cmp.Compare(a.block(), b.block()), cmp.Compare(a.Name, b.Name))
	})

	alignment := int64(kv.Uint("general.alignment", 32))

	var size int64
	for _, t := range ts {
		t.Offset = uint64(size)
		e.tensorInfo(t)
		size += int64(t.Size())
		size += ggufPadding(size, alignment)
	}

	// Padding bis zum Beginn der Daten
	pad := ggufPadding(e.n, alignment)
	e.write(make([]byte, pad))
	if e.err != nil {
		return e.err
	}
	if err := e.w.Flush(); err != nil {
		return err
	}
	start := base + e.n

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range ts {
		w := io.NewOffsetWriter(f, start+int64(t.Offset))
		g.Go(func() error {
			_, err := t.WriteTo(w)
			return err
		})
	}

	return g.Wait()
}
