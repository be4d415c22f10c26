// safetensors.go - Lesen und Schreiben von .safetensors Dateien
// Format: 8 Byte Header-Laenge (LE), JSON-Header, Rohdaten
package weights

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/ollama/mlexport/ml"
)

// maxHeaderSize begrenzt den JSON-Header (100 MB)
const maxHeaderSize = 100 << 20

type safetensorsEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func loadSafetensors(path string) (StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadSafetensors(f)
}

// ReadSafetensors liest alle Gleitkomma-Tensoren aus r
func ReadSafetensors(r io.Reader) (StateDict, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read header size: %v", ErrUnsupportedFormat, err)
	}
	if n > maxHeaderSize {
		return nil, fmt.Errorf("%w: header of %d bytes", ErrUnsupportedFormat, n)
	}

	header := make([]byte, n)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrUnsupportedFormat, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode header: %v", ErrUnsupportedFormat, err)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	sd := make(StateDict, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}

		var e safetensorsEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, name, err)
		}

		begin, end := e.DataOffsets[0], e.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(body)) {
			return nil, fmt.Errorf("%w: %s: offsets %v outside data of %d bytes", ErrUnsupportedFormat, name, e.DataOffsets, len(body))
		}

		data, err := decodeFloats(e.DType, body[begin:end])
		if errors.Is(err, errIntegerDType) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		if len(data) != ml.Elements(e.Shape) {
			return nil, fmt.Errorf("%w: %s: %d values for shape %v", ErrUnsupportedFormat, name, len(data), e.Shape)
		}
		sd[name] = ml.NewParameter(name, data, e.Shape...)
	}

	return sd, nil
}

var errIntegerDType = errors.New("integer dtype")

func decodeFloats(dtype string, b []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(b)%4 != 0 {
			return nil, fmt.Errorf("%w: F32 data of %d bytes", ErrUnsupportedFormat, len(b))
		}
		out := make([]float32, len(b)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return out, nil
	case "F16":
		if len(b)%2 != 0 {
			return nil, fmt.Errorf("%w: F16 data of %d bytes", ErrUnsupportedFormat, len(b))
		}
		out := make([]float32, len(b)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
		return out, nil
	case "BF16":
		if len(b)%2 != 0 {
			return nil, fmt.Errorf("%w: BF16 data of %d bytes", ErrUnsupportedFormat, len(b))
		}
		return bfloat16.DecodeFloat32(b), nil
	case "F64":
		if len(b)%8 != 0 {
			return nil, fmt.Errorf("%w: F64 data of %d bytes", ErrUnsupportedFormat, len(b))
		}
		out := make([]float32, len(b)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:])))
		}
		return out, nil
	case "I64", "I32", "I16", "I8", "U8", "BOOL":
		return nil, errIntegerDType
	default:
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedStorage, dtype)
	}
}

// WriteSafetensors schreibt sd als F32 oder F16 (dtype "F32"/"F16") in w
func WriteSafetensors(w io.Writer, sd StateDict, dtype string) error {
	if dtype != "F32" && dtype != "F16" {
		return fmt.Errorf("%w: cannot write dtype %q", ErrUnsupportedStorage, dtype)
	}

	names := sd.Names()
	header := make(map[string]safetensorsEntry, len(names))
	var body bytes.Buffer
	for _, name := range names {
		p := sd[name]
		begin := int64(body.Len())
		for _, v := range p.Data {
			if dtype == "F16" {
				binary.Write(&body, binary.LittleEndian, float16.Fromfloat32(v).Bits())
			} else {
				binary.Write(&body, binary.LittleEndian, math.Float32bits(v))
			}
		}
		header[name] = safetensorsEntry{DType: dtype, Shape: slices.Clone(p.Shape), DataOffsets: [2]int64{begin, int64(body.Len())}}
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// Header auf 8 Byte ausrichten
	if pad := len(bts) % 8; pad != 0 {
		bts = append(bts, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}
	if _, err := w.Write(bts); err != nil {
		return err
	}
	_, err = body.WriteTo(w)
	return err
}
