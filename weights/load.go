// load.go - Einlesen von Checkpoints in ein StateDict
package weights

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Load liest einen Checkpoint anhand der Dateiendung
//   - .pth, .pt, .bin: PyTorch (pickle, zip oder legacy)
//   - .safetensors: F32, F16, BF16, F64
func Load(path string) (StateDict, error) {
	var sd StateDict
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pth", ".pt", ".bin":
		sd, err = loadTorch(path)
	case ".safetensors":
		sd, err = loadSafetensors(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}

	slog.Debug("loaded state dict", "path", path, "tensors", len(sd))
	return sd, nil
}

// gather kopiert einen strided Ausschnitt in ein zusammenhaengendes Slice
func gather(data []float32, offset int, shape, stride []int) ([]float32, error) {
	n := 1
	last := offset
	for i, d := range shape {
		n *= d
		if d > 0 {
			last += (d - 1) * stride[i]
		}
	}
	if n == 0 {
		return []float32{}, nil
	}
	if offset < 0 || last >= len(data) {
		return nil, fmt.Errorf("tensor view [%d, %d] exceeds storage of %d elements", offset, last, len(data))
	}

	out := make([]float32, n)
	idx := make([]int, len(shape))
	for i := range out {
		pos := offset
		for j, k := range idx {
			pos += k * stride[j]
		}
		out[i] = data[pos]

		for j := len(idx) - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < shape[j] {
				break
			}
			idx[j] = 0
		}
	}
	return out, nil
}
