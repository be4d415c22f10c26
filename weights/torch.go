// torch.go - PyTorch-Checkpoints (torch.save) ueber gopickle
package weights

import (
	"fmt"
	"log/slog"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/ollama/mlexport/ml"
)

func loadTorch(path string) (StateDict, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	sd := make(StateDict)
	add := func(k, v any) error {
		name, ok := k.(string)
		if !ok {
			return fmt.Errorf("state dict key %v is not a string", k)
		}

		t, ok := v.(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "name", name)
			return nil
		}

		p, err := torchParameter(name, t)
		if err != nil {
			return err
		}
		if p != nil {
			sd[name] = p
		}
		return nil
	}

	switch d := pt.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := add(k, d.MustGet(k)); err != nil {
				return nil, err
			}
		}
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := add(entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: checkpoint root is %T, expected a state dict", ErrUnsupportedFormat, pt)
	}

	return sd, nil
}

// torchParameter wandelt einen Tensor in float32 um. Ganzzahlige Puffer
// (num_batches_tracked) liefern nil.
func torchParameter(name string, t *pytorch.Tensor) (*ml.Parameter, error) {
	var data []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	case *pytorch.DoubleStorage:
		data = make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
	case *pytorch.LongStorage, *pytorch.IntStorage, *pytorch.ShortStorage, *pytorch.CharStorage, *pytorch.ByteStorage, *pytorch.BoolStorage:
		slog.Debug("skipping integer buffer", "name", name)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s uses %T", ErrUnsupportedStorage, name, t.Source)
	}

	values, err := gather(data, t.StorageOffset, t.Size, t.Stride)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ml.NewParameter(name, values, t.Size...), nil
}
