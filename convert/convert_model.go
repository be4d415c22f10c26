// convert_model.go - Konvertierung eines getracten Graphen in ein GGUF-Artefakt
// Hauptfunktionen: Convert, Model.Tensors, Model.WriteFile, ReadFile
package convert

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/ollama/mlexport/fs/ggml"
	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
)

var (
	// ErrUnsupportedOp - Der Graph enthaelt eine nicht exportierbare Operation
	ErrUnsupportedOp = errors.New("convert: unsupported operation")

	// ErrLabelMismatch - Anzahl der Labels passt nicht zur Klassen-Dimension
	ErrLabelMismatch = errors.New("convert: label count does not match output classes")

	// ErrInvalidOptions - Optionen passen nicht zum Graphen
	ErrInvalidOptions = errors.New("convert: invalid options")

	// ErrInvalidModel - Artefakt ist unvollstaendig oder inkonsistent
	ErrInvalidModel = errors.New("convert: invalid model")
)

// Model - Exportiertes Modell: GGUF Metadaten plus eingefrorener Graph
type Model struct {
	KV    KV
	Graph *graph.Graph

	// Version ist die GGUF-Version, aus der das Modell gelesen wurde (0 = nicht gelesen)
	Version uint32
}

// Convert - Wandelt g in ein exportierbares Modell um. g selbst bleibt unveraendert.
func Convert(g *graph.Graph, opts Options) (*Model, error) {
	if opts.Architecture == "" {
		return nil, fmt.Errorf("%w: architecture not set", ErrInvalidOptions)
	}
	if len(opts.Inputs) != 1 {
		return nil, fmt.Errorf("%w: expected one image input, got %d", ErrInvalidOptions, len(opts.Inputs))
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := checkOps(g); err != nil {
		return nil, err
	}

	g = g.Clone()
	before := len(g.Nodes)
	folded := foldBatchNorm(g)

	it := opts.Inputs[0]
	if it.ColorLayout == "" {
		it.ColorLayout = RGB
	}
	if err := insertInputScale(g, it); err != nil {
		return nil, err
	}

	if opts.Classifier != nil {
		if len(opts.Classifier.ClassLabels) == 0 {
			return nil, fmt.Errorf("%w: classifier without labels", ErrInvalidOptions)
		}
		if err := attachClassifier(g, *opts.Classifier); err != nil {
			return nil, err
		}
	}

	if opts.Precision == Float16 {
		roundParams(g)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("converted graph", "nodes_before", before, "nodes", len(g.Nodes), "folded_batch_norm", folded, "params", len(g.Params))

	kv := KV{
		"general.architecture": opts.Architecture,
		"general.name":         cmp.Or(opts.Name, opts.Architecture),
		"general.type":         "model",
		"general.file_type":    uint32(opts.Precision.FileType()),
		"input.name":           it.Name,
		"input.shape":          int32s(it.Shape),
		"input.scale":          it.Scale,
		"input.color_layout":   string(it.ColorLayout),
	}
	if len(it.Bias) > 0 {
		kv["input.bias"] = slices.Clone(it.Bias)
	}

	if c := opts.Classifier; c != nil {
		kv["general.type"] = "classifier"
		kv["classifier.labels"] = slices.Clone(c.ClassLabels)
		kv["classifier.predicted_feature_name"] = c.featureName()
		kv["classifier.probabilities_name"] = c.ProbabilitiesName()
		kv["classifier.normalized"] = producedBy(g, c.ProbabilitiesName(), graph.OpSoftmax)
	}

	for k, v := range opts.Hyperparameters {
		kv[opts.Architecture+"."+k] = v
	}

	encodeGraph(g, kv)
	return &Model{KV: kv, Graph: g}, nil
}

// Tensors - Parameter als GGUF-Tensoren in der Genauigkeit des Modells
func (m *Model) Tensors() []*ggml.Tensor {
	kind := m.KV.Precision().FileType().ToTensorType()

	names := m.Graph.ParamNames()
	ts := make([]*ggml.Tensor, 0, len(names))
	for _, name := range names {
		p := m.Graph.Params[name]
		ts = append(ts, ggml.NewFloatTensor(name, p.Shape, p.Data, kind))
	}
	return ts
}

// WriteFile - Schreibt das Modell als GGUF nach f
func (m *Model) WriteFile(f *os.File) error {
	return ggml.WriteGGUF(f, m.KV, m.Tensors())
}

// ReadFile - Liest ein GGUF-Artefakt und baut Graph und Parameter wieder auf
func ReadFile(f *os.File) (*Model, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	gg, err := ggml.Decode(f, -1)
	if err != nil {
		return nil, err
	}

	kv := make(KV, gg.KV().Len())
	for k := range gg.KV().Keys() {
		kv[k] = gg.KV().Plain(k)
	}

	g, err := decodeGraph(kv)
	if err != nil {
		return nil, err
	}

	for _, t := range gg.Tensors().Items() {
		data, err := gg.ReadFloats(f, t)
		if err != nil {
			return nil, err
		}
		g.Params[t.Name] = ml.NewParameter(t.Name, data, t.Dims()...)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	slog.Debug("read artifact", "version", gg.Version(), "params", gg.KV().ParameterCount(), "tensors", len(gg.Tensors().Items()))
	return &Model{KV: kv, Graph: g, Version: gg.Version()}, nil
}
