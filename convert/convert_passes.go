// convert_passes.go - Graph-Transformationen vor dem Schreiben
// Hauptfunktionen: checkOps, foldBatchNorm, insertInputScale, attachClassifier, roundParams
package convert

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/x448/float16"

	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/backend/cpu"
)

// checkOps - Lehnt Operationen ab, die im Artefakt nicht vorkommen duerfen
func checkOps(g *graph.Graph) error {
	for _, n := range g.Nodes {
		if n.Op == graph.OpDropout {
			return fmt.Errorf("%w: %s (node %q); put the model in eval mode before tracing", ErrUnsupportedOp, n.Op, n.Name)
		}
		if !n.Op.Known() {
			return fmt.Errorf("%w: %s (node %q)", ErrUnsupportedOp, n.Op, n.Name)
		}
	}
	return nil
}

// foldBatchNorm - Verschmilzt batch_norm mit der vorherigen conv2d.
// Gibt die Anzahl der entfernten Knoten zurueck.
func foldBatchNorm(g *graph.Graph) int {
	var folded int
	for i := 0; i < len(g.Nodes); i++ {
		bn := g.Nodes[i]
		if bn.Op != graph.OpBatchNorm || len(bn.Params) != 4 {
			continue
		}

		conv := g.Node(bn.Inputs[0])
		if conv == nil || conv.Op != graph.OpConv2D || g.IsOutput(conv.Name) {
			continue
		}
		if len(g.Consumers(conv.Name)) != 1 || !exclusive(g, conv) || !exclusive(g, bn) {
			continue
		}

		wName := conv.Params[0]
		w := g.Params[wName]
		scale, shift := cpu.FoldBatchNorm(
			g.Params[bn.Params[0]].Data,
			g.Params[bn.Params[1]].Data,
			g.Params[bn.Params[2]].Data,
			g.Params[bn.Params[3]].Data,
			bn.Attrs.Epsilon,
		)

		out := w.Shape[0]
		if len(scale) != out {
			slog.Warn("batch_norm channels do not match conv output", "conv", conv.Name, "batch_norm", bn.Name)
			continue
		}

		inner := len(w.Data) / out
		weight := make([]float32, len(w.Data))
		for o := range out {
			for k := range inner {
				weight[o*inner+k] = w.Data[o*inner+k] * scale[o]
			}
		}

		bias := shift
		biasName := biasParamName(g, conv)
		if len(conv.Params) > 1 {
			b := g.Params[conv.Params[1]]
			bias = make([]float32, out)
			for o := range out {
				bias[o] = b.Data[o]*scale[o] + shift[o]
			}
		}

		g.Params[wName] = ml.NewParameter(wName, weight, w.Shape...)
		g.Params[biasName] = ml.NewParameter(biasName, bias, out)
		conv.Params = []string{wName, biasName}

		for _, name := range bn.Params {
			delete(g.Params, name)
		}

		g.Nodes = slices.Delete(g.Nodes, i, i+1)
		g.Rename(bn.Name, conv.Name)
		i--
		folded++
	}
	return folded
}

// exclusive - Prueft ob die Parameter von n nur von n gelesen werden
func exclusive(g *graph.Graph, n *graph.Node) bool {
	for _, other := range g.Nodes {
		if other == n {
			continue
		}
		for _, name := range n.Params {
			if slices.Contains(other.Params, name) {
				return false
			}
		}
	}
	return true
}

// biasParamName - Name fuer den (neuen) Bias einer conv2d
func biasParamName(g *graph.Graph, conv *graph.Node) string {
	if len(conv.Params) > 1 {
		return conv.Params[1]
	}

	name := conv.Params[0] + ".bias"
	if base, ok := strings.CutSuffix(conv.Params[0], ".weight"); ok {
		name = base + ".bias"
	}
	if _, ok := g.Params[name]; ok {
		name = conv.Name + ".bias"
	}
	return name
}

// insertInputScale - Benennt den Graph-Eingang um und schaltet die
// Pixel-Skalierung davor
func insertInputScale(g *graph.Graph, it ImageType) error {
	if len(g.Inputs) != 1 {
		return fmt.Errorf("%w: graph has %d inputs, expected 1", ErrInvalidOptions, len(g.Inputs))
	}

	in := g.Inputs[0]
	if !slices.Equal(in.Shape, it.Shape) {
		return fmt.Errorf("%w: input %q has shape %v, image type declares %v", ErrInvalidOptions, in.Name, in.Shape, it.Shape)
	}
	if len(it.Bias) > 0 && len(it.Bias) != it.Channels() {
		return fmt.Errorf("%w: image bias has %d values for %d channels", ErrInvalidOptions, len(it.Bias), it.Channels())
	}
	scaled := it.Name + "_scaled"
	if g.Node(it.Name) != nil || g.Node(scaled) != nil {
		return fmt.Errorf("%w: input name %q collides with a node", ErrInvalidOptions, it.Name)
	}

	g.Rename(in.Name, it.Name)
	for _, n := range g.Nodes {
		for i := range n.Inputs {
			if n.Inputs[i] == it.Name {
				n.Inputs[i] = scaled
			}
		}
	}

	node := &graph.Node{
		Name:   scaled,
		Op:     graph.OpScale,
		Inputs: []string{it.Name},
		Shape:  slices.Clone(it.Shape),
		Attrs:  graph.Attrs{Scale: it.Scale, Bias: slices.Clone(it.Bias)},
	}
	g.Nodes = append([]*graph.Node{node}, g.Nodes...)
	return nil
}

// attachClassifier - Benennt den Ausgang nach dem Klassifikator-Kopf um und
// prueft die Anzahl der Labels
func attachClassifier(g *graph.Graph, c ClassifierConfig) error {
	if len(g.Outputs) != 1 {
		return fmt.Errorf("%w: classifier needs exactly one output, graph has %d", ErrInvalidOptions, len(g.Outputs))
	}

	out := g.Outputs[0]
	if len(out.Shape) != 2 {
		return fmt.Errorf("%w: classifier output %q has shape %v, expected [batch, classes]", ErrInvalidOptions, out.Name, out.Shape)
	}
	if classes := out.Shape[1]; classes != len(c.ClassLabels) {
		return fmt.Errorf("%w: %d labels for %d classes", ErrLabelMismatch, len(c.ClassLabels), classes)
	}

	g.Rename(out.Name, c.ProbabilitiesName())
	return nil
}

// producedBy - Prueft ob der Wert name von einem Knoten mit op erzeugt wird
func producedBy(g *graph.Graph, name string, op graph.Op) bool {
	n := g.Node(name)
	return n != nil && n.Op == op
}

// roundParams - Rundet alle Parameter auf float16, damit der Graph im
// Speicher dem geschriebenen Artefakt entspricht
func roundParams(g *graph.Graph) {
	for name, p := range g.Params {
		data := make([]float32, len(p.Data))
		for i, f := range p.Data {
			data[i] = float16.Fromfloat32(f).Float32()
		}
		g.Params[name] = ml.NewParameter(name, data, p.Shape...)
	}
}
