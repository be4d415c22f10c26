// convert_graph.go - Serialisierung des Graphen in graph.* KV-Eintraege
// Hauptfunktionen: encodeGraph, decodeGraph
package convert

import (
	"fmt"

	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
)

// encodeGraph - Schreibt Struktur und Attribute aller Knoten nach kv.
// Parameterdaten werden als Tensoren abgelegt, nicht im KV.
func encodeGraph(g *graph.Graph, kv KV) {
	kv["graph.inputs"] = valueNames(g.Inputs)
	for i, v := range g.Inputs {
		kv[fmt.Sprintf("graph.input.%d.shape", i)] = int32s(v.Shape)
	}

	kv["graph.outputs"] = valueNames(g.Outputs)
	for i, v := range g.Outputs {
		kv[fmt.Sprintf("graph.output.%d.shape", i)] = int32s(v.Shape)
	}

	kv["graph.node_count"] = uint32(len(g.Nodes))
	for i, n := range g.Nodes {
		p := fmt.Sprintf("graph.node.%d.", i)
		kv[p+"name"] = n.Name
		kv[p+"op"] = string(n.Op)
		kv[p+"inputs"] = append([]string(nil), n.Inputs...)
		kv[p+"shape"] = int32s(n.Shape)
		if len(n.Params) > 0 {
			kv[p+"params"] = append([]string(nil), n.Params...)
		}

		switch n.Op {
		case graph.OpConv2D:
			c := n.Attrs.Conv.Normalize()
			kv[p+"stride"] = int32s(c.Stride[:])
			kv[p+"padding"] = int32s(c.Padding[:])
			kv[p+"dilation"] = int32s(c.Dilation[:])
			kv[p+"groups"] = uint32(c.Groups)
		case graph.OpBatchNorm:
			kv[p+"epsilon"] = n.Attrs.Epsilon
		case graph.OpClamp:
			kv[p+"min"] = n.Attrs.Min
			kv[p+"max"] = n.Attrs.Max
		case graph.OpScale:
			kv[p+"scale"] = n.Attrs.Scale
			if len(n.Attrs.Bias) > 0 {
				kv[p+"bias"] = append([]float32(nil), n.Attrs.Bias...)
			}
		case graph.OpReshape:
			kv[p+"target_shape"] = int32s(n.Attrs.Shape)
		case graph.OpDropout:
			kv[p+"rate"] = n.Attrs.Rate
		}
	}
}

// decodeGraph - Baut den Graphen aus kv auf. Params bleibt leer und wird
// vom Aufrufer aus den Tensoren befuellt.
func decodeGraph(kv KV) (*graph.Graph, error) {
	g := graph.New()

	inputs := kv.Strings("graph.inputs")
	outputs := kv.Strings("graph.outputs")
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: missing graph inputs or outputs", ErrInvalidModel)
	}

	for i, name := range inputs {
		g.Inputs = append(g.Inputs, graph.Value{Name: name, Shape: ints(kv.Ints(fmt.Sprintf("graph.input.%d.shape", i)))})
	}
	for i, name := range outputs {
		g.Outputs = append(g.Outputs, graph.Value{Name: name, Shape: ints(kv.Ints(fmt.Sprintf("graph.output.%d.shape", i)))})
	}

	count, ok := keyValue(kv, "graph.node_count", uint32(0))
	if !ok {
		return nil, fmt.Errorf("%w: missing graph.node_count", ErrInvalidModel)
	}

	for i := range int(count) {
		p := fmt.Sprintf("graph.node.%d.", i)
		n := &graph.Node{
			Name:   kv.String(p + "name"),
			Op:     graph.Op(kv.String(p + "op")),
			Inputs: kv.Strings(p + "inputs"),
			Params: kv.Strings(p + "params"),
			Shape:  ints(kv.Ints(p + "shape")),
		}
		if n.Name == "" {
			return nil, fmt.Errorf("%w: node %d has no name", ErrInvalidModel, i)
		}

		switch n.Op {
		case graph.OpConv2D:
			stride, padding, dilation := kv.Ints(p+"stride"), kv.Ints(p+"padding"), kv.Ints(p+"dilation")
			if len(stride) != 2 || len(padding) != 2 || len(dilation) != 2 {
				return nil, fmt.Errorf("%w: node %q has malformed conv attributes", ErrInvalidModel, n.Name)
			}
			n.Attrs.Conv = ml.Conv2DParams{
				Stride:   [2]int{int(stride[0]), int(stride[1])},
				Padding:  [2]int{int(padding[0]), int(padding[1])},
				Dilation: [2]int{int(dilation[0]), int(dilation[1])},
				Groups:   int(kv.Uint(p+"groups", 1)),
			}
		case graph.OpBatchNorm:
			n.Attrs.Epsilon = kv.Float(p + "epsilon")
		case graph.OpClamp:
			n.Attrs.Min = kv.Float(p + "min")
			n.Attrs.Max = kv.Float(p + "max")
		case graph.OpScale:
			n.Attrs.Scale = kv.Float(p+"scale", 1)
			n.Attrs.Bias = kv.Floats(p + "bias")
		case graph.OpReshape:
			n.Attrs.Shape = ints(kv.Ints(p + "target_shape"))
		case graph.OpDropout:
			n.Attrs.Rate = kv.Float(p + "rate")
		}

		g.Nodes = append(g.Nodes, n)
	}

	return g, nil
}

func valueNames(vs []graph.Value) []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}

func int32s(s []int) []int32 {
	out := make([]int32, len(s))
	for i, v := range s {
		out[i] = int32(v)
	}
	return out
}

func ints(s []int32) []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}
