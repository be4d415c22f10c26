// MODUL: execute
// ZWECK: Ausfuehrung eines Graphen auf der CPU
// INPUT: Graph, Eingabewerte pro Eingangsname
// OUTPUT: Ausgabetensoren pro Ausgangsname
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml/backend/cpu
// HINWEISE: Zwischenwerte werden freigegeben sobald der letzte Leser gelaufen ist

package graph

import (
	"fmt"
	"slices"

	"github.com/ollama/mlexport/ml/backend/cpu"
)

// Execute fuehrt den Graphen aus. inputs bildet Eingangsnamen auf Tensoren ab.
func (g *Graph) Execute(inputs map[string]*cpu.Tensor) (map[string]*cpu.Tensor, error) {
	values := make(map[string]*cpu.Tensor, len(g.Nodes)+len(g.Inputs))
	for _, in := range g.Inputs {
		t, ok := inputs[in.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, in.Name)
		}
		if !slices.Equal(t.Shape, in.Shape) {
			return nil, fmt.Errorf("%w: input %q has shape %v, expected %v", cpu.ErrShape, in.Name, t.Shape, in.Shape)
		}
		values[in.Name] = t
	}

	lastUse := g.lastUse()
	for i, n := range g.Nodes {
		args := make([]*cpu.Tensor, len(n.Inputs))
		for j, name := range n.Inputs {
			t, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("%w: node %q reads undefined value %q", ErrInvalidGraph, n.Name, name)
			}
			args[j] = t
		}

		params := make([]*cpu.Tensor, len(n.Params))
		for j, name := range n.Params {
			p, ok := g.Params[name]
			if !ok {
				return nil, fmt.Errorf("%w: node %q references missing param %q", ErrInvalidGraph, n.Name, name)
			}
			t, err := cpu.FromParameter(p)
			if err != nil {
				return nil, err
			}
			params[j] = t
		}

		out, err := Apply(n.Op, n.Attrs, args, params)
		if err != nil {
			return nil, fmt.Errorf("node %q (%s): %w", n.Name, n.Op, err)
		}
		values[n.Name] = out

		for _, name := range n.Inputs {
			if lastUse[name] == i && !g.IsOutput(name) {
				delete(values, name)
			}
		}
	}

	outputs := make(map[string]*cpu.Tensor, len(g.Outputs))
	for _, out := range g.Outputs {
		t, ok := values[out.Name]
		if !ok {
			return nil, fmt.Errorf("%w: output %q was not computed", ErrInvalidGraph, out.Name)
		}
		outputs[out.Name] = t
	}
	return outputs, nil
}

// lastUse gibt pro Wertname den Index des letzten lesenden Knotens zurueck
func (g *Graph) lastUse() map[string]int {
	last := make(map[string]int)
	for i, n := range g.Nodes {
		for _, name := range n.Inputs {
			last[name] = i
		}
	}
	return last
}

// Apply fuehrt eine einzelne Operation aus. Der Tracer nutzt dieselbe Funktion,
// damit getracter Graph und eager Ausfuehrung identisch rechnen.
func Apply(op Op, attrs Attrs, args, params []*cpu.Tensor) (*cpu.Tensor, error) {
	param := func(i int) *cpu.Tensor {
		if i < len(params) {
			return params[i]
		}
		return nil
	}

	switch op {
	case OpConv2D:
		if param(0) == nil {
			return nil, fmt.Errorf("%w: conv2d without weight", ErrInvalidGraph)
		}
		return cpu.Conv2D(args[0], param(0), param(1), attrs.Conv)
	case OpBatchNorm:
		if len(params) != 4 {
			return nil, fmt.Errorf("%w: batch_norm needs 4 params, got %d", ErrInvalidGraph, len(params))
		}
		return cpu.BatchNorm(args[0], params[0], params[1], params[2], params[3], attrs.Epsilon)
	case OpClamp:
		return cpu.Clamp(args[0], attrs.Min, attrs.Max)
	case OpRELU:
		return cpu.RELU(args[0]), nil
	case OpAdd:
		return cpu.Add(args[0], args[1])
	case OpGlobalAvgPool:
		return cpu.GlobalAvgPool2D(args[0])
	case OpReshape:
		return cpu.Reshape(args[0], attrs.Shape...)
	case OpLinear:
		if param(0) == nil {
			return nil, fmt.Errorf("%w: linear without weight", ErrInvalidGraph)
		}
		return cpu.Linear(args[0], param(0), param(1))
	case OpSoftmax:
		return cpu.Softmax(args[0])
	case OpScale:
		return cpu.Scale(args[0], attrs.Scale, attrs.Bias)
	case OpDropout:
		// Im eingefrorenen Graphen ist Dropout die Identitaet
		return args[0], nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidGraph, op)
	}
}
