// MODUL: graph
// ZWECK: Zwischendarstellung (IR) eines getracten Berechnungsgraphen
// INPUT: Knoten, Parameter, Ein-/Ausgaenge (vom Tracer oder aus einer GGUF-Datei)
// OUTPUT: Validierter, topologisch sortierter Graph
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (Parameter, Conv2DParams)
// HINWEISE: Werte werden ueber Namen referenziert; Knotenausgaben tragen den Knotennamen

package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ollama/mlexport/ml"
)

// ============================================================================
// Operatoren
// ============================================================================

// Op bezeichnet eine Graph-Operation
type Op string

const (
	OpConv2D        Op = "conv2d"
	OpBatchNorm     Op = "batch_norm"
	OpClamp         Op = "clamp"
	OpRELU          Op = "relu"
	OpAdd           Op = "add"
	OpGlobalAvgPool Op = "global_avg_pool"
	OpReshape       Op = "reshape"
	OpLinear        Op = "linear"
	OpSoftmax       Op = "softmax"
	OpScale         Op = "scale"
	OpDropout       Op = "dropout"
)

// Ops listet alle bekannten Operationen
var Ops = []Op{
	OpConv2D, OpBatchNorm, OpClamp, OpRELU, OpAdd, OpGlobalAvgPool,
	OpReshape, OpLinear, OpSoftmax, OpScale, OpDropout,
}

// Arity gibt die Anzahl der Werte-Eingaenge einer Operation zurueck
func (op Op) Arity() int {
	if op == OpAdd {
		return 2
	}
	return 1
}

// Known prueft ob die Operation bekannt ist
func (op Op) Known() bool {
	return slices.Contains(Ops, op)
}

// ============================================================================
// Fehler
// ============================================================================

var (
	// ErrInvalidGraph wird bei strukturell ungueltigen Graphen zurueckgegeben
	ErrInvalidGraph = errors.New("graph: invalid graph")

	// ErrMissingInput wird zurueckgegeben wenn ein Graph-Eingang nicht belegt wurde
	ErrMissingInput = errors.New("graph: missing input")
)

// ============================================================================
// Datenstrukturen
// ============================================================================

// Value ist ein benannter Ein- oder Ausgang des Graphen
type Value struct {
	Name  string
	Shape []int
}

// Attrs enthaelt operationsspezifische Attribute
type Attrs struct {
	// conv2d
	Conv ml.Conv2DParams

	// batch_norm
	Epsilon float32

	// clamp
	Min, Max float32

	// scale: y = x*Scale + Bias[c]
	Scale float32
	Bias  []float32

	// reshape, darf -1 enthalten
	Shape []int

	// dropout
	Rate float32
}

// Node ist eine Operation im Graphen. Die Ausgabe heisst wie der Knoten.
type Node struct {
	Name   string
	Op     Op
	Inputs []string
	Params []string
	Shape  []int
	Attrs  Attrs
}

// Graph ist ein eingefrorener Berechnungsgraph
type Graph struct {
	Inputs  []Value
	Outputs []Value
	Nodes   []*Node
	Params  map[string]*ml.Parameter
}

// New erstellt einen leeren Graphen
func New() *Graph {
	return &Graph{Params: make(map[string]*ml.Parameter)}
}

// Node sucht einen Knoten nach Namen
func (g *Graph) Node(name string) *Node {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Consumers gibt alle Knoten zurueck, die den Wert name lesen
func (g *Graph) Consumers(name string) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if slices.Contains(n.Inputs, name) {
			out = append(out, n)
		}
	}
	return out
}

// IsOutput prueft ob name ein Graph-Ausgang ist
func (g *Graph) IsOutput(name string) bool {
	return slices.ContainsFunc(g.Outputs, func(v Value) bool { return v.Name == name })
}

// OpCounts zaehlt die Knoten pro Operation
func (g *Graph) OpCounts() map[Op]int {
	counts := make(map[Op]int)
	for _, n := range g.Nodes {
		counts[n.Op]++
	}
	return counts
}

// ParamNames gibt die Parameternamen sortiert zurueck
func (g *Graph) ParamNames() []string {
	return slices.Sorted(maps.Keys(g.Params))
}

// ParameterCount summiert die Elemente aller Parameter
func (g *Graph) ParameterCount() uint64 {
	var n uint64
	for _, p := range g.Params {
		n += uint64(p.Elements())
	}
	return n
}

// Rename benennt einen Wert um und passt alle Referenzen an
func (g *Graph) Rename(from, to string) {
	if from == to {
		return
	}

	for i := range g.Inputs {
		if g.Inputs[i].Name == from {
			g.Inputs[i].Name = to
		}
	}
	for i := range g.Outputs {
		if g.Outputs[i].Name == from {
			g.Outputs[i].Name = to
		}
	}
	for _, n := range g.Nodes {
		if n.Name == from {
			n.Name = to
		}
		for i := range n.Inputs {
			if n.Inputs[i] == from {
				n.Inputs[i] = to
			}
		}
	}
}

// Clone erstellt eine strukturelle Kopie; Parameterdaten werden geteilt
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Inputs:  cloneValues(g.Inputs),
		Outputs: cloneValues(g.Outputs),
		Params:  maps.Clone(g.Params),
	}
	for _, n := range g.Nodes {
		cn := *n
		cn.Inputs = slices.Clone(n.Inputs)
		cn.Params = slices.Clone(n.Params)
		cn.Shape = slices.Clone(n.Shape)
		cn.Attrs.Bias = slices.Clone(n.Attrs.Bias)
		cn.Attrs.Shape = slices.Clone(n.Attrs.Shape)
		c.Nodes = append(c.Nodes, &cn)
	}
	return c
}

func cloneValues(vs []Value) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Value{Name: v.Name, Shape: slices.Clone(v.Shape)}
	}
	return out
}

// ============================================================================
// Validierung
// ============================================================================

// Validate prueft Topologie, Referenzen und Parameterformen
func (g *Graph) Validate() error {
	if len(g.Inputs) == 0 || len(g.Outputs) == 0 {
		return fmt.Errorf("%w: graph needs at least one input and one output", ErrInvalidGraph)
	}

	defined := make(map[string][]int)
	for _, in := range g.Inputs {
		if _, ok := defined[in.Name]; ok {
			return fmt.Errorf("%w: duplicate input %q", ErrInvalidGraph, in.Name)
		}
		defined[in.Name] = in.Shape
	}

	for _, n := range g.Nodes {
		if !n.Op.Known() {
			return fmt.Errorf("%w: node %q has unknown op %q", ErrInvalidGraph, n.Name, n.Op)
		}

		if len(n.Inputs) != n.Op.Arity() {
			return fmt.Errorf("%w: node %q (%s) expects %d inputs, got %d", ErrInvalidGraph, n.Name, n.Op, n.Op.Arity(), len(n.Inputs))
		}

		for _, in := range n.Inputs {
			if _, ok := defined[in]; !ok {
				return fmt.Errorf("%w: node %q reads undefined value %q", ErrInvalidGraph, n.Name, in)
			}
		}

		for _, name := range n.Params {
			p, ok := g.Params[name]
			if !ok {
				return fmt.Errorf("%w: node %q references missing param %q", ErrInvalidGraph, n.Name, name)
			}
			if p.Elements() != len(p.Data) {
				return fmt.Errorf("%w: param %q has %d values for shape %v", ErrInvalidGraph, name, len(p.Data), p.Shape)
			}
		}

		if _, ok := defined[n.Name]; ok {
			return fmt.Errorf("%w: duplicate value %q", ErrInvalidGraph, n.Name)
		}
		defined[n.Name] = n.Shape
	}

	for _, out := range g.Outputs {
		shape, ok := defined[out.Name]
		if !ok {
			return fmt.Errorf("%w: output %q is not produced by the graph", ErrInvalidGraph, out.Name)
		}
		if !slices.Equal(shape, out.Shape) {
			return fmt.Errorf("%w: output %q has shape %v, declared %v", ErrInvalidGraph, out.Name, shape, out.Shape)
		}
	}

	return nil
}
