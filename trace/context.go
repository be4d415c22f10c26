// context.go - Aufzeichnender ml.Context
// Enthaelt: Context, Tensor und die Operationen, die eager rechnen und Knoten erfassen

package trace

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/backend/cpu"
)

// Context zeichnet jede Operation als Knoten auf
type Context struct {
	g       *graph.Graph
	counter map[graph.Op]int
	rng     *rand.Rand
}

// NewContext erstellt einen leeren Tracing-Kontext
func NewContext() *Context {
	return &Context{
		g:       graph.New(),
		counter: make(map[graph.Op]int),
		rng:     rand.New(rand.NewPCG(0, 0)),
	}
}

// Graph gibt den bisher aufgezeichneten Graphen zurueck
func (c *Context) Graph() *graph.Graph {
	return c.g
}

// Input registriert einen Graph-Eingang
func (c *Context) Input(name string, s []float32, shape ...int) ml.Tensor {
	t, err := cpu.FromFloats(s, shape...)
	if err != nil {
		panic(fmt.Errorf("input %q: %w", name, err))
	}

	c.g.Inputs = append(c.g.Inputs, graph.Value{Name: name, Shape: slices.Clone(shape)})
	return &Tensor{name: name, t: t, ctx: c}
}

// Forward markiert Tensoren als Graph-Ausgaenge
func (c *Context) Forward(ts ...ml.Tensor) ml.Context {
	for _, t := range ts {
		tt := c.own(t)
		c.g.Outputs = append(c.g.Outputs, graph.Value{Name: tt.name, Shape: slices.Clone(tt.t.Shape)})
	}
	return c
}

// own stellt sicher, dass t aus diesem Kontext stammt
func (c *Context) own(t ml.Tensor) *Tensor {
	tt, ok := t.(*Tensor)
	if !ok || tt.ctx != c {
		panic(fmt.Errorf("tensor %T does not belong to this trace", t))
	}
	return tt
}

// param registriert einen Parameter im Graphen
func (c *Context) param(p *ml.Parameter) string {
	if existing, ok := c.g.Params[p.Name]; ok && existing != p {
		panic(fmt.Errorf("parameter name %q used for two different tensors", p.Name))
	}
	c.g.Params[p.Name] = p
	return p.Name
}

// record berechnet eine Operation eager und haengt den Knoten an
func (c *Context) record(op graph.Op, attrs graph.Attrs, inputs []*Tensor, params []*ml.Parameter) *Tensor {
	args := make([]*cpu.Tensor, len(inputs))
	names := make([]string, len(inputs))
	for i, in := range inputs {
		args[i] = in.t
		names[i] = in.name
	}

	var pnames []string
	var ptensors []*cpu.Tensor
	for _, p := range params {
		if p == nil {
			continue
		}
		t, err := cpu.FromParameter(p)
		if err != nil {
			panic(err)
		}
		pnames = append(pnames, c.param(p))
		ptensors = append(ptensors, t)
	}

	var out *cpu.Tensor
	var err error
	if op == graph.OpDropout {
		out, err = cpu.Dropout(args[0], attrs.Rate, c.rng)
	} else {
		out, err = graph.Apply(op, attrs, args, ptensors)
	}
	if err != nil {
		panic(fmt.Errorf("%s: %w", op, err))
	}

	name := fmt.Sprintf("%s_%d", op, c.counter[op])
	c.counter[op]++

	c.g.Nodes = append(c.g.Nodes, &graph.Node{
		Name:   name,
		Op:     op,
		Inputs: names,
		Params: pnames,
		Shape:  slices.Clone(out.Shape),
		Attrs:  attrs,
	})

	return &Tensor{name: name, t: out, ctx: c}
}

// Tensor ist ein Wert im Trace: eager Daten plus Name im Graphen
type Tensor struct {
	name string
	t    *cpu.Tensor
	ctx  *Context
}

// Name gibt den Wertnamen im Graphen zurueck
func (t *Tensor) Name() string { return t.name }

// Dim gibt die Groesse der Dimension n zurueck
func (t *Tensor) Dim(n int) int { return t.t.Dim(n) }

// Shape gibt eine Kopie der Form zurueck
func (t *Tensor) Shape() []int { return slices.Clone(t.t.Shape) }

// Floats gibt die eager berechneten Werte zurueck
func (t *Tensor) Floats() []float32 { return t.t.Data }

func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	c := t.ctx
	return c.record(graph.OpAdd, graph.Attrs{}, []*Tensor{c.own(t), c.own(t2)}, nil)
}

func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	return t.ctx.record(graph.OpScale, graph.Attrs{Scale: float32(s)}, []*Tensor{t}, nil)
}

func (t *Tensor) Conv2D(ctx ml.Context, weight, bias *ml.Parameter, p ml.Conv2DParams) ml.Tensor {
	return t.ctx.record(graph.OpConv2D, graph.Attrs{Conv: p.Normalize()}, []*Tensor{t}, []*ml.Parameter{weight, bias})
}

func (t *Tensor) BatchNorm(ctx ml.Context, weight, bias, mean, variance *ml.Parameter, eps float32) ml.Tensor {
	return t.ctx.record(graph.OpBatchNorm, graph.Attrs{Epsilon: eps}, []*Tensor{t}, []*ml.Parameter{weight, bias, mean, variance})
}

func (t *Tensor) Linear(ctx ml.Context, weight, bias *ml.Parameter) ml.Tensor {
	return t.ctx.record(graph.OpLinear, graph.Attrs{}, []*Tensor{t}, []*ml.Parameter{weight, bias})
}

func (t *Tensor) RELU(ctx ml.Context) ml.Tensor {
	return t.ctx.record(graph.OpRELU, graph.Attrs{}, []*Tensor{t}, nil)
}

func (t *Tensor) Clamp(ctx ml.Context, min, max float32) ml.Tensor {
	return t.ctx.record(graph.OpClamp, graph.Attrs{Min: min, Max: max}, []*Tensor{t}, nil)
}

func (t *Tensor) Softmax(ctx ml.Context) ml.Tensor {
	return t.ctx.record(graph.OpSoftmax, graph.Attrs{}, []*Tensor{t}, nil)
}

func (t *Tensor) Dropout(ctx ml.Context, p float32) ml.Tensor {
	return t.ctx.record(graph.OpDropout, graph.Attrs{Rate: p}, []*Tensor{t}, nil)
}

func (t *Tensor) GlobalAvgPool2D(ctx ml.Context) ml.Tensor {
	return t.ctx.record(graph.OpGlobalAvgPool, graph.Attrs{}, []*Tensor{t}, nil)
}

func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	return t.ctx.record(graph.OpReshape, graph.Attrs{Shape: slices.Clone(shape)}, []*Tensor{t}, nil)
}
