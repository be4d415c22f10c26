package graph

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/backend/cpu"
)

func randParam(rng *rand.Rand, name string, shape ...int) *ml.Parameter {
	data := make([]float32, ml.Elements(shape))
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return ml.NewParameter(name, data, shape...)
}

// smallGraph: conv -> relu -> add(residual) -> pool -> reshape -> linear -> softmax
func smallGraph(rng *rand.Rand) *Graph {
	g := New()
	g.Params["conv.weight"] = randParam(rng, "conv.weight", 2, 2, 3, 3)
	g.Params["fc.weight"] = randParam(rng, "fc.weight", 3, 2)
	g.Params["fc.bias"] = randParam(rng, "fc.bias", 3)

	g.Inputs = []Value{{Name: "input", Shape: []int{1, 2, 4, 4}}}
	g.Nodes = []*Node{
		{Name: "conv2d_0", Op: OpConv2D, Inputs: []string{"input"}, Params: []string{"conv.weight"}, Shape: []int{1, 2, 4, 4}, Attrs: Attrs{Conv: ml.Conv2DParams{Padding: [2]int{1, 1}}.Normalize()}},
		{Name: "relu_0", Op: OpRELU, Inputs: []string{"conv2d_0"}, Shape: []int{1, 2, 4, 4}},
		{Name: "add_0", Op: OpAdd, Inputs: []string{"relu_0", "input"}, Shape: []int{1, 2, 4, 4}},
		{Name: "global_avg_pool_0", Op: OpGlobalAvgPool, Inputs: []string{"add_0"}, Shape: []int{1, 2, 1, 1}},
		{Name: "reshape_0", Op: OpReshape, Inputs: []string{"global_avg_pool_0"}, Shape: []int{1, 2}, Attrs: Attrs{Shape: []int{1, -1}}},
		{Name: "linear_0", Op: OpLinear, Inputs: []string{"reshape_0"}, Params: []string{"fc.weight", "fc.bias"}, Shape: []int{1, 3}},
		{Name: "softmax_0", Op: OpSoftmax, Inputs: []string{"linear_0"}, Shape: []int{1, 3}},
	}
	g.Outputs = []Value{{Name: "softmax_0", Shape: []int{1, 3}}}
	return g
}

func TestValidate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	require.NoError(t, smallGraph(rng).Validate())

	cases := []struct {
		name   string
		mutate func(g *Graph)
	}{
		{"no outputs", func(g *Graph) { g.Outputs = nil }},
		{"unknown op", func(g *Graph) { g.Nodes[1].Op = "gelu" }},
		{"wrong arity", func(g *Graph) { g.Nodes[2].Inputs = []string{"relu_0"} }},
		{"undefined value", func(g *Graph) { g.Nodes[1].Inputs = []string{"nope"} }},
		{"read before write", func(g *Graph) { g.Nodes[0], g.Nodes[1] = g.Nodes[1], g.Nodes[0] }},
		{"missing param", func(g *Graph) { delete(g.Params, "fc.bias") }},
		{"bad param data", func(g *Graph) { g.Params["fc.bias"].Data = []float32{1} }},
		{"duplicate value", func(g *Graph) { g.Nodes[1].Name = "conv2d_0" }},
		{"output shape", func(g *Graph) { g.Outputs[0].Shape = []int{1, 4} }},
		{"output missing", func(g *Graph) { g.Outputs[0].Name = "prob" }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			g := smallGraph(rand.New(rand.NewPCG(1, 1)))
			tt.mutate(g)
			assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
		})
	}
}

func TestExecute(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	g := smallGraph(rng)

	x := cpu.New(1, 2, 4, 4)
	for i := range x.Data {
		x.Data[i] = rng.Float32()
	}

	outs, err := g.Execute(map[string]*cpu.Tensor{"input": x})
	require.NoError(t, err)
	require.Contains(t, outs, "softmax_0")

	probs := outs["softmax_0"]
	assert.Equal(t, []int{1, 3}, probs.Shape)

	var sum float32
	for _, v := range probs.Data {
		assert.Greater(t, v, float32(0))
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-5)
}

func TestExecuteInputErrors(t *testing.T) {
	g := smallGraph(rand.New(rand.NewPCG(3, 3)))

	_, err := g.Execute(map[string]*cpu.Tensor{})
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = g.Execute(map[string]*cpu.Tensor{"input": cpu.New(1, 3, 4, 4)})
	assert.ErrorIs(t, err, cpu.ErrShape)
}

func TestRename(t *testing.T) {
	g := smallGraph(rand.New(rand.NewPCG(4, 4)))
	g.Rename("input", "image")
	g.Rename("softmax_0", "classLabel_probs")

	assert.Equal(t, "image", g.Inputs[0].Name)
	assert.Equal(t, []string{"image"}, g.Nodes[0].Inputs)
	assert.Equal(t, []string{"relu_0", "image"}, g.Nodes[2].Inputs)
	assert.Equal(t, "classLabel_probs", g.Outputs[0].Name)
	assert.NotNil(t, g.Node("classLabel_probs"))
	assert.Nil(t, g.Node("softmax_0"))
	require.NoError(t, g.Validate())
}

func TestClone(t *testing.T) {
	g := smallGraph(rand.New(rand.NewPCG(5, 5)))
	c := g.Clone()

	if diff := cmp.Diff(g.OpCounts(), c.OpCounts()); diff != "" {
		t.Errorf("op counts differ (-want +got):\n%s", diff)
	}

	c.Rename("input", "image")
	c.Node("reshape_0").Attrs.Shape[1] = 2

	assert.Equal(t, "input", g.Inputs[0].Name)
	assert.Equal(t, []string{"input"}, g.Nodes[0].Inputs)
	assert.Equal(t, []int{1, -1}, g.Node("reshape_0").Attrs.Shape)

	// Parameter werden geteilt
	assert.Same(t, g.Params["fc.weight"], c.Params["fc.weight"])
}

func TestQueries(t *testing.T) {
	g := smallGraph(rand.New(rand.NewPCG(6, 6)))

	assert.Equal(t, map[Op]int{
		OpConv2D: 1, OpRELU: 1, OpAdd: 1, OpGlobalAvgPool: 1,
		OpReshape: 1, OpLinear: 1, OpSoftmax: 1,
	}, g.OpCounts())
	assert.Equal(t, []string{"conv.weight", "fc.bias", "fc.weight"}, g.ParamNames())
	assert.Equal(t, uint64(2*2*3*3+3*2+3), g.ParameterCount())

	consumers := g.Consumers("input")
	require.Len(t, consumers, 2)
	assert.Equal(t, "conv2d_0", consumers[0].Name)
	assert.Equal(t, "add_0", consumers[1].Name)

	assert.True(t, g.IsOutput("softmax_0"))
	assert.False(t, g.IsOutput("linear_0"))
	assert.Equal(t, 2, OpAdd.Arity())
	assert.True(t, OpDropout.Known())
	assert.False(t, Op("gelu").Known())
}

func TestApplyDropoutIsIdentity(t *testing.T) {
	x := cpu.New(1, 4)
	x.Data = []float32{1, 2, 3, 4}
	y, err := Apply(OpDropout, Attrs{Rate: 0.5}, []*cpu.Tensor{x}, nil)
	require.NoError(t, err)
	assert.Equal(t, x.Data, y.Data)
}
