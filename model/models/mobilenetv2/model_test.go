package mobilenetv2

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/backend/cpu"
	"github.com/ollama/mlexport/model"
	"github.com/ollama/mlexport/trace"
)

func TestMakeDivisible(t *testing.T) {
	cases := []struct {
		v    float32
		want int
	}{
		{32, 32},
		{1280, 1280},
		{16 * 0.5, 8},
		{32 * 0.35, 16},
		{24 * 0.35, 8},
		{96 * 0.75, 72},
		{3, 8},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.want, makeDivisible(tt.v, 8), "v=%v", tt.v)
	}
}

func TestParamLayout(t *testing.T) {
	m, err := model.New(Architecture, model.DefaultConfig())
	require.NoError(t, err)

	params := m.Params()
	require.Len(t, params, 262)

	byName := make(map[string][]int)
	var trainable int
	for _, p := range params {
		byName[p.Name] = p.Shape
		if !strings.HasSuffix(p.Name, "running_mean") && !strings.HasSuffix(p.Name, "running_var") {
			trainable += ml.Elements(p.Shape)
		}
	}
	assert.Equal(t, 3504872, trainable)

	cases := map[string][]int{
		"features.0.0.weight":            {32, 3, 3, 3},
		"features.0.1.running_var":       {32},
		"features.1.conv.0.0.weight":     {32, 1, 3, 3},
		"features.1.conv.1.weight":       {16, 32, 1, 1},
		"features.1.conv.2.bias":         {16},
		"features.2.conv.0.0.weight":     {96, 16, 1, 1},
		"features.2.conv.1.0.weight":     {96, 1, 3, 3},
		"features.2.conv.2.weight":       {24, 96, 1, 1},
		"features.2.conv.3.running_mean": {24},
		"features.17.conv.2.weight":      {320, 960, 1, 1},
		"features.18.0.weight":           {1280, 320, 1, 1},
		"classifier.1.weight":            {1000, 1280},
		"classifier.1.bias":              {1000},
	}
	for name, shape := range cases {
		assert.Equal(t, shape, byName[name], name)
	}

	assert.NotContains(t, byName, "features.1.conv.3.weight")
}

// smallModel ist ein schmales Netz mit Zufallsgewichten fuer schnelle Tests
func smallModel(t *testing.T, classes int) model.Model {
	t.Helper()

	m, err := model.New(Architecture, model.Config{WidthMult: 0.35, NumClasses: classes, Dropout: 0.2, InputSize: 32})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(42, 42))
	sd := make(map[string]*ml.Parameter)
	for _, p := range m.Params() {
		data := make([]float32, ml.Elements(p.Shape))
		for i := range data {
			switch {
			case strings.HasSuffix(p.Name, "running_var"):
				data[i] = 0.5 + rng.Float32()
			case strings.HasSuffix(p.Name, "running_mean"), strings.HasSuffix(p.Name, ".bias"):
				data[i] = rng.Float32()*0.2 - 0.1
			default:
				data[i] = rng.Float32()*0.4 - 0.2
			}
		}
		sd[p.Name] = ml.NewParameter(p.Name, data, p.Shape...)
	}
	require.NoError(t, m.Load(sd))
	return m
}

func TestTraceStructure(t *testing.T) {
	m := smallModel(t, 10)

	g, err := trace.Trace(m, trace.RandomExample(1, 1, 3, 32, 32))
	require.NoError(t, err)

	assert.Equal(t, map[graph.Op]int{
		graph.OpConv2D:        52,
		graph.OpBatchNorm:     52,
		graph.OpClamp:         35,
		graph.OpAdd:           10,
		graph.OpGlobalAvgPool: 1,
		graph.OpReshape:       1,
		graph.OpLinear:        1,
	}, g.OpCounts())
	assert.Len(t, g.Params, 262)
	assert.Equal(t, []int{1, 10}, g.Outputs[0].Shape)

	first := g.Nodes[0]
	assert.Equal(t, graph.OpConv2D, first.Op)
	assert.Equal(t, [2]int{2, 2}, first.Attrs.Conv.Stride)
	assert.Equal(t, []string{"features.0.0.weight"}, first.Params)
}

func TestTracedGraphMatchesEager(t *testing.T) {
	m := smallModel(t, 10)

	g, err := trace.Trace(m, trace.RandomExample(1, 1, 3, 32, 32))
	require.NoError(t, err)

	ex := trace.RandomExample(2, 1, 3, 32, 32)
	want, err := trace.Eager(m, ex)
	require.NoError(t, err)

	x, err := cpu.FromFloats(ex.Data, ex.Shape...)
	require.NoError(t, err)
	outs, err := g.Execute(map[string]*cpu.Tensor{g.Inputs[0].Name: x})
	require.NoError(t, err)

	assert.InDeltaSlice(t, want.Data, outs[g.Outputs[0].Name].Data, 1e-5)
}

func TestTrainingAddsDropout(t *testing.T) {
	m := smallModel(t, 4)
	m.SetTraining(true)

	g, err := trace.Trace(m, trace.RandomExample(1, 1, 3, 32, 32))
	require.NoError(t, err)
	assert.Equal(t, 1, g.OpCounts()[graph.OpDropout])

	m.SetTraining(false)
	g, err = trace.Trace(m, trace.RandomExample(1, 1, 3, 32, 32))
	require.NoError(t, err)
	assert.Zero(t, g.OpCounts()[graph.OpDropout])
}

func TestWrongInputChannels(t *testing.T) {
	m := smallModel(t, 4)
	_, err := trace.Trace(m, trace.RandomExample(1, 1, 1, 32, 32))
	assert.ErrorIs(t, err, trace.ErrTraceFailed)
}
