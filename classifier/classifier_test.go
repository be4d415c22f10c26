package classifier

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/mlexport/artifact"
	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/vision"
)

var colors = []string{"red", "green", "blue"}

// colorModel: mittlere Farbe pro Kanal -> Identitaet -> optional Softmax
func colorModel(t *testing.T, withSoftmax bool, format artifact.Format) string {
	t.Helper()

	g := graph.New()
	g.Params["fc.weight"] = ml.NewParameter("fc.weight", []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}, 3, 3)
	g.Inputs = []graph.Value{{Name: "input", Shape: []int{1, 3, 8, 8}}}
	g.Nodes = []*graph.Node{
		{Name: "global_avg_pool_0", Op: graph.OpGlobalAvgPool, Inputs: []string{"input"}, Shape: []int{1, 3, 1, 1}},
		{Name: "reshape_0", Op: graph.OpReshape, Inputs: []string{"global_avg_pool_0"}, Shape: []int{1, 3}, Attrs: graph.Attrs{Shape: []int{1, -1}}},
		{Name: "linear_0", Op: graph.OpLinear, Inputs: []string{"reshape_0"}, Params: []string{"fc.weight"}, Shape: []int{1, 3}},
	}
	out := "linear_0"
	if withSoftmax {
		g.Nodes = append(g.Nodes, &graph.Node{Name: "softmax_0", Op: graph.OpSoftmax, Inputs: []string{"linear_0"}, Shape: []int{1, 3}})
		out = "softmax_0"
	}
	g.Outputs = []graph.Value{{Name: out, Shape: []int{1, 3}}}

	m, err := convert.Convert(g, convert.Options{
		Inputs:       []convert.ImageType{convert.NewImageType("image", 1, 3, 8, 8)},
		Classifier:   &convert.ClassifierConfig{ClassLabels: colors},
		Architecture: "colors",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "Colors"+format.Ext())
	require.NoError(t, artifact.Save(m, path, format))
	return path
}

func solid(w, h int, c color.Color) *vision.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			rgba.Set(x, y, c)
		}
	}
	return vision.FromImage(rgba)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		softmax bool
		format  artifact.Format
	}{
		{"raw file", false, artifact.FormatFile},
		{"softmax package", true, artifact.FormatPackage},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(colorModel(t, tt.softmax, tt.format))
			require.NoError(t, err)
			assert.Equal(t, colors, c.Labels())
			assert.Equal(t, "image", c.Input().Name)

			preds, err := c.Classify(solid(32, 20, color.RGBA{0, 0, 255, 255}), vision.CropCenter, 2)
			require.NoError(t, err)
			require.Len(t, preds, 2)
			assert.Equal(t, "blue", preds[0].Label)
			assert.Equal(t, 2, preds[0].Index)
			assert.Greater(t, preds[0].Probability, preds[1].Probability)

			all, err := c.Classify(solid(8, 8, color.RGBA{0, 255, 0, 255}), vision.ScaleFill, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "green", all[0].Label)

			var sum float32
			for _, p := range all {
				sum += p.Probability
			}
			assert.InDelta(t, 1, sum, 1e-5)
		})
	}
}

func TestPredictOutputs(t *testing.T) {
	raw, err := Load(colorModel(t, false, artifact.FormatFile))
	require.NoError(t, err)
	probs, err := Load(colorModel(t, true, artifact.FormatFile))
	require.NoError(t, err)

	pixels := make([]float32, 3*8*8)
	for i := range 64 {
		pixels[i] = 255
	}

	scores, err := raw.Predict(pixels)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 0, 0}, scores, 1e-5)

	p, err := probs.Predict(pixels)
	require.NoError(t, err)
	assert.InDelta(t, 1, p[0]+p[1]+p[2], 1e-5)

	_, err = raw.Predict(pixels[:10])
	assert.Error(t, err)
}

func TestNewErrors(t *testing.T) {
	g := graph.New()
	g.Inputs = []graph.Value{{Name: "input", Shape: []int{1, 3, 2, 2}}}
	g.Nodes = []*graph.Node{{Name: "relu_0", Op: graph.OpRELU, Inputs: []string{"input"}, Shape: []int{1, 3, 2, 2}}}
	g.Outputs = []graph.Value{{Name: "relu_0", Shape: []int{1, 3, 2, 2}}}

	m, err := convert.Convert(g, convert.Options{
		Inputs:       []convert.ImageType{convert.NewImageType("image", 1, 3, 2, 2)},
		Architecture: "plain",
	})
	require.NoError(t, err)

	_, err = New(m)
	assert.ErrorIs(t, err, ErrNotClassifier)

	m.KV["classifier.labels"] = []string{"a"}
	m.KV["classifier.probabilities_name"] = "missing"
	_, err = New(m)
	assert.ErrorIs(t, err, convert.ErrInvalidModel)
}

func TestTopK(t *testing.T) {
	labels := []string{"a", "b", "c", "d"}

	preds := TopK([]float32{0.1, 3, -1, 2}, labels, 2, false)
	require.Len(t, preds, 2)
	assert.Equal(t, "b", preds[0].Label)
	assert.Equal(t, "d", preds[1].Label)
	assert.InDelta(t, 0.694, preds[0].Probability, 1e-2)

	dist := TopK([]float32{0.1, 0.6, 0.2, 0.1}, labels, 10, true)
	require.Len(t, dist, 4)
	assert.Equal(t, float32(0.6), dist[0].Probability)
	assert.Equal(t, "a", dist[2].Label, "stabile Reihenfolge bei Gleichstand")

	// Rohwerte, die zufaellig wie eine Verteilung aussehen, werden trotzdem normalisiert
	raw := TopK([]float32{0.1, 0.6, 0.2, 0.1}, labels, 1, false)
	assert.InDelta(t, 0.3468, raw[0].Probability, 1e-3)
}

func TestClassifyUsesStoredNormalization(t *testing.T) {
	blue := solid(8, 8, color.RGBA{0, 0, 255, 255})

	raw, err := Load(colorModel(t, false, artifact.FormatFile))
	require.NoError(t, err)
	preds, err := raw.Classify(blue, vision.CropCenter, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, preds[0].Score, 1e-5)
	assert.InDelta(t, math.E/(math.E+2), preds[0].Probability, 1e-4)

	probs, err := Load(colorModel(t, true, artifact.FormatFile))
	require.NoError(t, err)
	preds, err = probs.Classify(blue, vision.CropCenter, 1)
	require.NoError(t, err)
	assert.Equal(t, preds[0].Score, preds[0].Probability)
}
