package pipeline

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/mlexport/artifact"
	"github.com/ollama/mlexport/classifier"
	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/labels"
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/model"
	"github.com/ollama/mlexport/weights"
)

var testLabels = []string{"tench", "goldfish", "great white shark"}

var smallConfig = model.Config{WidthMult: 0.35, NumClasses: 3, Dropout: 0.2, InputSize: 32}

// weightsFile schreibt Zufallsgewichte fuer smallConfig als safetensors
func weightsFile(t *testing.T) string {
	t.Helper()

	m, err := model.New(DefaultArchitecture, smallConfig)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 7))
	sd := make(weights.StateDict)
	for _, p := range m.Params() {
		data := make([]float32, ml.Elements(p.Shape))
		for i := range data {
			if strings.HasSuffix(p.Name, "running_var") {
				data[i] = 0.5 + rng.Float32()
			} else {
				data[i] = rng.Float32()*0.4 - 0.2
			}
		}
		sd[p.Name] = ml.NewParameter(p.Name, data, p.Shape...)
	}

	path := filepath.Join(t.TempDir(), "small.safetensors")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, weights.WriteSafetensors(f, sd, "F32"))
	return path
}

func labelServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["tench", "goldfish", "great white shark"]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, v Variant, labelsURL string) Config {
	t.Helper()

	c := Preset(v)
	c.LabelsURL = labelsURL
	c.InsecureSkipVerify = true
	c.WeightsFile = weightsFile(t)
	c.Model = &smallConfig
	c.Seed = 1
	c.Output = filepath.Join(t.TempDir(), c.Name+c.Format.Ext())
	return c
}

func randomPixels(n int) []float32 {
	rng := rand.New(rand.NewPCG(3, 3))
	px := make([]float32, n)
	for i := range px {
		px[i] = float32(rng.IntN(256))
	}
	return px
}

func TestRunVariants(t *testing.T) {
	srv := labelServer(t)

	cases := []struct {
		variant Variant
		format  artifact.Format
		softmax bool
	}{
		{VariantFile, artifact.FormatFile, false},
		{VariantPackage, artifact.FormatPackage, true},
	}

	for _, tt := range cases {
		t.Run(tt.variant.String(), func(t *testing.T) {
			c := testConfig(t, tt.variant, srv.URL)
			assert.Equal(t, tt.format, c.Format)
			assert.Equal(t, tt.softmax, c.Softmax)

			res, err := Run(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, c.Output, res.Path)

			info, err := os.Stat(res.Path)
			require.NoError(t, err)
			assert.Equal(t, tt.format == artifact.FormatPackage, info.IsDir())

			m, err := artifact.Open(res.Path)
			require.NoError(t, err)

			in := m.KV.Input()
			assert.Equal(t, DefaultInputName, in.Name)
			assert.Equal(t, []int{1, 3, 32, 32}, in.Shape)
			assert.InDelta(t, 1.0/255, in.Scale, 1e-9)
			assert.Equal(t, testLabels, m.KV.Labels())
			assert.Equal(t, "classLabel", m.KV.PredictedFeatureName())
			assert.Zero(t, m.Graph.OpCounts()[graph.OpBatchNorm])
			assert.Zero(t, m.Graph.OpCounts()[graph.OpDropout])

			c2, err := classifier.New(m)
			require.NoError(t, err)
			scores, err := c2.Predict(randomPixels(3 * 32 * 32))
			require.NoError(t, err)
			require.Len(t, scores, 3)

			var sum float32
			for _, s := range scores {
				sum += s
			}
			if tt.softmax {
				assert.InDelta(t, 1, sum, 1e-5)
			} else {
				assert.Greater(t, abs(sum-1), float32(1e-3))
			}
		})
	}
}

func TestRunReproducible(t *testing.T) {
	srv := labelServer(t)

	c := testConfig(t, VariantPackage, srv.URL)
	first, err := Run(context.Background(), c)
	require.NoError(t, err)

	c.Seed = 99
	c.Output = filepath.Join(t.TempDir(), "again.mlpackage")
	second, err := Run(context.Background(), c)
	require.NoError(t, err)

	a, err := classifier.New(first.Model)
	require.NoError(t, err)
	b, err := classifier.New(second.Model)
	require.NoError(t, err)

	px := randomPixels(3 * 32 * 32)
	want, err := a.Predict(px)
	require.NoError(t, err)
	got, err := b.Predict(px)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-6)
}

func TestRunUnreachableLabels(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := Preset(VariantFile)
	c.LabelsURL = url
	c.WeightsFile = filepath.Join(t.TempDir(), "missing.safetensors")
	c.Output = filepath.Join(t.TempDir(), "out.gguf")

	_, err := Run(context.Background(), c)
	require.ErrorIs(t, err, labels.ErrNetwork)
	assert.True(t, strings.HasPrefix(err.Error(), "labels: "), err.Error())

	_, err = os.Stat(c.Output)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunStageErrors(t *testing.T) {
	srv := labelServer(t)

	t.Run("shape mismatch", func(t *testing.T) {
		c := testConfig(t, VariantFile, srv.URL)
		other := smallConfig
		other.NumClasses = 4
		c.Model = &other
		_, err := Run(context.Background(), c)
		assert.ErrorIs(t, err, model.ErrShapeMismatch)
		assert.True(t, strings.HasPrefix(err.Error(), "model: "), err.Error())
	})

	t.Run("unknown weights", func(t *testing.T) {
		c := testConfig(t, VariantFile, srv.URL)
		c.WeightsFile = ""
		c.Weights = "IMAGENET1K_V3"
		_, err := Run(context.Background(), c)
		assert.ErrorIs(t, err, weights.ErrUnknownWeights)
		_, err = os.Stat(c.Output)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unwritable output", func(t *testing.T) {
		c := testConfig(t, VariantFile, srv.URL)
		c.Output = filepath.Join(t.TempDir(), "missing", "dir", "out.gguf")
		_, err := Run(context.Background(), c)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "write: "), err.Error())
	})
}

func TestParseVariant(t *testing.T) {
	for in, want := range map[string]Variant{"1": VariantFile, "file": VariantFile, "2": VariantPackage, "package": VariantPackage} {
		v, err := ParseVariant(in)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	_, err := ParseVariant("3")
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "PythonConvertModel.gguf", Preset(VariantFile).OutputPath())
	assert.Equal(t, "PythonConvertModel.mlpackage", Preset(VariantPackage).OutputPath())

	c := Preset(VariantFile)
	c.Output = "x/y.gguf"
	assert.Equal(t, "x/y.gguf", c.OutputPath())
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
