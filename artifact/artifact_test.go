package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/fs/ggml"
	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
)

// testModel: image -> pool -> reshape -> linear, zwei Klassen
func testModel(t *testing.T) *convert.Model {
	t.Helper()

	g := graph.New()
	g.Params["classifier.1.weight"] = ml.NewParameter("classifier.1.weight", []float32{1, 0, 0, 0, 1, 0}, 2, 3)
	g.Params["classifier.1.bias"] = ml.NewParameter("classifier.1.bias", []float32{0.5, -0.5}, 2)
	g.Inputs = []graph.Value{{Name: "input", Shape: []int{1, 3, 2, 2}}}
	g.Nodes = []*graph.Node{
		{Name: "global_avg_pool_0", Op: graph.OpGlobalAvgPool, Inputs: []string{"input"}, Shape: []int{1, 3, 1, 1}},
		{Name: "reshape_0", Op: graph.OpReshape, Inputs: []string{"global_avg_pool_0"}, Shape: []int{1, 3}, Attrs: graph.Attrs{Shape: []int{1, -1}}},
		{Name: "linear_0", Op: graph.OpLinear, Inputs: []string{"reshape_0"}, Params: []string{"classifier.1.weight", "classifier.1.bias"}, Shape: []int{1, 2}},
	}
	g.Outputs = []graph.Value{{Name: "linear_0", Shape: []int{1, 2}}}

	m, err := convert.Convert(g, convert.Options{
		Inputs:       []convert.ImageType{convert.NewImageType("image", 1, 3, 2, 2)},
		Classifier:   &convert.ClassifierConfig{ClassLabels: []string{"red", "green"}},
		Architecture: "test",
		Name:         "TestModel",
	})
	require.NoError(t, err)
	return m
}

func assertSameModel(t *testing.T, want, got *convert.Model) {
	t.Helper()
	assert.Equal(t, want.KV.Labels(), got.KV.Labels())
	assert.Equal(t, want.KV.Input(), got.KV.Input())
	if diff := cmp.Diff(want.Graph, got.Graph, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOpenFile(t *testing.T) {
	m := testModel(t)
	path := filepath.Join(t.TempDir(), "Model.gguf")

	require.NoError(t, Save(m, path, FormatFile))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, fi.IsDir())

	got, err := Open(path)
	require.NoError(t, err)
	assertSameModel(t, m, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestSaveOpenPackage(t *testing.T) {
	m := testModel(t)
	path := filepath.Join(t.TempDir(), "Model.mlpackage")

	require.NoError(t, Save(m, path, FormatPackage))

	b, err := os.ReadFile(filepath.Join(path, ManifestName))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, FileFormatVersion, raw["fileFormatVersion"])

	manifest, err := ParseManifest(b)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.ItemInfoEntries.Len())

	root, err := manifest.Root()
	require.NoError(t, err)
	assert.Equal(t, "com.ollama.mlexport/model.gguf", root.Path)
	assert.Contains(t, root.Description, "TestModel")
	assert.FileExists(t, filepath.Join(path, "Data", "com.ollama.mlexport", "model.gguf"))

	got, err := Open(path)
	require.NoError(t, err)
	assertSameModel(t, m, got)
}

func TestSaveReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	m := testModel(t)

	pkg := filepath.Join(dir, "Model.mlpackage")
	require.NoError(t, os.MkdirAll(filepath.Join(pkg, "stale"), 0o755))
	require.NoError(t, Save(m, pkg, FormatPackage))
	assert.NoDirExists(t, filepath.Join(pkg, "stale"))
	assert.FileExists(t, filepath.Join(pkg, ManifestName))

	file := filepath.Join(dir, "Model.gguf")
	require.NoError(t, os.WriteFile(file, []byte("old"), 0o644))
	require.NoError(t, Save(m, file, FormatFile))

	_, err := Open(file)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSaveErrors(t *testing.T) {
	m := testModel(t)
	missing := filepath.Join(t.TempDir(), "missing", "Model.gguf")

	assert.Error(t, Save(m, missing, FormatFile))
	assert.Error(t, Save(m, missing, FormatPackage))
	assert.Error(t, Save(m, filepath.Join(t.TempDir(), "x"), Format(7)))
	assert.NoFileExists(t, missing)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	notGGUF := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(notGGUF, []byte("PK\x03\x04 not gguf"), 0o644))
	_, err := Open(notGGUF)
	assert.ErrorIs(t, err, ggml.ErrUnsupportedFormat)

	empty := filepath.Join(dir, "empty.mlpackage")
	require.NoError(t, os.Mkdir(empty, 0o755))
	_, err = Open(empty)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	cases := map[string]string{
		"bad json":     `{`,
		"no version":   `{"itemInfoEntries": {}, "rootModelIdentifier": "A"}`,
		"missing root": `{"fileFormatVersion": "1.0.0", "itemInfoEntries": {}, "rootModelIdentifier": "A"}`,
		"escape":       `{"fileFormatVersion": "1.0.0", "itemInfoEntries": {"A": {"path": "../../etc/passwd"}}, "rootModelIdentifier": "A"}`,
	}
	for name, manifest := range cases {
		t.Run(name, func(t *testing.T) {
			pkg := filepath.Join(t.TempDir(), "m.mlpackage")
			require.NoError(t, os.Mkdir(pkg, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(pkg, ManifestName), []byte(manifest), 0o644))

			_, err := Open(pkg)
			assert.ErrorIs(t, err, ErrInvalidPackage)
		})
	}

	_, err = Open(filepath.Join(dir, "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"file":       FormatFile,
		".gguf":      FormatFile,
		"package":    FormatPackage,
		"mlpackage":  FormatPackage,
		".mlpackage": FormatPackage,
	}
	for s, want := range cases {
		got, err := ParseFormat(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseFormat("zip")
	assert.Error(t, err)

	assert.Equal(t, ".gguf", FormatFile.Ext())
	assert.Equal(t, ".mlpackage", FormatPackage.Ext())
	assert.Equal(t, "package", FormatPackage.String())
}

func TestNewManifestUnique(t *testing.T) {
	a, b := NewManifest("x"), NewManifest("x")
	assert.NotEqual(t, a.RootModelIdentifier, b.RootModelIdentifier)

	out, err := json.Marshal(a)
	require.NoError(t, err)

	back, err := ParseManifest(out)
	require.NoError(t, err)
	root, err := back.Root()
	require.NoError(t, err)
	assert.Equal(t, "model.gguf", root.Name)
}
