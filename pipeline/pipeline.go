// Package pipeline - Export-Ablauf von der Label-Liste bis zum Artefakt
//
// Stufen (in dieser Reihenfolge, Abbruch beim ersten Fehler):
// - labels:  Label-Liste per HTTPS laden
// - model:   Gewichte finden (ggf. Download), Netz bauen, Inferenzmodus
// - trace:   einmaliger Forward-Pass auf Zufallseingang
// - convert: Graph optimieren, Bildeingang und Klassifikator anhaengen
// - write:   Datei oder Paket schreiben
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ollama/mlexport/artifact"
	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/envconfig"
	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/labels"
	"github.com/ollama/mlexport/model"
	_ "github.com/ollama/mlexport/model/models"
	"github.com/ollama/mlexport/trace"
	"github.com/ollama/mlexport/weights"
)

// Standardwerte des Exports
const (
	DefaultArchitecture = "mobilenet_v2"
	DefaultWeights      = "IMAGENET1K_V1"
	DefaultName         = "PythonConvertModel"
	DefaultInputName    = "image"
)

// Variant waehlt eine Voreinstellung fuer Ausgabeformat und Softmax
type Variant int

const (
	// VariantFile schreibt eine einzelne Datei mit rohen Klassenwerten
	VariantFile Variant = 1
	// VariantPackage schreibt ein Paket mit Softmax-Ausgabe
	VariantPackage Variant = 2
)

// ParseVariant erkennt "1"/"file" und "2"/"package"
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "1", "file":
		return VariantFile, nil
	case "2", "package":
		return VariantPackage, nil
	}
	return 0, fmt.Errorf("unknown variant %q (use 1 or 2)", s)
}

func (v Variant) String() string {
	switch v {
	case VariantFile:
		return "file"
	case VariantPackage:
		return "package"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// Config enthaelt alle Parameter eines Laufs
type Config struct {
	LabelsURL          string
	InsecureSkipVerify bool

	Arch        string
	Weights     string
	WeightsFile string
	// Model ersetzt die aus dem Gewichts-Registry abgeleitete Konfiguration
	Model *model.Config

	Softmax   bool
	Format    artifact.Format
	Precision convert.Precision

	Name   string
	Output string

	// Seed fuer den synthetischen Trace-Eingang
	Seed uint64

	HTTPClient *http.Client
	CacheDir   string
}

// Preset gibt die Konfiguration einer Variante mit allen Standardwerten zurueck
func Preset(v Variant) Config {
	c := Config{
		LabelsURL:          envconfig.LabelsURL(),
		InsecureSkipVerify: envconfig.InsecureSkipVerify(),
		Arch:               DefaultArchitecture,
		Weights:            DefaultWeights,
		Format:             artifact.FormatFile,
		Precision:          convert.Float32,
		Name:               DefaultName,
		Seed:               uint64(time.Now().UnixNano()),
	}

	if v == VariantPackage {
		c.Softmax = true
		c.Format = artifact.FormatPackage
	}
	return c
}

// OutputPath ist Output oder <Name><Endung des Formats>
func (c Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	return c.Name + c.Format.Ext()
}

// Result beschreibt ein geschriebenes Artefakt
type Result struct {
	Path   string
	Model  *convert.Model
	Labels []string
}

// Run fuehrt alle Stufen nacheinander aus. Das Artefakt wird nur geschrieben,
// wenn alle vorherigen Stufen erfolgreich waren.
func Run(ctx context.Context, c Config) (*Result, error) {
	var ls []string
	if err := stage("labels", func() (err error) {
		ls, err = fetchLabels(ctx, c)
		return err
	}); err != nil {
		return nil, err
	}

	var m model.Model
	if err := stage("model", func() (err error) {
		m, err = loadModel(ctx, c)
		return err
	}); err != nil {
		return nil, err
	}

	if c.Softmax {
		m = model.WithSoftmax(m)
	}

	cfg := m.Config()
	ex := trace.RandomExample(c.Seed, cfg.InputShape()...)

	var g *graph.Graph
	if err := stage("trace", func() (err error) {
		g, err = trace.Trace(m, ex)
		return err
	}); err != nil {
		return nil, err
	}

	res := &Result{Path: c.OutputPath(), Labels: ls}
	if err := stage("convert", func() (err error) {
		res.Model, err = convert.Convert(g, convert.Options{
			Inputs:       []convert.ImageType{convert.NewImageType(DefaultInputName, cfg.InputShape()...)},
			Classifier:   &convert.ClassifierConfig{ClassLabels: ls, PredictedFeatureName: convert.DefaultPredictedFeatureName},
			Precision:    c.Precision,
			Architecture: m.Architecture(),
			Name:         c.Name,
			Hyperparameters: map[string]any{
				"width_mult":  cfg.WidthMult,
				"num_classes": uint32(cfg.NumClasses),
				"dropout":     cfg.Dropout,
				"input_size":  uint32(cfg.InputSize),
				"softmax":     c.Softmax,
			},
		})
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("write", func() error {
		return artifact.Save(res.Model, res.Path, c.Format)
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// stage loggt Start und Dauer und versieht Fehler mit dem Stufennamen
func stage(name string, fn func() error) error {
	start := time.Now()
	slog.Info("stage started", "stage", name)
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	slog.Info("stage finished", "stage", name, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func fetchLabels(ctx context.Context, c Config) ([]string, error) {
	opts := []labels.ClientOption{labels.WithInsecureSkipVerify(c.InsecureSkipVerify)}
	if c.HTTPClient != nil {
		opts = append(opts, labels.WithHTTPClient(c.HTTPClient))
	} else if timeout := envconfig.HTTPTimeout(); timeout > 0 {
		opts = append(opts, labels.WithTimeout(timeout))
	}

	ls, err := labels.NewClient(opts...).Fetch(ctx, c.LabelsURL)
	if err != nil {
		return nil, err
	}

	slog.Info("fetched labels", "count", len(ls), "first", ls[0])
	return ls, nil
}

// loadModel baut das Netz und laedt die Gewichte. Mit WeightsFile wird das
// Registry uebergangen.
func loadModel(ctx context.Context, c Config) (model.Model, error) {
	cfg := model.DefaultConfig()
	path := c.WeightsFile
	if path == "" {
		spec, err := weights.Lookup(c.Arch, c.Weights)
		if err != nil {
			return nil, err
		}
		cfg.NumClasses, cfg.InputSize = spec.NumClasses, spec.InputSize

		var opts []weights.Option
		if c.HTTPClient != nil {
			opts = append(opts, weights.WithHTTPClient(c.HTTPClient))
		}
		if c.CacheDir != "" {
			opts = append(opts, weights.WithCacheDir(c.CacheDir))
		}

		path, err = weights.Resolve(ctx, spec, opts...)
		if err != nil {
			return nil, err
		}
	}
	if c.Model != nil {
		cfg = *c.Model
	}

	m, err := model.New(c.Arch, cfg)
	if err != nil {
		return nil, err
	}

	sd, err := weights.Load(path)
	if err != nil {
		return nil, err
	}

	if err := m.Load(sd); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	slog.Info("loaded model", "arch", m.Architecture(), "weights", path, "params", len(m.Params()))
	return m, nil
}

