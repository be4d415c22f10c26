// Package model - Model-Interface, Registry und Laden der Gewichte
//
// Dieses Paket definiert das Model-Interface und stellt Funktionen
// zur Initialisierung und Verwaltung von Klassifikationsmodellen bereit.
//
// Hauptkomponenten:
// - Model: Interface für alle Modell-Architekturen
// - Base: Basis-Implementierung für gemeinsame Funktionalität
// - New: Erstellt neue Model-Instanzen
// - Register: Registriert Modell-Konstruktoren
// - WithSoftmax: Haengt eine Softmax-Stufe an ein Modell

package model

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/ollama/mlexport/ml"
	typesmodel "github.com/ollama/mlexport/types/model"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel = errors.New("model not supported")
	ErrInvalidConfig    = errors.New("invalid model config")
	ErrMissingParam     = errors.New("missing parameter")
	ErrShapeMismatch    = errors.New("parameter shape mismatch")
)

// Model definiert das Interface für spezifische Modell-Architekturen
type Model interface {
	Forward(ctx ml.Context, x ml.Tensor) ml.Tensor

	Params() []ParamSpec
	Load(sd map[string]*ml.Parameter) error

	SetTraining(training bool)
	Training() bool

	Architecture() string
	Config() Config
}

// Config enthält die Hyperparameter einer Architektur
type Config struct {
	WidthMult  float32
	NumClasses int
	Dropout    float32

	// InputSize ist die Kantenlaenge des quadratischen Eingangsbildes
	InputSize int
}

// DefaultConfig entspricht den veroeffentlichten ImageNet-Gewichten
func DefaultConfig() Config {
	return Config{WidthMult: 1, NumClasses: 1000, Dropout: 0.2, InputSize: 224}
}

// Validate prüft die Hyperparameter
func (c Config) Validate() error {
	switch {
	case c.WidthMult <= 0:
		return fmt.Errorf("%w: width multiplier %v", ErrInvalidConfig, c.WidthMult)
	case c.NumClasses <= 0:
		return fmt.Errorf("%w: %d classes", ErrInvalidConfig, c.NumClasses)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout %v", ErrInvalidConfig, c.Dropout)
	case c.InputSize <= 0:
		return fmt.Errorf("%w: input size %d", ErrInvalidConfig, c.InputSize)
	}
	return nil
}

// InputShape gibt die NCHW-Form eines einzelnen Eingangsbildes zurück
func (c Config) InputShape() []int {
	return []int{1, 3, c.InputSize, c.InputSize}
}

// ParamSpec beschreibt einen benötigten Parameter
type ParamSpec struct {
	Name         string
	Alternatives []string
	Shape        []int
}

// Base implementiert gemeinsame Felder und Methoden für alle Modelle
type Base struct {
	arch     string
	config   Config
	training bool
	params   []*param
}

// param verbindet einen Parameter mit seinen möglichen Namen
type param struct {
	names []string
	p     *ml.Parameter
}

// Architecture gibt den registrierten Architekturnamen zurück
func (m *Base) Architecture() string {
	return m.arch
}

// Config gibt die Modell-Konfiguration zurück
func (m *Base) Config() Config {
	return m.config
}

// SetTraining schaltet zwischen Trainings- und Inferenzmodus um
func (m *Base) SetTraining(training bool) {
	m.training = training
}

// Training meldet ob das Modell im Trainingsmodus ist
func (m *Base) Training() bool {
	return m.training
}

// Params listet alle Parameter in Deklarationsreihenfolge
func (m *Base) Params() []ParamSpec {
	specs := make([]ParamSpec, len(m.params))
	for i, p := range m.params {
		specs[i] = ParamSpec{
			Name:         p.names[0],
			Alternatives: slices.Clone(p.names[1:]),
			Shape:        slices.Clone(p.p.Shape),
		}
	}
	return specs
}

// Load übernimmt die Gewichte aus einem State-Dict und schaltet in den Inferenzmodus.
// Zusätzliche Einträge (z.B. num_batches_tracked) werden ignoriert.
func (m *Base) Load(sd map[string]*ml.Parameter) error {
	used := make(map[string]struct{}, len(m.params))
	var missing []string
	for _, p := range m.params {
		var src *ml.Parameter
		for _, name := range p.names {
			if t, ok := sd[name]; ok {
				src = t
				used[name] = struct{}{}
				break
			}
		}

		if src == nil {
			missing = append(missing, p.names[0])
			continue
		}

		if !slices.Equal(src.Shape, p.p.Shape) {
			return fmt.Errorf("%w: %s has shape %v, expected %v", ErrShapeMismatch, p.names[0], src.Shape, p.p.Shape)
		}
		if len(src.Data) != p.p.Elements() {
			return fmt.Errorf("%w: %s has %d values for shape %v", ErrShapeMismatch, p.names[0], len(src.Data), p.p.Shape)
		}

		p.p.Data = src.Data
	}

	if len(missing) > 0 {
		if len(missing) > 3 {
			return fmt.Errorf("%w: %v and %d more", ErrMissingParam, missing[:3], len(missing)-3)
		}
		return fmt.Errorf("%w: %v", ErrMissingParam, missing)
	}

	if unused := len(sd) - len(used); unused > 0 {
		slog.Debug("ignoring unused state dict entries", "count", unused)
	}

	m.training = false
	return nil
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(Config) (Model, error))

// Register registriert einen Modell-Konstruktor für eine Architektur
func Register(name string, f func(Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// Architectures gibt alle registrierten Architekturen sortiert zurück
func Architectures() []string {
	return slices.Sorted(maps.Keys(models))
}

// New erstellt ein Modell der Architektur arch. Die Parameter haben ihre
// Formen, aber noch keine Daten; siehe Load.
func New(arch string, c Config) (Model, error) {
	f, ok := models[arch]
	if !ok {
		return nil, typesmodel.Suggest(fmt.Errorf("%w: %q", ErrUnsupportedModel, arch), arch, Architectures())
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	m, err := f(c)
	if err != nil {
		return nil, err
	}

	base := Base{arch: arch, config: c}
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s constructor must return a struct pointer", ErrUnsupportedModel, arch)
	}
	populateFields(&base, v.Elem())

	if err := setBase(v.Elem(), base); err != nil {
		return nil, fmt.Errorf("%s: %w", arch, err)
	}

	slog.Debug("created model", "arch", arch, "params", len(base.params))
	return m, nil
}
