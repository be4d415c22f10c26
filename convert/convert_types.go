// convert_types.go - Basis-Typen fuer die Konvertierung
// Haupttypen: Precision, ImageType, ClassifierConfig, Options, KV
package convert

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/ollama/mlexport/fs/ggml"
)

// Precision - Speichergenauigkeit der Gewichte im Artefakt
type Precision int

const (
	Float32 Precision = iota
	Float16
)

// ParsePrecision - Parst "float32"/"fp32"/"f32" oder "float16"/"fp16"/"f16"
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(s) {
	case "":
		return Float32, nil
	case "fp32":
		s = "f32"
	case "fp16":
		s = "f16"
	}

	ft, err := ggml.ParseFileType(s)
	if err != nil {
		return Float32, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if ft == ggml.FileTypeF16 {
		return Float16, nil
	}
	return Float32, nil
}

func (p Precision) String() string {
	if p == Float16 {
		return "float16"
	}
	return "float32"
}

// FileType - GGUF Dateityp fuer die Genauigkeit
func (p Precision) FileType() ggml.FileType {
	if p == Float16 {
		return ggml.FileTypeF16
	}
	return ggml.FileTypeF32
}

// ColorLayout - Kanalreihenfolge des Bildeingangs
type ColorLayout string

const (
	RGB ColorLayout = "RGB"
	BGR ColorLayout = "BGR"
)

// DefaultImageScale - Pixel 0..255 werden auf 0..1 abgebildet
const DefaultImageScale = float32(1.0 / 255.0)

// ImageType - Beschreibt einen Bildeingang: pixel*Scale + Bias[c]
type ImageType struct {
	Name        string
	Shape       []int
	Scale       float32
	Bias        []float32
	ColorLayout ColorLayout
}

// NewImageType - Bildeingang mit Standard-Skalierung 1/255 und RGB
func NewImageType(name string, shape ...int) ImageType {
	return ImageType{
		Name:        name,
		Shape:       slices.Clone(shape),
		Scale:       DefaultImageScale,
		ColorLayout: RGB,
	}
}

// Channels, Height, Width - Dimensionen eines NCHW Eingangs
func (it ImageType) Channels() int { return it.dim(1) }
func (it ImageType) Height() int   { return it.dim(2) }
func (it ImageType) Width() int    { return it.dim(3) }

func (it ImageType) dim(i int) int {
	if i < len(it.Shape) {
		return it.Shape[i]
	}
	return 0
}

// DefaultPredictedFeatureName - Name der vorhergesagten Klasse
const DefaultPredictedFeatureName = "classLabel"

// ClassifierConfig - Macht aus dem Ausgang einen Klassifikator-Kopf
type ClassifierConfig struct {
	ClassLabels          []string
	PredictedFeatureName string
}

// ProbabilitiesName - Name des Wahrscheinlichkeits-Ausgangs
func (c ClassifierConfig) ProbabilitiesName() string {
	return c.featureName() + "_probs"
}

func (c ClassifierConfig) featureName() string {
	if c.PredictedFeatureName == "" {
		return DefaultPredictedFeatureName
	}
	return c.PredictedFeatureName
}

// Options - Parameter fuer Convert
type Options struct {
	Inputs     []ImageType
	Classifier *ClassifierConfig
	Precision  Precision

	Architecture string
	Name         string

	// Hyperparameters werden unter <architecture>.* abgelegt
	Hyperparameters map[string]any
}

// KV - Key-Value Map fuer GGUF Metadaten
type KV map[string]any

// Architecture - Gibt die Modell-Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// valueTypes - Erlaubte Einzelwert-Typen fuer KV
type valueTypes interface {
	uint8 | int8 | uint16 | int16 |
		uint32 | int32 | uint64 | int64 |
		string | float32 | float64 | bool
}

// arrayValueTypes - Erlaubte Array-Typen fuer KV
type arrayValueTypes interface {
	[]uint8 | []int8 | []uint16 | []int16 |
		[]uint32 | []int32 | []uint64 | []int64 |
		[]string | []float32 | []float64 | []bool
}

// keyValue - Generische Funktion zum Abrufen von Werten aus KV
func keyValue[T valueTypes | arrayValueTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !slices.ContainsFunc(ggml.Namespaces, func(ns string) bool { return strings.HasPrefix(key, ns) }) {
		key = kv.Architecture() + "." + key
	}

	if val, ok := kv[key].(T); ok {
		return val, true
	}
	return defaultValue[0], false
}

// Len - Anzahl der Eintraege
func (kv KV) Len() int {
	return len(kv)
}

// Keys - Gibt alle Schluessel zurueck
func (kv KV) Keys() iter.Seq[string] {
	return maps.Keys(kv)
}

// Value - Gibt einen Wert zurueck
func (kv KV) Value(key string) any {
	return kv[key]
}
