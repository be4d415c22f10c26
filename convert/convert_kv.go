// convert_kv.go - KV-Getter: Typisierte Zugriffsmethoden fuer KV-Map
// Hauptfunktionen: String, Uint, Float, Bool, Strings, Ints, Floats, Bools
// sowie Artefakt-Getter fuer Eingang und Klassifikator
package convert

import "github.com/ollama/mlexport/fs/ggml"

// String - Gibt String-Wert zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

// Uint - Gibt uint32-Wert zurueck
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Float - Gibt float32-Wert zurueck
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Bool - Gibt bool-Wert zurueck
func (kv KV) Bool(key string, defaultValue ...bool) bool {
	val, _ := keyValue(kv, key, append(defaultValue, false)...)
	return val
}

// Strings - Gibt String-Array zurueck
func (kv KV) Strings(key string, defaultValue ...[]string) []string {
	val, _ := keyValue(kv, key, append(defaultValue, nil)...)
	return val
}

// Ints - Gibt int32-Array zurueck
func (kv KV) Ints(key string, defaultValue ...[]int32) []int32 {
	val, _ := keyValue(kv, key, append(defaultValue, nil)...)
	return val
}

// Floats - Gibt float32-Array zurueck
func (kv KV) Floats(key string, defaultValue ...[]float32) []float32 {
	val, _ := keyValue(kv, key, append(defaultValue, nil)...)
	return val
}

// Bools - Gibt bool-Array zurueck
func (kv KV) Bools(key string, defaultValue ...[]bool) []bool {
	val, _ := keyValue(kv, key, append(defaultValue, nil)...)
	return val
}

// Kind - general.type, "classifier" oder "model"
func (kv KV) Kind() string {
	return kv.String("general.type", "model")
}

// Precision - Genauigkeit laut general.file_type
func (kv KV) Precision() Precision {
	if ggml.FileType(kv.Uint("general.file_type")) == ggml.FileTypeF16 {
		return Float16
	}
	return Float32
}

// Input - Rekonstruiert den Bildeingang aus input.*
func (kv KV) Input() ImageType {
	return ImageType{
		Name:        kv.String("input.name"),
		Shape:       ints(kv.Ints("input.shape")),
		Scale:       kv.Float("input.scale", 1),
		Bias:        kv.Floats("input.bias"),
		ColorLayout: ColorLayout(kv.String("input.color_layout", string(RGB))),
	}
}

// Labels - Klassenlabels des Klassifikator-Kopfs, Index = Klassen-ID
func (kv KV) Labels() []string {
	return kv.Strings("classifier.labels")
}

// PredictedFeatureName - Name der vorhergesagten Klasse
func (kv KV) PredictedFeatureName() string {
	return kv.String("classifier.predicted_feature_name", DefaultPredictedFeatureName)
}

// Normalized - true wenn der Klassifikator-Ausgang bereits eine Softmax ist
func (kv KV) Normalized() bool {
	return kv.Bool("classifier.normalized")
}

// ProbabilitiesName - Name des Wahrscheinlichkeits-Ausgangs
func (kv KV) ProbabilitiesName() string {
	return kv.String("classifier.probabilities_name")
}
