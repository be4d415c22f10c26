// Package ggml - KV (Key-Value) Metadaten
//
// Dieses Modul enthaelt den KV-Typ und alle zugehoerigen Methoden:
// - KV: Map fuer GGUF Key-Value Metadaten
// - Artefakt-Methoden (Architecture, Kind, FileType, ParameterCount)
// - Generische Getter (String, Uint, Float, Bool, Arrays)
// - Namespaces: Keys ohne Architektur-Prefix
package ggml

import (
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// KV repraesentiert GGUF Key-Value Metadaten
type KV map[string]any

// Architecture gibt die Modell-Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// Kind gibt den Modell-Typ zurueck
func (kv KV) Kind() string {
	return kv.String("general.type", "unknown")
}

// ParameterCount gibt die Anzahl der Parameter zurueck
func (kv KV) ParameterCount() uint64 {
	val, _ := keyValue(kv, "general.parameter_count", uint64(0))
	return val
}

// FileType gibt den GGUF FileType zurueck
func (kv KV) FileType() FileType {
	if t, ok := keyValue(kv, "general.file_type", uint32(0)); ok {
		return FileType(t)
	}
	return FileTypeUnknown
}

// Generische Getter

// String gibt einen String-Wert zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

// Uint gibt einen uint32-Wert zurueck
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Float gibt einen float32-Wert zurueck
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Bool gibt einen bool-Wert zurueck
func (kv KV) Bool(key string, defaultValue ...bool) bool {
	val, _ := keyValue(kv, key, append(defaultValue, false)...)
	return val
}

// Strings gibt ein String-Array zurueck
func (kv KV) Strings(key string, defaultValue ...[]string) []string {
	return arrayValue(kv, key, append(defaultValue, []string(nil))[0])
}

// Ints gibt ein int32-Array zurueck
func (kv KV) Ints(key string, defaultValue ...[]int32) []int32 {
	return arrayValue(kv, key, append(defaultValue, []int32(nil))[0])
}

// Uints gibt ein uint32-Array zurueck
func (kv KV) Uints(key string, defaultValue ...[]uint32) []uint32 {
	return arrayValue(kv, key, append(defaultValue, []uint32(nil))[0])
}

// Floats gibt ein float32-Array zurueck
func (kv KV) Floats(key string, defaultValue ...[]float32) []float32 {
	return arrayValue(kv, key, append(defaultValue, []float32(nil))[0])
}

// Bools gibt ein bool-Array zurueck
func (kv KV) Bools(key string, defaultValue ...[]bool) []bool {
	return arrayValue(kv, key, append(defaultValue, []bool(nil))[0])
}

// Len gibt die Anzahl der KV-Paare zurueck
func (kv KV) Len() int {
	return len(kv)
}

// Keys gibt einen Iterator ueber alle Keys zurueck
func (kv KV) Keys() iter.Seq[string] {
	return maps.Keys(kv)
}

// Value gibt den Wert fuer einen Key zurueck
func (kv KV) Value(key string) any {
	return kv[key]
}

// Plain gibt den Wert zu key zurueck; dekodierte Arrays werden als Slice geliefert
func (kv KV) Plain(key string) any {
	switch v := kv[key].(type) {
	case *array[uint8]:
		return v.values
	case *array[int8]:
		return v.values
	case *array[uint16]:
		return v.values
	case *array[int16]:
		return v.values
	case *array[uint32]:
		return v.values
	case *array[int32]:
		return v.values
	case *array[uint64]:
		return v.values
	case *array[int64]:
		return v.values
	case *array[float32]:
		return v.values
	case *array[float64]:
		return v.values
	case *array[string]:
		return v.values
	case *array[bool]:
		return v.values
	default:
		return v
	}
}

// Namespaces sind Key-Prefixe die nicht mit der Architektur qualifiziert werden
var Namespaces = []string{"general.", "input.", "classifier.", "graph."}

// hasNamespace prueft ob der Key bereits in einem festen Namespace liegt
func hasNamespace(key string) bool {
	return slices.ContainsFunc(Namespaces, func(ns string) bool {
		return strings.HasPrefix(key, ns)
	})
}

// Type Constraints fuer keyValue

type valueTypes interface {
	uint8 | int8 | uint16 | int16 |
		uint32 | int32 | uint64 | int64 |
		string | float32 | float64 | bool
}

type arrayValueTypes interface {
	*array[uint8] | *array[int8] | *array[uint16] | *array[int16] |
		*array[uint32] | *array[int32] | *array[uint64] | *array[int64] |
		*array[string] | *array[float32] | *array[float64] | *array[bool]
}

// arrayValue liest ein Array das entweder dekodiert (*array) oder
// im Speicher aufgebaut ([]T) vorliegt
func arrayValue[T valueTypes](kv KV, key string, defaultValue []T) []T {
	if !hasNamespace(key) {
		key = kv.Architecture() + "." + key
	}

	switch v := kv[key].(type) {
	case *array[T]:
		return v.values
	case []T:
		return v
	}

	slog.Debug("key with type not found", "key", key)
	return defaultValue
}

// keyValue ist eine generische Hilfsfunktion zum Lesen von KV-Werten
func keyValue[T valueTypes | arrayValueTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !hasNamespace(key) {
		key = kv.Architecture() + "." + key
	}

	if val, ok := kv[key].(T); ok {
		return val, true
	}

	slog.Debug("key with type not found", "key", key, "default", defaultValue[0])
	return defaultValue[0], false
}
