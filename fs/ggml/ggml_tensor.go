// Package ggml - Tensor Datenstrukturen
//
// Dieses Modul enthaelt Tensor-bezogene Typen und Methoden:
// - Tensor: Einzelner Tensor mit Name, Shape, Kind
// - Tensors: Collection von Tensors mit Offset
// - Layer: Map von Tensor-Namen zu Tensors
package ggml

import (
	"io"
	"math"
	"strconv"
	"strings"
)

// Tensors repraesentiert eine Sammlung von Tensors
type Tensors struct {
	items  []*Tensor
	Offset uint64
}

// Items gibt alle Tensors in Dateireihenfolge zurueck
func (s Tensors) Items() []*Tensor {
	return s.items
}

// GroupLayers gruppiert Tensors nach Layer-Namen.
// Der Layer-Name reicht bis einschliesslich des ersten numerischen Segments,
// z.B. "features.3" oder "classifier.1".
func GroupLayers(ts []*Tensor) map[string]Layer {
	layers := make(map[string]Layer)
	for _, t := range ts {
		parts := strings.Split(t.Name, ".")
		split := 1
		for i, p := range parts[:len(parts)-1] {
			if _, err := strconv.Atoi(p); err == nil {
				split = i + 1
				break
			}
		}

		name := strings.Join(parts[:split], ".")
		if _, ok := layers[name]; !ok {
			layers[name] = make(Layer)
		}

		layers[name][strings.Join(parts[split:], ".")] = t
	}

	return layers
}

// Layer repraesentiert eine Gruppe von Tensors (z.B. ein Feature-Block)
type Layer map[string]*Tensor

// Size berechnet die Gesamtgroesse aller Tensors im Layer
func (l Layer) Size() (size uint64) {
	for _, t := range l {
		size += t.Size()
	}
	return size
}

// Tensor repraesentiert einen einzelnen GGML-Tensor
type Tensor struct {
	Name   string `json:"name"`
	Kind   uint32 `json:"kind"`
	Offset uint64 `json:"-"`

	// Shape ist die Anzahl der Elemente in jeder Dimension (innerste zuerst)
	Shape []uint64 `json:"shape"`

	io.WriterTo `json:"-"`
}

// block extrahiert die erste Block-Nummer aus dem Tensor-Namen
func (t Tensor) block() int {
	for p := range strings.SplitSeq(t.Name, ".") {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return math.MaxInt
}

// blockSize gibt die Block-Groesse basierend auf dem Tensor-Typ zurueck
func (t Tensor) blockSize() uint64 {
	return TensorType(t.Kind).BlockSize()
}

// typeSize gibt die Byte-Groesse pro Element zurueck
func (t Tensor) typeSize() uint64 {
	return TensorType(t.Kind).TypeSize()
}

// Elements gibt die Gesamtanzahl der Elemente im Tensor zurueck
func (t Tensor) Elements() uint64 {
	var count uint64 = 1
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// Size gibt die Groesse des Tensors in Bytes zurueck
func (t Tensor) Size() uint64 {
	return t.Elements() * t.typeSize() / t.blockSize()
}

// Type gibt den Typ-Namen als String zurueck
func (t Tensor) Type() string {
	return TensorType(t.Kind).String()
}

// Dims gibt die Shape in Zeilen-Major Reihenfolge zurueck (aeusserste zuerst)
func (t Tensor) Dims() []int {
	dims := make([]int, len(t.Shape))
	for i, n := range t.Shape {
		dims[len(t.Shape)-1-i] = int(n)
	}
	return dims
}
