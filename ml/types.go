// types.go - Datentypen und Konstanten fuer ML-Operationen
// Dieses Modul definiert Parameter und Operator-Optionen.
package ml

import "slices"

// Parameter ist ein benannter, unveraenderlicher Gewichts-Tensor (float32, row-major)
type Parameter struct {
	Name  string
	Shape []int
	Data  []float32
}

// NewParameter erstellt einen Parameter und prueft die Elementanzahl nicht
func NewParameter(name string, data []float32, shape ...int) *Parameter {
	return &Parameter{Name: name, Shape: slices.Clone(shape), Data: data}
}

// Elements gibt die Anzahl der Elemente laut Shape zurueck
func (p *Parameter) Elements() int {
	return Elements(p.Shape)
}

// Elements multipliziert alle Dimensionen
func Elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Conv2DParams beschreibt Stride, Padding, Dilation und Gruppen einer 2D-Faltung.
// Die Reihenfolge in den Arrays ist immer (Hoehe, Breite).
type Conv2DParams struct {
	Stride   [2]int
	Padding  [2]int
	Dilation [2]int
	Groups   int
}

// Normalize setzt Defaults fuer nicht gesetzte Felder
func (p Conv2DParams) Normalize() Conv2DParams {
	for i := range 2 {
		if p.Stride[i] == 0 {
			p.Stride[i] = 1
		}
		if p.Dilation[i] == 0 {
			p.Dilation[i] = 1
		}
	}
	if p.Groups == 0 {
		p.Groups = 1
	}
	return p
}
