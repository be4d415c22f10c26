// nn.go - Wiederverwendbare Schichten mit benannten Parametern
// Enthaelt: Conv2D, BatchNorm2D, Linear
//
// Die gguf-Tags bestimmen die Parameternamen relativ zur einbettenden Struktur.
package nn

import "github.com/ollama/mlexport/ml"

// Conv2D ist eine 2D-Faltung mit Gewicht [O, C/groups, kH, kW] und optionalem Bias
type Conv2D struct {
	Weight *ml.Parameter `gguf:"weight"`
	Bias   *ml.Parameter `gguf:"bias"`
}

// NewConv2D legt die Parameter mit ihren Formen an; Daten kommen spaeter vom Loader
func NewConv2D(in, out, kernel, groups int, bias bool) *Conv2D {
	m := &Conv2D{Weight: ml.NewParameter("", nil, out, in/groups, kernel, kernel)}
	if bias {
		m.Bias = ml.NewParameter("", nil, out)
	}
	return m
}

func (m *Conv2D) Forward(ctx ml.Context, t ml.Tensor, p ml.Conv2DParams) ml.Tensor {
	return t.Conv2D(ctx, m.Weight, m.Bias, p)
}

// BatchNorm2D normalisiert pro Kanal mit den gespeicherten Laufstatistiken
type BatchNorm2D struct {
	Weight      *ml.Parameter `gguf:"weight"`
	Bias        *ml.Parameter `gguf:"bias"`
	RunningMean *ml.Parameter `gguf:"running_mean"`
	RunningVar  *ml.Parameter `gguf:"running_var"`
}

func NewBatchNorm2D(channels int) *BatchNorm2D {
	return &BatchNorm2D{
		Weight:      ml.NewParameter("", nil, channels),
		Bias:        ml.NewParameter("", nil, channels),
		RunningMean: ml.NewParameter("", nil, channels),
		RunningVar:  ml.NewParameter("", nil, channels),
	}
}

func (m *BatchNorm2D) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	return t.BatchNorm(ctx, m.Weight, m.Bias, m.RunningMean, m.RunningVar, eps)
}

// Linear ist eine vollverbundene Schicht mit Gewicht [out, in]
type Linear struct {
	Weight *ml.Parameter `gguf:"weight"`
	Bias   *ml.Parameter `gguf:"bias"`
}

func NewLinear(in, out int, bias bool) *Linear {
	m := &Linear{Weight: ml.NewParameter("", nil, out, in)}
	if bias {
		m.Bias = ml.NewParameter("", nil, out)
	}
	return m
}

func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return t.Linear(ctx, m.Weight, m.Bias)
}
