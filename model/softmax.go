package model

import "github.com/ollama/mlexport/ml"

// softmax haengt eine Softmax ueber die Klassenachse an das innere Modell
type softmax struct {
	Model
}

// WithSoftmax gibt ein Modell zurueck, dessen Ausgabe Wahrscheinlichkeiten sind.
// Parameter, Laden und Modus werden an m delegiert.
func WithSoftmax(m Model) Model {
	return &softmax{Model: m}
}

func (m *softmax) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	return m.Model.Forward(ctx, x).Softmax(ctx)
}
