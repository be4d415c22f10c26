// Package mobilenetv2 - MobileNetV2 Bildklassifikator
//
// Diese Datei enthaelt:
// - Model: Feature-Extraktor aus 19 Stufen plus Klassifikationskopf
// - New: Konstruktor fuer die Registry
//
// Die Parameternamen entsprechen dem torchvision State-Dict
// (features.N..., classifier.1.weight/bias).
package mobilenetv2

import (
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/nn"
	"github.com/ollama/mlexport/model"
)

// Architecture ist der Registry-Name
const Architecture = "mobilenet_v2"

// Model ist MobileNetV2 mit konfigurierbarem Breitenfaktor
type Model struct {
	model.Base

	Features   []Layer    `gguf:"features"`
	Classifier *nn.Linear `gguf:"classifier.1"`

	dropout float32
}

// New baut das Netz fuer c; die Gewichte werden spaeter geladen
func New(c model.Config) (model.Model, error) {
	in := makeDivisible(inputChannels*c.WidthMult, roundNearest)
	last := makeDivisible(lastChannels*max(1, c.WidthMult), roundNearest)

	features := []Layer{newConvNormActivation(3, in, 3, 2, 1)}
	for _, s := range stages {
		out := makeDivisible(float32(s.channels)*c.WidthMult, roundNearest)
		for i := range s.repeats {
			stride := 1
			if i == 0 {
				stride = s.stride
			}
			features = append(features, newInvertedResidual(in, out, stride, s.expand))
			in = out
		}
	}
	features = append(features, newConvNormActivation(in, last, 1, 1, 1))

	return &Model{
		Features:   features,
		Classifier: nn.NewLinear(last, c.NumClasses, true),
		dropout:    c.Dropout,
	}, nil
}

func (m *Model) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	for _, l := range m.Features {
		x = l.Forward(ctx, x)
	}

	x = x.GlobalAvgPool2D(ctx)
	x = x.Reshape(ctx, x.Dim(0), -1)

	if m.Training() && m.dropout > 0 {
		x = x.Dropout(ctx, m.dropout)
	}

	return m.Classifier.Forward(ctx, x)
}

func init() {
	model.Register(Architecture, New)
}
