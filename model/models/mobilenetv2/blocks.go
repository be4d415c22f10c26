// Modul: blocks.go
// Beschreibung: Bausteine von MobileNetV2
// Hauptstrukturen:
//   - ConvNormActivation: Faltung, BatchNorm, ReLU6
//   - InvertedResidual: Expansion, Depthwise-Faltung, lineare Projektion, optionaler Shortcut

package mobilenetv2

import (
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/nn"
)

// Layer ist ein Element einer sequenziellen Schichtfolge
type Layer interface {
	Forward(ctx ml.Context, x ml.Tensor) ml.Tensor
}

// ConvNormActivation ist Conv2D ohne Bias, BatchNorm und ReLU6
type ConvNormActivation struct {
	Conv *nn.Conv2D      `gguf:"0"`
	Norm *nn.BatchNorm2D `gguf:"1"`

	params ml.Conv2DParams
}

func newConvNormActivation(in, out, kernel, stride, groups int) *ConvNormActivation {
	pad := (kernel - 1) / 2
	return &ConvNormActivation{
		Conv: nn.NewConv2D(in, out, kernel, groups, false),
		Norm: nn.NewBatchNorm2D(out),
		params: ml.Conv2DParams{
			Stride:  [2]int{stride, stride},
			Padding: [2]int{pad, pad},
			Groups:  groups,
		}.Normalize(),
	}
}

func (l *ConvNormActivation) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	x = l.Conv.Forward(ctx, x, l.params)
	x = l.Norm.Forward(ctx, x, eps)
	return x.Clamp(ctx, 0, 6)
}

// projection ist die lineare 1x1-Faltung am Ende eines Blocks
type projection struct {
	*nn.Conv2D
}

func (l *projection) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	return l.Conv2D.Forward(ctx, x, ml.Conv2DParams{}.Normalize())
}

// norm ist die BatchNorm nach der Projektion, ohne Aktivierung
type norm struct {
	*nn.BatchNorm2D
}

func (l *norm) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	return l.BatchNorm2D.Forward(ctx, x, eps)
}

// InvertedResidual: 1x1 Expansion (entfaellt bei Faktor 1), 3x3 Depthwise, 1x1 Projektion
type InvertedResidual struct {
	Conv []Layer `gguf:"conv"`

	residual bool
}

func newInvertedResidual(in, out, stride, expand int) *InvertedResidual {
	hidden := in * expand

	var layers []Layer
	if expand != 1 {
		layers = append(layers, newConvNormActivation(in, hidden, 1, 1, 1))
	}
	layers = append(layers,
		newConvNormActivation(hidden, hidden, 3, stride, hidden),
		&projection{nn.NewConv2D(hidden, out, 1, 1, false)},
		&norm{nn.NewBatchNorm2D(out)},
	)

	return &InvertedResidual{
		Conv:     layers,
		residual: stride == 1 && in == out,
	}
}

func (b *InvertedResidual) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	h := x
	for _, l := range b.Conv {
		h = l.Forward(ctx, h)
	}

	if b.residual {
		return x.Add(ctx, h)
	}
	return h
}
