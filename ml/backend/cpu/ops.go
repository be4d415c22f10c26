// ops.go - Elementweise Operationen, Normalisierung und Pooling
// Enthaelt: Add, Scale, Clamp, RELU, BatchNorm, GlobalAvgPool2D, Dropout

package cpu

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Add addiert zwei Tensoren gleicher Form
func Add(a, b *Tensor) (*Tensor, error) {
	if !slices.Equal(a.Shape, b.Shape) {
		return nil, fmt.Errorf("%w: add %v and %v", ErrShape, a.Shape, b.Shape)
	}

	out := New(a.Shape...)
	for i := range out.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// Scale berechnet x*s + bias[c] mit optionalem Bias pro Kanal (Achse 1)
func Scale(x *Tensor, s float32, bias []float32) (*Tensor, error) {
	out := New(x.Shape...)
	if len(bias) == 0 {
		for i, v := range x.Data {
			out.Data[i] = v * s
		}
		return out, nil
	}

	if x.Dim(1) != len(bias) {
		return nil, fmt.Errorf("%w: scale bias of length %d for shape %v", ErrShape, len(bias), x.Shape)
	}

	n, c := x.Dim(0), x.Dim(1)
	inner := x.Elements() / max(n*c, 1)
	for i := range n {
		for ch := range c {
			off := (i*c + ch) * inner
			for k := range inner {
				out.Data[off+k] = x.Data[off+k]*s + bias[ch]
			}
		}
	}
	return out, nil
}

// Clamp begrenzt alle Werte auf [lo, hi] (ReLU6 = Clamp(0, 6))
func Clamp(x *Tensor, lo, hi float32) (*Tensor, error) {
	if lo > hi {
		return nil, fmt.Errorf("clamp: min %v greater than max %v", lo, hi)
	}

	out := New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = min(max(v, lo), hi)
	}
	return out, nil
}

// RELU setzt negative Werte auf 0
func RELU(x *Tensor) *Tensor {
	out := New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = max(v, 0)
	}
	return out
}

// BatchNorm wendet eine Batch-Normalisierung im Inferenzmodus an
func BatchNorm(x, weight, bias, mean, variance *Tensor, eps float32) (*Tensor, error) {
	n, c, h, w, err := nchw("batch_norm", x)
	if err != nil {
		return nil, err
	}

	for _, p := range []*Tensor{weight, bias, mean, variance} {
		if p == nil || p.Elements() != c {
			return nil, fmt.Errorf("%w: batch_norm statistics do not match %d channels", ErrShape, c)
		}
	}

	scale, shift := FoldBatchNorm(weight.Data, bias.Data, mean.Data, variance.Data, eps)

	out := New(x.Shape...)
	plane := h * w
	for i := range n {
		for ch := range c {
			off := (i*c + ch) * plane
			for k := range plane {
				out.Data[off+k] = x.Data[off+k]*scale[ch] + shift[ch]
			}
		}
	}
	return out, nil
}

// FoldBatchNorm fasst die Statistiken zu scale und shift pro Kanal zusammen:
// y = x*scale + shift mit scale = w/sqrt(var+eps), shift = b - mean*scale
func FoldBatchNorm(weight, bias, mean, variance []float32, eps float32) (scale, shift []float32) {
	scale = make([]float32, len(weight))
	shift = make([]float32, len(weight))
	for i := range weight {
		s := float64(weight[i]) / math.Sqrt(float64(variance[i])+float64(eps))
		scale[i] = float32(s)
		shift[i] = float32(float64(bias[i]) - float64(mean[i])*s)
	}
	return scale, shift
}

// GlobalAvgPool2D mittelt ueber H und W: [N, C, H, W] -> [N, C, 1, 1]
func GlobalAvgPool2D(x *Tensor) (*Tensor, error) {
	n, c, h, w, err := nchw("global_avg_pool", x)
	if err != nil {
		return nil, err
	}

	out := New(n, c, 1, 1)
	plane := h * w
	for i := range n * c {
		var sum float64
		for _, v := range x.Data[i*plane : (i+1)*plane] {
			sum += float64(v)
		}
		out.Data[i] = float32(sum / float64(plane))
	}
	return out, nil
}

// Dropout setzt Elemente mit Wahrscheinlichkeit p auf 0 und skaliert den Rest
func Dropout(x *Tensor, p float32, rng *rand.Rand) (*Tensor, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout: probability %v out of range [0, 1)", p)
	}

	out := New(x.Shape...)
	keep := 1 / (1 - p)
	for i, v := range x.Data {
		if rng.Float32() >= p {
			out.Data[i] = v * keep
		}
	}
	return out, nil
}
