// conv.go - 2D-Faltung
// Enthaelt: Conv2D (im2col + GEMM), depthwise Spezialfall, ConvOutputSize

package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ollama/mlexport/ml"
)

// ConvOutputSize berechnet die Ausgabegroesse einer Dimension
func ConvOutputSize(in, kernel, stride, padding, dilation int) int {
	return (in+2*padding-dilation*(kernel-1)-1)/stride + 1
}

// Conv2D faltet x [N, C, H, W] mit w [O, C/groups, kH, kW]; b [O] ist optional
func Conv2D(x, w, b *Tensor, p ml.Conv2DParams) (*Tensor, error) {
	p = p.Normalize()

	n, c, h, wd, err := nchw("conv2d", x)
	if err != nil {
		return nil, err
	}

	if len(w.Shape) != 4 {
		return nil, fmt.Errorf("%w: conv2d weight must be 4D, got %v", ErrShape, w.Shape)
	}

	o, cg, kh, kw := w.Shape[0], w.Shape[1], w.Shape[2], w.Shape[3]
	if c%p.Groups != 0 || o%p.Groups != 0 || c/p.Groups != cg {
		return nil, fmt.Errorf("%w: conv2d input %v, weight %v, groups %d", ErrShape, x.Shape, w.Shape, p.Groups)
	}

	if b != nil && (len(b.Shape) != 1 || b.Shape[0] != o) {
		return nil, fmt.Errorf("%w: conv2d bias %v for %d output channels", ErrShape, b.Shape, o)
	}

	oh := ConvOutputSize(h, kh, p.Stride[0], p.Padding[0], p.Dilation[0])
	ow := ConvOutputSize(wd, kw, p.Stride[1], p.Padding[1], p.Dilation[1])
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("%w: conv2d output would be %dx%d for input %v", ErrShape, oh, ow, x.Shape)
	}

	out := New(n, o, oh, ow)
	if cg == 1 && o == p.Groups {
		depthwise(x, w, out, p)
	} else {
		grouped(x, w, out, p)
	}

	if b != nil {
		plane := oh * ow
		for i := range n {
			for j := range o {
				dst := out.Data[(i*o+j)*plane : (i*o+j+1)*plane]
				for k := range dst {
					dst[k] += b.Data[j]
				}
			}
		}
	}

	return out, nil
}

// grouped rechnet jede Gruppe als GEMM ueber eine im2col-Matrix
func grouped(x, w, out *Tensor, p ml.Conv2DParams) {
	n, c, h, wd := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	o, cg, kh, kw := w.Shape[0], w.Shape[1], w.Shape[2], w.Shape[3]
	oh, ow := out.Shape[2], out.Shape[3]
	og := o / p.Groups
	k := cg * kh * kw
	plane := oh * ow

	cols := make([]float32, k*plane)
	for i := range n {
		for g := range p.Groups {
			im2col(x.Data[(i*c+g*cg)*h*wd:(i*c+(g+1)*cg)*h*wd], cg, h, wd, kh, kw, oh, ow, p, cols)

			a := blas32.General{Rows: og, Cols: k, Stride: k, Data: w.Data[g*og*k : (g+1)*og*k]}
			bm := blas32.General{Rows: k, Cols: plane, Stride: plane, Data: cols}
			cm := blas32.General{Rows: og, Cols: plane, Stride: plane, Data: out.Data[(i*o+g*og)*plane : (i*o+(g+1)*og)*plane]}
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, bm, 0, cm)
		}
	}
}

// im2col entfaltet die Eingabe einer Gruppe in eine [C*kH*kW, oH*oW] Matrix
func im2col(src []float32, c, h, w, kh, kw, oh, ow int, p ml.Conv2DParams, dst []float32) {
	plane := oh * ow
	for ch := range c {
		for ky := range kh {
			for kx := range kw {
				row := dst[((ch*kh+ky)*kw+kx)*plane : ((ch*kh+ky)*kw+kx+1)*plane]
				for y := range oh {
					iy := y*p.Stride[0] - p.Padding[0] + ky*p.Dilation[0]
					for x := range ow {
						ix := x*p.Stride[1] - p.Padding[1] + kx*p.Dilation[1]
						if iy < 0 || iy >= h || ix < 0 || ix >= w {
							row[y*ow+x] = 0
							continue
						}
						row[y*ow+x] = src[(ch*h+iy)*w+ix]
					}
				}
			}
		}
	}
}

// depthwise rechnet eine Faltung mit groups == C == O direkt
func depthwise(x, w, out *Tensor, p ml.Conv2DParams) {
	n, c, h, wd := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	kh, kw := w.Shape[2], w.Shape[3]
	oh, ow := out.Shape[2], out.Shape[3]

	for i := range n {
		for ch := range c {
			src := x.Data[(i*c+ch)*h*wd : (i*c+ch+1)*h*wd]
			dst := out.Data[(i*c+ch)*oh*ow : (i*c+ch+1)*oh*ow]
			kernel := w.Data[ch*kh*kw : (ch+1)*kh*kw]
			for oy := range oh {
				for ox := range ow {
					var sum float32
					for ky := range kh {
						iy := oy*p.Stride[0] - p.Padding[0] + ky*p.Dilation[0]
						if iy < 0 || iy >= h {
							continue
						}
						for kx := range kw {
							ix := ox*p.Stride[1] - p.Padding[1] + kx*p.Dilation[1]
							if ix < 0 || ix >= wd {
								continue
							}
							sum += src[iy*wd+ix] * kernel[ky*kw+kx]
						}
					}
					dst[oy*ow+ox] = sum
				}
			}
		}
	}
}
