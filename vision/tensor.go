// MODUL: tensor
// ZWECK: Bildpixel in einen NCHW-Eingangstensor umwandeln
// INPUT: Image, Kanalreihenfolge
// OUTPUT: float32-Werte 0..255 in NCHW und die zugehoerige Form
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: github.com/pdevine/tensor
// HINWEISE: Skalierung auf 0..1 uebernimmt der Skalierungsknoten im Artefakt

package vision

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// ChannelOrder ist die Reihenfolge der Farbkanaele im Tensor
type ChannelOrder string

const (
	RGB ChannelOrder = "RGB"
	BGR ChannelOrder = "BGR"
)

// Pixels gibt die Rohwerte 0..255 im HWC Layout zurueck
func Pixels(img *Image, order ChannelOrder) ([]float32, error) {
	r, b := 0, 2
	switch order {
	case RGB, "":
	case BGR:
		r, b = 2, 0
	default:
		return nil, fmt.Errorf("unbekannte kanalreihenfolge %q", order)
	}

	w, h := img.Width(), img.Height()
	out := make([]float32, 0, w*h*3)
	for y := range h {
		row := img.RGBA.Pix[y*img.RGBA.Stride:]
		for x := range w {
			px := row[4*x : 4*x+4]
			out = append(out, float32(px[r]), float32(px[1]), float32(px[b]))
		}
	}
	return out, nil
}

// ToCHW transponiert [h, w, c] nach [c, h, w]
func ToCHW(hwc []float32, h, w, c int) ([]float32, error) {
	if len(hwc) != h*w*c {
		return nil, fmt.Errorf("%d werte passen nicht zu %dx%dx%d", len(hwc), h, w, c)
	}

	t := tensor.New(tensor.WithShape(h, w, c), tensor.WithBacking(hwc))
	if err := t.T(2, 0, 1); err != nil {
		return nil, err
	}
	if err := t.Transpose(); err != nil {
		return nil, err
	}

	chw, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unerwarteter tensor typ %T", t.Data())
	}
	return chw, nil
}

// Tensor gibt das Bild als [1, 3, H, W] mit Rohwerten 0..255 zurueck
func Tensor(img *Image, order ChannelOrder) ([]float32, []int, error) {
	hwc, err := Pixels(img, order)
	if err != nil {
		return nil, nil, err
	}

	h, w := img.Height(), img.Width()
	chw, err := ToCHW(hwc, h, w, 3)
	if err != nil {
		return nil, nil, err
	}
	return chw, []int{1, 3, h, w}, nil
}
