// MODUL: image_test
// ZWECK: Tests fuer Laden, Zuschnitt und Tensor-Umwandlung
// INPUT: Synthetische Bilder und PNG-Bytes
// OUTPUT: Testresultate
// NEBENEFFEKTE: schreibt Testdateien in t.TempDir()
// ABHAENGIGKEITEN: testing, image, image/png, testify
// HINWEISE: Testet Resize, CenterCrop, Composite und NCHW Layout

package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createPNGBytes erzeugt PNG-Bytes aus einem einfarbigen Testbild
func createPNGBytes(w, h int, c color.Color) []byte {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			rgba.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, rgba)
	return buf.Bytes()
}

// stripes erzeugt ein Bild mit linker Haelfte rot, rechter Haelfte blau
func stripes(w, h int) *Image {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if x < w/2 {
				rgba.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				rgba.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	return FromImage(rgba)
}

func TestFromBytes(t *testing.T) {
	img, err := FromBytes(createPNGBytes(100, 50, color.RGBA{255, 0, 0, 255}))
	require.NoError(t, err)

	assert.Equal(t, 100, img.Width())
	assert.Equal(t, 50, img.Height())
	assert.Equal(t, FormatPNG, img.Format)

	_, err = FromBytes([]byte{0x00, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = FromBytes([]byte{0x89, 0x50, 0x4E, 0x47, 0x00})
	assert.Error(t, err, "kaputtes PNG")
}

func TestLoadAndDecode(t *testing.T) {
	data := createPNGBytes(80, 60, color.White)
	path := filepath.Join(t.TempDir(), "white.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, img.Width())

	img, err = Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 60, img.Height())

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromImageOffsetBounds(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(10, 10, 14, 12))
	img := FromImage(rgba)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.RGBA.Bounds())
}

func TestResize(t *testing.T) {
	img := stripes(100, 100)

	resized, err := Resize(img, 50, 25)
	require.NoError(t, err)
	assert.Equal(t, 50, resized.Width())
	assert.Equal(t, 25, resized.Height())

	same, err := Resize(img, 100, 100)
	require.NoError(t, err)
	assert.Same(t, img, same)

	_, err = Resize(img, 0, 50)
	assert.Error(t, err)
	_, err = Resize(img, 50, -1)
	assert.Error(t, err)
}

func TestFillSize(t *testing.T) {
	tests := []struct {
		srcW, srcH, minW, minH int
		expectW, expectH       int
	}{
		{200, 100, 100, 100, 200, 100}, // Breites Bild
		{100, 200, 100, 100, 100, 200}, // Hohes Bild
		{50, 50, 100, 100, 100, 100},   // Kleineres Bild hochskalieren
		{640, 480, 224, 224, 299, 224},
	}

	for _, tt := range tests {
		w, h := fillSize(tt.srcW, tt.srcH, tt.minW, tt.minH)
		if w != tt.expectW || h != tt.expectH {
			t.Errorf("fillSize(%d,%d,%d,%d) = (%d,%d), erwartet (%d,%d)",
				tt.srcW, tt.srcH, tt.minW, tt.minH, w, h, tt.expectW, tt.expectH)
		}
	}
}

func TestPrepare(t *testing.T) {
	img := stripes(400, 200)

	cropped, err := Prepare(img, 100, 100, CropCenter)
	require.NoError(t, err)
	assert.Equal(t, 100, cropped.Width())
	assert.Equal(t, 100, cropped.Height())

	// mittiger Zuschnitt: links rot, rechts blau
	left := cropped.RGBA.RGBAAt(5, 50)
	right := cropped.RGBA.RGBAAt(95, 50)
	assert.Equal(t, uint8(255), left.R)
	assert.Equal(t, uint8(255), right.B)

	filled, err := Prepare(img, 64, 32, ScaleFill)
	require.NoError(t, err)
	assert.Equal(t, 64, filled.Width())
	assert.Equal(t, 32, filled.Height())

	_, err = Prepare(img, 0, 10, CropCenter)
	assert.Error(t, err)
	_, err = Prepare(img, 10, 10, CropMode(9))
	assert.Error(t, err)
}

func TestParseCropMode(t *testing.T) {
	mode, err := ParseCropMode("fill")
	require.NoError(t, err)
	assert.Equal(t, ScaleFill, mode)

	mode, err = ParseCropMode("")
	require.NoError(t, err)
	assert.Equal(t, CropCenter, mode)

	_, err = ParseCropMode("letterbox")
	assert.Error(t, err)
}

func TestComposite(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := range 10 {
		for x := range 10 {
			rgba.Set(x, y, color.NRGBA{255, 0, 0, 128}) // Halbtransparentes Rot
		}
	}

	composited := Composite(FromImage(rgba))

	c := composited.RGBA.RGBAAt(5, 5)
	if c.A != 255 {
		t.Errorf("Alpha = %d, erwartet 255", c.A)
	}
	// Rot ueber Weiss: Rot bleibt voll, Gruen/Blau ungefaehr halb
	if c.R != 255 || c.G < 120 || c.G > 135 {
		t.Errorf("Farbe = %v, erwartet Rot gemischt mit Weiss", c)
	}
}

func TestCenterCrop(t *testing.T) {
	img := stripes(100, 100)

	cropped, err := CenterCrop(img, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, cropped.Width())

	_, err = CenterCrop(stripes(50, 50), 100, 100)
	assert.Error(t, err, "crop groesser als bild")
}

func TestTensor(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 1))
	rgba.Set(0, 0, color.RGBA{10, 20, 30, 255})
	rgba.Set(1, 0, color.RGBA{40, 50, 60, 255})
	img := FromImage(rgba)

	data, shape, err := Tensor(img, RGB)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 1, 2}, shape)
	assert.Equal(t, []float32{10, 40, 20, 50, 30, 60}, data)

	data, _, err = Tensor(img, BGR)
	require.NoError(t, err)
	assert.Equal(t, []float32{30, 60, 20, 50, 10, 40}, data)

	_, _, err = Tensor(img, "CMYK")
	assert.Error(t, err)
}

func TestToCHW(t *testing.T) {
	// [h=2, w=2, c=3]
	hwc := []float32{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	chw, err := ToCHW(hwc, 2, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 7, 10, 2, 5, 8, 11, 3, 6, 9, 12}, chw)

	_, err = ToCHW(hwc, 3, 2, 3)
	assert.Error(t, err)
}
