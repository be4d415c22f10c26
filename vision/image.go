// MODUL: image
// ZWECK: Bilder laden und auf die Eingangsgroesse eines Klassifikators bringen
// INPUT: Dateipfad, Bytes oder io.Reader
// OUTPUT: Image mit dekodiertem RGBA-Bild
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei Load
// ABHAENGIGKEITEN: golang.org/x/image/draw, golang.org/x/image/bmp, golang.org/x/image/webp
// HINWEISE: Alle Bilder werden als RGBA konvertiert, Alpha wird auf Weiss gelegt

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image enthaelt ein dekodiertes Bild
type Image struct {
	RGBA   *image.RGBA
	Format ImageFormat
}

// Width gibt die Breite in Pixeln zurueck
func (img *Image) Width() int { return img.RGBA.Bounds().Dx() }

// Height gibt die Hoehe in Pixeln zurueck
func (img *Image) Height() int { return img.RGBA.Bounds().Dy() }

// Load laedt ein Bild von einem Dateipfad
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}
	return FromBytes(data)
}

// Decode dekodiert ein Bild aus einem io.Reader
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("daten lesen fehlgeschlagen: %w", err)
	}
	return FromBytes(data)
}

// FromBytes dekodiert ein Bild aus Byte-Daten
func FromBytes(data []byte) (*Image, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}

	return &Image{RGBA: toRGBA(img), Format: format}, nil
}

// FromImage uebernimmt ein bereits dekodiertes image.Image
func FromImage(img image.Image) *Image {
	return &Image{RGBA: toRGBA(img), Format: FormatUnknown}
}

// toRGBA konvertiert ein beliebiges image.Image zu *image.RGBA mit Ursprung (0,0)
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// ============================================================================
// Groesse und Zuschnitt
// ============================================================================

// CropMode bestimmt wie ein Bild auf die Eingangsgroesse gebracht wird
type CropMode int

const (
	// CropCenter skaliert bis die kuerzere Seite passt und schneidet mittig zu
	CropCenter CropMode = iota
	// ScaleFill streckt das Bild ohne Ruecksicht auf das Seitenverhaeltnis
	ScaleFill
)

// ParseCropMode parst "center" oder "fill"
func ParseCropMode(s string) (CropMode, error) {
	switch s {
	case "", "center", "centercrop":
		return CropCenter, nil
	case "fill", "scalefill":
		return ScaleFill, nil
	default:
		return CropCenter, fmt.Errorf("unbekannter crop modus %q", s)
	}
}

// Prepare legt Alpha auf Weiss und bringt das Bild auf width x height
func Prepare(img *Image, width, height int, mode CropMode) (*Image, error) {
	img = Composite(img)

	switch mode {
	case ScaleFill:
		return Resize(img, width, height)
	case CropCenter:
		if width <= 0 || height <= 0 {
			return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
		}
		w, h := fillSize(img.Width(), img.Height(), width, height)
		scaled, err := Resize(img, w, h)
		if err != nil {
			return nil, err
		}
		return CenterCrop(scaled, width, height)
	default:
		return nil, fmt.Errorf("unbekannter crop modus %d", mode)
	}
}

// Resize skaliert ein Bild bilinear auf die angegebene Groesse
func Resize(img *Image, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
	}
	if img.Width() == width && img.Height() == height {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.RGBA, img.RGBA.Bounds(), draw.Src, nil)
	return &Image{RGBA: dst, Format: img.Format}, nil
}

// fillSize berechnet die kleinste Groesse mit Seitenverhaeltnis, die minW x minH ueberdeckt
func fillSize(srcW, srcH, minW, minH int) (int, int) {
	ratio := max(float64(minW)/float64(srcW), float64(minH)/float64(srcH))

	w := max(int(float64(srcW)*ratio+0.5), minW)
	h := max(int(float64(srcH)*ratio+0.5), minH)
	return w, h
}

// CenterCrop schneidet einen zentrierten Bereich aus
func CenterCrop(img *Image, width, height int) (*Image, error) {
	if width > img.Width() || height > img.Height() {
		return nil, fmt.Errorf("crop groesser als bild: %dx%d > %dx%d", width, height, img.Width(), img.Height())
	}

	offsetX := (img.Width() - width) / 2
	offsetY := (img.Height() - height) / 2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img.RGBA, image.Pt(offsetX, offsetY), draw.Src)
	return &Image{RGBA: dst, Format: img.Format}, nil
}

// Composite entfernt Alpha-Kanal durch weissen Hintergrund
func Composite(img *Image) *Image {
	return CompositeWithColor(img, color.White)
}

// CompositeWithColor entfernt Alpha-Kanal mit gegebener Hintergrundfarbe
func CompositeWithColor(img *Image, bg color.Color) *Image {
	bounds := img.RGBA.Bounds()
	dst := image.NewRGBA(bounds)

	draw.Draw(dst, bounds, &image.Uniform{bg}, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img.RGBA, bounds.Min, draw.Over)

	return &Image{RGBA: dst, Format: img.Format}
}
