// Modul: options.go
// Beschreibung: Konfiguration der MobileNetV2-Stufen
// Hauptstrukturen:
//   - stage: Expansionsfaktor, Ausgangskanaele, Wiederholungen, Stride
//   - makeDivisible: Rundet Kanalzahlen auf Vielfache von 8

package mobilenetv2

const (
	inputChannels = 32
	lastChannels  = 1280
	roundNearest  = 8

	// BatchNorm-Epsilon der veroeffentlichten Gewichte
	eps = 1e-5
)

// stage beschreibt eine Folge von InvertedResidual-Bloecken
type stage struct {
	expand, channels, repeats, stride int
}

// stages in der Reihenfolge der Feature-Extraktion
var stages = []stage{
	{1, 16, 1, 1},
	{6, 24, 2, 2},
	{6, 32, 3, 2},
	{6, 64, 4, 2},
	{6, 96, 3, 1},
	{6, 160, 3, 2},
	{6, 320, 1, 1},
}

// makeDivisible rundet v auf ein Vielfaches von divisor, ohne mehr als 10% zu verlieren
func makeDivisible(v float32, divisor int) int {
	n := max(divisor, int(v+float32(divisor)/2)/divisor*divisor)
	if float32(n) < 0.9*v {
		n += divisor
	}
	return n
}
