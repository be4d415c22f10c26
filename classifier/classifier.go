// MODUL: classifier
// ZWECK: Exportiertes Artefakt laden und Bilder klassifizieren
// INPUT: Artefakt-Pfad (Datei oder Paket), Bilder
// OUTPUT: Top-k Vorhersagen mit Label und Wahrscheinlichkeit
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei Load
// ABHAENGIGKEITEN: artifact, convert, graph, vision, ml/backend/cpu
// HINWEISE: Eingaben sind Rohpixel 0..255, die Skalierung steckt im Graphen.
//           Rohwerte ohne Softmax werden fuer die Wahrscheinlichkeit nachnormalisiert.

package classifier

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/ollama/mlexport/artifact"
	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/ml/backend/cpu"
	"github.com/ollama/mlexport/vision"
)

// ErrNotClassifier wird zurueckgegeben wenn das Artefakt keinen Klassifikator-Kopf hat
var ErrNotClassifier = errors.New("classifier: artifact has no class labels")

// Prediction ist eine einzelne Klasse mit Rohwert und Wahrscheinlichkeit
type Prediction struct {
	Index       int
	Label       string
	Score       float32
	Probability float32
}

// Classifier fuehrt ein konvertiertes Modell auf der CPU aus
type Classifier struct {
	model  *convert.Model
	input  convert.ImageType
	labels []string
	output string

	// normalized: der Ausgang ist bereits eine Softmax
	normalized bool
}

// Load oeffnet ein Artefakt und prueft den Klassifikator-Kopf
func Load(path string) (*Classifier, error) {
	m, err := artifact.Open(path)
	if err != nil {
		return nil, err
	}
	return New(m)
}

// New erstellt einen Classifier fuer ein bereits geladenes Modell
func New(m *convert.Model) (*Classifier, error) {
	labels := m.KV.Labels()
	if len(labels) == 0 {
		return nil, ErrNotClassifier
	}

	input := m.KV.Input()
	if len(input.Shape) != 4 || input.Shape[0] != 1 {
		return nil, fmt.Errorf("%w: unsupported input shape %v", convert.ErrInvalidModel, input.Shape)
	}

	output := m.KV.ProbabilitiesName()
	if !m.Graph.IsOutput(output) {
		return nil, fmt.Errorf("%w: output %q not found", convert.ErrInvalidModel, output)
	}

	return &Classifier{model: m, input: input, labels: labels, output: output, normalized: m.KV.Normalized()}, nil
}

// Labels gibt die Klassenlabels zurueck
func (c *Classifier) Labels() []string {
	return c.labels
}

// Input beschreibt den erwarteten Bildeingang
func (c *Classifier) Input() convert.ImageType {
	return c.input
}

// Predict fuehrt den Graphen auf Rohpixeln (NCHW, 0..255) aus und gibt die
// Ausgabewerte pro Klasse zurueck
func (c *Classifier) Predict(pixels []float32) ([]float32, error) {
	x, err := cpu.FromFloats(pixels, c.input.Shape...)
	if err != nil {
		return nil, err
	}

	out, err := c.model.Graph.Execute(map[string]*cpu.Tensor{c.input.Name: x})
	if err != nil {
		return nil, err
	}

	scores := out[c.output].Data
	if len(scores) != len(c.labels) {
		return nil, fmt.Errorf("%w: %d scores for %d labels", convert.ErrInvalidModel, len(scores), len(c.labels))
	}
	return scores, nil
}

// Classify bereitet img vor und gibt die k besten Klassen zurueck
func (c *Classifier) Classify(img *vision.Image, mode vision.CropMode, k int) ([]Prediction, error) {
	prepared, err := vision.Prepare(img, c.input.Width(), c.input.Height(), mode)
	if err != nil {
		return nil, err
	}

	pixels, _, err := vision.Tensor(prepared, vision.ChannelOrder(c.input.ColorLayout))
	if err != nil {
		return nil, err
	}

	scores, err := c.Predict(pixels)
	if err != nil {
		return nil, err
	}

	return TopK(scores, c.labels, k, c.normalized), nil
}

// TopK sortiert die Klassen nach Score absteigend und gibt hoechstens k zurueck.
// Ist normalized false, werden die Wahrscheinlichkeiten per Softmax berechnet.
func TopK(scores []float32, labels []string, k int, normalized bool) []Prediction {
	probs := scores
	if !normalized {
		probs = softmax(scores)
	}

	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		preds[i] = Prediction{Index: i, Score: s, Probability: probs[i]}
		if i < len(labels) {
			preds[i].Label = labels[i]
		}
	}

	slices.SortStableFunc(preds, func(a, b Prediction) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if k > 0 && k < len(preds) {
		preds = preds[:k]
	}
	return preds
}

func softmax(scores []float32) []float32 {
	x, err := cpu.FromFloats(scores, 1, len(scores))
	if err != nil {
		return scores
	}

	t, err := cpu.Softmax(x)
	if err != nil {
		return scores
	}
	return t.Data
}
