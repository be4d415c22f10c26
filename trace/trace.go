// MODUL: trace
// ZWECK: Modell einmal ausfuehren und den entstehenden Berechnungsgraphen aufzeichnen
// INPUT: Modul mit Forward-Pass, synthetischer Beispiel-Eingang
// OUTPUT: Eingefrorener graph.Graph
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml, ml/backend/cpu, graph
// HINWEISE: Jede Operation wird eager berechnet und gleichzeitig als Knoten erfasst.
//           Datenabhaengige Verzweigungen im Modell werden nicht generalisiert.

package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/ollama/mlexport/graph"
	"github.com/ollama/mlexport/ml"
	"github.com/ollama/mlexport/ml/backend/cpu"
)

// ErrTraceFailed wird zurueckgegeben wenn das Modell waehrend des Tracings fehlschlaegt
var ErrTraceFailed = errors.New("trace failed")

// Module ist alles mit einem Forward-Pass ueber ml.Context
type Module interface {
	Forward(ctx ml.Context, x ml.Tensor) ml.Tensor
}

// Example ist der synthetische Eingang fuer den Trace
type Example struct {
	Name  string
	Shape []int
	Data  []float32
}

// DefaultInputName ist der Name des Graph-Eingangs vor der Konvertierung
const DefaultInputName = "input"

// RandomExample zieht gleichverteilte Werte aus [0, 1), analog zu torch.rand
func RandomExample(seed uint64, shape ...int) Example {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]float32, ml.Elements(shape))
	for i := range data {
		data[i] = rng.Float32()
	}
	return Example{Name: DefaultInputName, Shape: slices.Clone(shape), Data: data}
}

// Trace fuehrt m einmal auf ex aus und gibt den aufgezeichneten Graphen zurueck
func Trace(m Module, ex Example) (*graph.Graph, error) {
	g, _, err := run(m, ex)
	return g, err
}

// Eager fuehrt m auf ex aus und gibt nur die Ausgabe zurueck
func Eager(m Module, ex Example) (*cpu.Tensor, error) {
	_, out, err := run(m, ex)
	return out, err
}

func run(m Module, ex Example) (g *graph.Graph, out *cpu.Tensor, err error) {
	if ex.Name == "" {
		ex.Name = DefaultInputName
	}

	ctx := NewContext()
	defer func() {
		if r := recover(); r != nil {
			g, out = nil, nil
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", ErrTraceFailed, e)
			} else {
				err = fmt.Errorf("%w: %v", ErrTraceFailed, r)
			}
		}
	}()

	x := ctx.Input(ex.Name, ex.Data, ex.Shape...)
	y := m.Forward(ctx, x)
	ctx.Forward(y)

	g = ctx.Graph()
	if err := g.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTraceFailed, err)
	}

	slog.Debug("traced graph", "nodes", len(g.Nodes), "params", len(g.Params), "output", g.Outputs[0].Shape)
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("traced output", "values", ml.Dump(y, ml.DumpWithPrecision(3), ml.DumpWithEdgeItems(3), ml.DumpWithThreshold(16)))
	}
	return g, y.(*Tensor).t, nil
}
