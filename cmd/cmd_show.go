// cmd_show.go - show Command
// Hauptfunktionen: ShowHandler, showInfo, formatArrayValue, humanNumber
package cmd

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/mlexport/artifact"
	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/fs/ggml"
	"github.com/ollama/mlexport/graph"
)

// ShowHandler - Zeigt Metadaten und Graph-Statistik eines Artefakts an
func ShowHandler(cmd *cobra.Command, args []string) error {
	m, err := artifact.Open(args[0])
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if labels, _ := cmd.Flags().GetBool("labels"); labels {
		for i, l := range m.KV.Labels() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, l)
		}
		return nil
	}

	return showInfo(m, verbose, cmd.OutOrStdout())
}

// showInfo - Rendert die Abschnitte Model, Input, Classifier, Graph
func showInfo(m *convert.Model, verbose bool, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows())
		table.Render()
		fmt.Fprintln(w)
	}

	kv := m.KV
	tableRender("Model", func() (rows [][]string) {
		rows = append(rows, []string{"", "architecture", kv.Architecture()})
		if name := kv.String("general.name"); name != "" {
			rows = append(rows, []string{"", "name", name})
		}
		rows = append(rows, []string{"", "type", kv.Kind()})
		rows = append(rows, []string{"", "parameters", humanNumber(m.Graph.ParameterCount())})
		rows = append(rows, []string{"", "precision", kv.Precision().String()})
		if m.Version > 0 {
			rows = append(rows, []string{"", "gguf version", fmt.Sprint(m.Version)})
		}
		return
	})

	in := kv.Input()
	tableRender("Input", func() (rows [][]string) {
		rows = append(rows, []string{"", "name", in.Name})
		rows = append(rows, []string{"", "shape", fmt.Sprint(in.Shape)})
		rows = append(rows, []string{"", "scale", fmt.Sprintf("%g", in.Scale)})
		if len(in.Bias) > 0 {
			rows = append(rows, []string{"", "bias", fmt.Sprint(in.Bias)})
		}
		rows = append(rows, []string{"", "color layout", string(in.ColorLayout)})
		return
	})

	if labels := kv.Labels(); len(labels) > 0 {
		tableRender("Classifier", func() (rows [][]string) {
			rows = append(rows, []string{"", "predicted feature", kv.PredictedFeatureName()})
			rows = append(rows, []string{"", "probabilities", kv.ProbabilitiesName()})
			rows = append(rows, []string{"", "normalized", fmt.Sprint(kv.Normalized())})
			rows = append(rows, []string{"", "classes", fmt.Sprint(len(labels))})
			rows = append(rows, []string{"", "labels", formatArrayValue(labels, 60)})
			return
		})
	}

	tableRender("Graph", func() (rows [][]string) {
		counts := m.Graph.OpCounts()
		ops := slices.SortedFunc(maps.Keys(counts), func(a, b graph.Op) int {
			return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
		})
		for _, op := range ops {
			rows = append(rows, []string{"", string(op), fmt.Sprint(counts[op])})
		}
		rows = append(rows, []string{"", "nodes", fmt.Sprint(len(m.Graph.Nodes))})
		return
	})

	if verbose {
		tableRender("Metadata", func() (rows [][]string) {
			for _, k := range slices.Sorted(kv.Keys()) {
				if strings.HasPrefix(k, "graph.") {
					continue
				}

				var v string
				switch vData := kv.Value(k).(type) {
				case []string:
					v = formatArrayValue(vData, 40)
				case string:
					v = vData
				case float32:
					v = fmt.Sprintf("%g", vData)
				default:
					v = fmt.Sprintf("%v", vData)
				}
				rows = append(rows, []string{"", k, v})
			}
			return
		})

		tableRender("Tensors", func() (rows [][]string) {
			layers := ggml.GroupLayers(m.Tensors())
			for _, name := range slices.Sorted(maps.Keys(layers)) {
				layer := layers[name]
				rows = append(rows, []string{"", name, fmt.Sprintf("%d tensors", len(layer)), humanNumber(layer.Size()) + "B"})
				for _, k := range slices.Sorted(maps.Keys(layer)) {
					t := layer[k]
					rows = append(rows, []string{"", "  " + t.Name, t.Type(), fmt.Sprint(t.Dims())})
				}
			}
			return
		})
	}

	return nil
}

// formatArrayValue - Kuerzt Arrays auf etwa targetWidth Zeichen
func formatArrayValue[T any](vData []T, targetWidth int) string {
	var itemsToShow int
	totalWidth := 1

	for i := range vData {
		itemStr := fmt.Sprintf("%v", vData[i])
		width := runewidth.StringWidth(itemStr)

		if i > 0 {
			width += 2
		}

		if totalWidth+width > targetWidth && i > 0 {
			break
		}

		totalWidth += width
		itemsToShow++
	}

	if itemsToShow < len(vData) {
		v := fmt.Sprintf("%v", vData[:itemsToShow])
		v = strings.TrimSuffix(v, "]")
		v += fmt.Sprintf(" ...+%d more]", len(vData)-itemsToShow)
		return v
	}
	return fmt.Sprintf("%v", vData)
}

// humanNumber - 3504872 -> 3.50M
func humanNumber(n uint64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", float64(n)/1e3)
	}
	return fmt.Sprint(n)
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show ARTIFACT",
		Short: "Show information for an exported artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowHandler,
	}

	showCmd.Flags().Bool("labels", false, "Print the class labels, one per line")
	showCmd.Flags().BoolP("verbose", "v", false, "Show all metadata and tensors")

	return showCmd
}
