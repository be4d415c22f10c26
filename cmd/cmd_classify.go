// cmd_classify.go - classify Command
// Hauptfunktionen: ClassifyHandler, newClassifyCmd
package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/mlexport/classifier"
	"github.com/ollama/mlexport/envconfig"
	"github.com/ollama/mlexport/vision"
)

// ClassifyHandler - Klassifiziert ein oder mehrere Bilder mit einem Artefakt
func ClassifyHandler(cmd *cobra.Command, args []string) error {
	top, _ := cmd.Flags().GetInt("top")
	crop, _ := cmd.Flags().GetString("crop")
	mode, err := vision.ParseCropMode(crop)
	if err != nil {
		return err
	}

	c, err := classifier.Load(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, path := range args[1:] {
		img, err := vision.Load(path)
		if err != nil {
			return err
		}

		preds, err := c.Classify(img, mode, top)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		var data [][]string
		for _, p := range preds {
			data = append(data, []string{p.Label, fmt.Sprintf("%.2f%%", p.Probability*100), fmt.Sprintf("%.4f", p.Score), fmt.Sprint(p.Index)})
		}

		if len(args) > 2 {
			fmt.Fprintln(w, path)
		}

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"LABEL", "PROBABILITY", "SCORE", "INDEX"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(data)
		table.Render()
	}

	return nil
}

// newClassifyCmd - Erstellt den classify Command
func newClassifyCmd() *cobra.Command {
	classifyCmd := &cobra.Command{
		Use:   "classify ARTIFACT IMAGE [IMAGE...]",
		Short: "Classify images with an exported artifact",
		Args:  cobra.MinimumNArgs(2),
		RunE:  ClassifyHandler,
	}

	classifyCmd.Flags().IntP("top", "k", int(envconfig.TopK()), "Number of classes to show (0 = all)")
	classifyCmd.Flags().String("crop", "center", "Resize mode: center or fill")

	return classifyCmd
}
