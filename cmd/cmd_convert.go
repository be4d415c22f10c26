// cmd_convert.go - convert Command
// Hauptfunktionen: ConvertHandler, configFromFlags, newConvertCmd
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/mlexport/artifact"
	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/pipeline"
	typesmodel "github.com/ollama/mlexport/types/model"
	"github.com/ollama/mlexport/weights"
)

// configFromFlags - Startet beim Preset der Variante, gesetzte Flags ueberschreiben es
func configFromFlags(cmd *cobra.Command) (pipeline.Config, error) {
	flags := cmd.Flags()

	s, _ := flags.GetString("variant")
	v, err := pipeline.ParseVariant(s)
	if err != nil {
		return pipeline.Config{}, err
	}
	c := pipeline.Preset(v)

	if flags.Changed("format") {
		s, _ := flags.GetString("format")
		if c.Format, err = artifact.ParseFormat(s); err != nil {
			return pipeline.Config{}, err
		}
	}

	if flags.Changed("precision") {
		s, _ := flags.GetString("precision")
		if c.Precision, err = convert.ParsePrecision(s); err != nil {
			return pipeline.Config{}, err
		}
	}

	if flags.Changed("softmax") {
		c.Softmax, _ = flags.GetBool("softmax")
	}
	if flags.Changed("labels-url") {
		c.LabelsURL, _ = flags.GetString("labels-url")
	}
	if flags.Changed("insecure-skip-verify") {
		c.InsecureSkipVerify, _ = flags.GetBool("insecure-skip-verify")
	}
	if flags.Changed("seed") {
		c.Seed, _ = flags.GetUint64("seed")
	}

	c.Arch, _ = flags.GetString("arch")
	c.Weights, _ = flags.GetString("weights")
	// arch:weights in einem Wert, --weights hat Vorrang
	if strings.Contains(c.Arch, ":") {
		n := typesmodel.ParseName(c.Arch)
		if err := n.Validate(); err != nil {
			return pipeline.Config{}, err
		}
		c.Arch = n.Arch
		if !flags.Changed("weights") {
			c.Weights = n.Weights
		}
	}
	c.WeightsFile, _ = flags.GetString("weights-file")
	c.Output, _ = flags.GetString("output")
	if name, _ := flags.GetString("name"); name != "" {
		c.Name = name
	}

	return c, nil
}

// ConvertHandler - Fuehrt den Export aus und meldet den Pfad
func ConvertHandler(cmd *cobra.Command, args []string) error {
	c, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	res, err := pipeline.Run(cmd.Context(), c)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d labels)\n", res.Path, c.Format, len(res.Labels))
	return nil
}

// newConvertCmd - Erstellt den convert Command
func newConvertCmd() *cobra.Command {
	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Fetch labels, load weights, trace and write an artifact",
		Args:  cobra.NoArgs,
		RunE:  ConvertHandler,
	}

	convertCmd.Flags().String("variant", "1", "Preset: 1 = single file with raw scores, 2 = package with softmax")
	convertCmd.Flags().StringP("output", "o", "", "Output path (default <name>.gguf or <name>.mlpackage)")
	convertCmd.Flags().String("format", "", "Artifact format: file or package (overrides the variant)")
	convertCmd.Flags().Bool("softmax", false, "Append a softmax stage (overrides the variant)")
	convertCmd.Flags().String("labels-url", "", "URL of the JSON label list")
	convertCmd.Flags().Bool("insecure-skip-verify", false, "Skip TLS certificate verification for the label download")
	convertCmd.Flags().String("arch", pipeline.DefaultArchitecture, "Model architecture, optionally as arch:weights")
	convertCmd.Flags().String("weights", pipeline.DefaultWeights, "Published weight set ("+strings.Join(weights.Names(pipeline.DefaultArchitecture), ", ")+")")
	convertCmd.Flags().String("weights-file", "", "Local .pth or .safetensors checkpoint instead of a download")
	convertCmd.Flags().String("precision", "", "Stored weight precision: float32 or float16")
	convertCmd.Flags().String("name", pipeline.DefaultName, "Model name")
	convertCmd.Flags().Uint64("seed", 0, "Seed for the synthetic trace input (default: random)")

	return convertCmd
}
