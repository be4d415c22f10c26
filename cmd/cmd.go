// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs, newLogger
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/mlexport/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-30s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// newLogger - Text-Handler mit kurzem Quelldateinamen
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level < slog.LevelInfo,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "mlexport",
		Short:         "Export pretrained image classifiers as deployment artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	convertCmd := newConvertCmd()
	showCmd := newShowCmd()
	classifyCmd := newClassifyCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{convertCmd, showCmd, classifyCmd} {
		switch cmd {
		case convertCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["MLEXPORT_DEBUG"],
				envVars["MLEXPORT_CACHE"],
				envVars["MLEXPORT_LABELS_URL"],
				envVars["MLEXPORT_INSECURE_SKIP_VERIFY"],
				envVars["MLEXPORT_HTTP_TIMEOUT"],
				envVars["HTTPS_PROXY"],
			})
		case classifyCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["MLEXPORT_DEBUG"], envVars["MLEXPORT_TOP_K"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["MLEXPORT_DEBUG"]})
		}
	}

	rootCmd.AddCommand(convertCmd, showCmd, classifyCmd)
	return rootCmd
}
