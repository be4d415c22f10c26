// MODUL: artifact
// ZWECK: Konvertiertes Modell als Datei oder als Paket-Verzeichnis schreiben und lesen
// INPUT: convert.Model, Zielpfad, Format
// OUTPUT: <name>.gguf oder <name>.mlpackage/{Manifest.json, Data/...}
// NEBENEFFEKTE: Schreibt ins Dateisystem; bestehende Ziele werden ersetzt
// ABHAENGIGKEITEN: convert, fs/ggml
// HINWEISE: Geschrieben wird immer in ein temporaeres Ziel im selben Verzeichnis,
//           danach per Rename an den endgueltigen Pfad

package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ollama/mlexport/convert"
	"github.com/ollama/mlexport/fs/ggml"
)

// ============================================================================
// Format
// ============================================================================

// Format bestimmt die Ablage des Artefakts
type Format int

const (
	// FormatFile schreibt eine einzelne GGUF-Datei
	FormatFile Format = iota
	// FormatPackage schreibt ein Verzeichnis mit Manifest und Daten
	FormatPackage
)

// ErrInvalidPackage wird bei fehlerhaften Paket-Verzeichnissen zurueckgegeben
var ErrInvalidPackage = errors.New("artifact: invalid package")

// ParseFormat parst "file" bzw. "package" (auch ueber die Endung)
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "file", "gguf":
		return FormatFile, nil
	case "package", "mlpackage", "dir":
		return FormatPackage, nil
	default:
		return FormatFile, fmt.Errorf("unknown artifact format %q", s)
	}
}

func (f Format) String() string {
	if f == FormatPackage {
		return "package"
	}
	return "file"
}

// Ext gibt die uebliche Endung des Formats zurueck
func (f Format) Ext() string {
	if f == FormatPackage {
		return ".mlpackage"
	}
	return ".gguf"
}

// ============================================================================
// Schreiben
// ============================================================================

// Save schreibt m nach path. Ein vorhandenes Ziel wird erst ersetzt,
// wenn das neue Artefakt vollstaendig geschrieben ist.
func Save(m *convert.Model, path string, format Format) error {
	var err error
	switch format {
	case FormatFile:
		err = saveFile(m, path)
	case FormatPackage:
		err = savePackage(m, path)
	default:
		err = fmt.Errorf("unknown artifact format %d", format)
	}
	if err != nil {
		return err
	}

	slog.Info("wrote artifact", "path", path, "format", format, "tensors", len(m.Graph.Params))
	return nil
}

func saveFile(m *convert.Model, path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := m.WriteFile(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

func savePackage(m *convert.Model, path string) error {
	tmp, err := os.MkdirTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := os.Chmod(tmp, 0o755); err != nil {
		return err
	}

	manifest := NewManifest(m.KV.String("general.name", m.KV.Architecture()))
	root, err := manifest.Root()
	if err != nil {
		return err
	}

	name := filepath.Join(tmp, dataDir, filepath.FromSlash(root.Path))
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := m.WriteFile(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, ManifestName), b, 0o644); err != nil {
		return err
	}

	return replace(tmp, path)
}

// replace verschiebt src nach dst; ein vorhandenes dst wird zuerst beiseite gelegt
func replace(src, dst string) error {
	if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
		return os.Rename(src, dst)
	} else if err != nil {
		return err
	}

	old := src + ".old"
	if err := os.Rename(dst, old); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		// altes Ziel wiederherstellen
		if rerr := os.Rename(old, dst); rerr != nil {
			slog.Warn("failed to restore previous artifact", "path", dst, "error", rerr)
		}
		return err
	}
	return os.RemoveAll(old)
}

// ============================================================================
// Lesen
// ============================================================================

// Open liest ein Artefakt in beiden Formen
func Open(path string) (*convert.Model, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		b, err := os.ReadFile(filepath.Join(path, ManifestName))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
		}

		manifest, err := ParseManifest(b)
		if err != nil {
			return nil, err
		}

		root, err := manifest.Root()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(path, dataDir, filepath.FromSlash(root.Path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ggml.ErrUnsupportedFormat, err)
	}
	if ggml.DetectContentType(magic[:]) != "gguf" {
		return nil, fmt.Errorf("%w: %s is not a GGUF file", ggml.ErrUnsupportedFormat, path)
	}

	return convert.ReadFile(f)
}
