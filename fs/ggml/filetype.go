// filetype.go - GGUF FileType Definitionen
// Enthält: FileType Konstanten, Parsing und Konvertierung zu TensorType

package ggml

import (
	"fmt"
	"log/slog"
	"strings"
)

// FileType ist der Go-Äquivalent zu llama_ftype für GGUF-Dateitypen.
// Die Werte entsprechen general.file_type.
type FileType uint32

const (
	FileTypeF32  FileType = 0
	FileTypeF16  FileType = 1
	FileTypeBF16 FileType = 32

	FileTypeUnknown = 1024
)

// ParseFileType parst den GGUF-Dateityp aus einem String.
// Geschrieben werden nur F32 und F16.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToUpper(s) {
	case "F32", "FLOAT32":
		return FileTypeF32, nil
	case "F16", "FLOAT16":
		return FileTypeF16, nil
	default:
		return FileTypeUnknown, fmt.Errorf("unsupported file type %s - supported types are %s, %s", s, FileTypeF32, FileTypeF16)
	}
}

// String gibt die String-Repräsentation des FileType zurück
func (t FileType) String() string {
	switch t {
	case FileTypeF32:
		return "F32"
	case FileTypeF16:
		return "F16"
	case FileTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// ToTensorType konvertiert FileType zu TensorType
func (ftype FileType) ToTensorType() TensorType {
	switch ftype {
	case FileTypeF32:
		return TensorTypeF32
	case FileTypeF16:
		return TensorTypeF16
	case FileTypeBF16:
		return TensorTypeBF16
	default:
		slog.Warn("unsupported file type", "type", ftype)
		return TensorTypeF32
	}
}
