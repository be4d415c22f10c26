// Package ggml - GGUF Container fuer exportierte Modelle
//
// Dieses Modul definiert die Kernstrukturen:
// - GGML: Dekodiertes Artefakt (KV-Metadaten + Tensor-Verzeichnis)
// - Decode: Laedt ein Artefakt aus einem Reader
// - DetectContentType: Erkennung anhand der Magic-Bytes
package ggml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ollama/mlexport/fs/util/bufioutil"
)

// GGML repraesentiert ein geladenes GGUF-Artefakt
type GGML struct {
	*gguf

	// Length ist die Groesse des Streams in Bytes
	Length int64
}

// Version gibt die GGUF-Version des Headers zurueck
func (g *GGML) Version() uint32 {
	return g.version
}

// Magic Constants fuer GGUF
const (
	// FILE_MAGIC_GGUF_LE fuer GGUF Little-Endian
	FILE_MAGIC_GGUF_LE = 0x46554747
	// FILE_MAGIC_GGUF_BE fuer GGUF Big-Endian
	FILE_MAGIC_GGUF_BE = 0x47475546
)

// ErrUnsupportedFormat wird zurueckgegeben wenn das Format nicht unterstuetzt wird
var ErrUnsupportedFormat = errors.New("unsupported model format")

// DetectContentType erkennt GGUF anhand der Magic-Bytes
func DetectContentType(b []byte) string {
	if len(b) < 4 {
		return ""
	}

	switch binary.LittleEndian.Uint32(b[:4]) {
	case FILE_MAGIC_GGUF_LE, FILE_MAGIC_GGUF_BE:
		return "gguf"
	default:
		return ""
	}
}

// Decode dekodiert ein GGUF-Artefakt aus dem Reader.
//
// maxArraySize bestimmt die maximale Array-Groesse fuer KV-Werte.
// Bei negativem Wert werden alle Arrays gesammelt.
func Decode(rs io.ReadSeeker, maxArraySize int) (*GGML, error) {
	rs = bufioutil.NewBufferedSeeker(rs, 32<<10)

	var magic uint32
	if err := binary.Read(rs, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}

	switch magic {
	case FILE_MAGIC_GGUF_LE:
	case FILE_MAGIC_GGUF_BE:
		return nil, fmt.Errorf("%w: big-endian gguf", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: invalid file magic %#x", ErrUnsupportedFormat, magic)
	}

	g, err := decodeGGUF(rs, maxArraySize)
	if err != nil {
		return nil, err
	}

	length, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	return &GGML{gguf: g, Length: length}, nil
}
