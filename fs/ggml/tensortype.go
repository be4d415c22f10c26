// tensortype.go - GGML TensorType Definitionen
// Enthält: TensorType Konstanten, Parsing und Größen

package ggml

// TensorType ist äquivalent zu ggml_type für einzelne Tensor-Typen.
// Hinweis: Diese sind nicht identisch mit FileType
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeBF16 TensorType = 30
)

// BlockSize gibt die Block-Groesse zurueck; alle unterstuetzten Typen sind unquantisiert
func (t TensorType) BlockSize() uint64 {
	return 1
}

// TypeSize gibt die Byte-Groesse pro Element zurueck, 0 fuer unbekannte Typen
func (t TensorType) TypeSize() uint64 {
	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16, TensorTypeBF16:
		return 2
	default:
		return 0
	}
}

// String gibt die String-Repräsentation des TensorType zurück
func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}
