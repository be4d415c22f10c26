// weights.go - Registry der veroeffentlichten Gewichtssaetze
// Bildet (Architektur, Name) auf Download-URL und Pruefsumme ab.
package weights

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"regexp"
	"slices"

	"github.com/ollama/mlexport/ml"
	typesmodel "github.com/ollama/mlexport/types/model"
)

// Fehler-Definitionen
var (
	ErrUnknownWeights     = errors.New("unknown weights")
	ErrUnavailable        = errors.New("weights unavailable")
	ErrChecksum           = errors.New("checksum mismatch")
	ErrUnsupportedFormat  = errors.New("unsupported weights format")
	ErrUnsupportedStorage = errors.New("unsupported tensor storage")
)

// StateDict bildet Parameternamen auf Gewichte ab
type StateDict map[string]*ml.Parameter

// Names gibt die Schluessel sortiert zurueck
func (sd StateDict) Names() []string {
	return slices.Sorted(maps.Keys(sd))
}

// Spec beschreibt einen veroeffentlichten Gewichtssatz
type Spec struct {
	Arch       string
	Name       string
	URL        string
	NumClasses int

	// InputSize ist die Bildgroesse, mit der die Gewichte evaluiert wurden
	InputSize int
}

// FileName ist der letzte Pfadteil der URL und der Name im Cache
func (s Spec) FileName() string {
	return path.Base(s.URL)
}

var hashPrefix = regexp.MustCompile(`-([a-f0-9]+)\.`)

// HashPrefix ist das im Dateinamen eingebettete SHA-256-Praefix, falls vorhanden
func (s Spec) HashPrefix() string {
	if m := hashPrefix.FindStringSubmatch(s.FileName()); m != nil {
		return m[1]
	}
	return ""
}

// Ref gibt den Namen in der Form arch:name zurueck
func (s Spec) Ref() typesmodel.Name {
	return typesmodel.Name{Arch: s.Arch, Weights: s.Name}
}

const defaultAlias = typesmodel.DefaultWeights

// registry: Architektur -> Gewichtsname -> Spec. DEFAULT ist ein Alias.
var registry = map[string]map[string]Spec{
	"mobilenet_v2": {
		"IMAGENET1K_V1": {
			URL:        "https://download.pytorch.org/models/mobilenet_v2-b0353104.pth",
			NumClasses: 1000,
			InputSize:  224,
		},
		"IMAGENET1K_V2": {
			URL:        "https://download.pytorch.org/models/mobilenet_v2-7ebf99e0.pth",
			NumClasses: 1000,
			InputSize:  224,
		},
	},
}

var aliases = map[string]map[string]string{
	"mobilenet_v2": {defaultAlias: "IMAGENET1K_V2"},
}

// Lookup sucht einen Gewichtssatz. Unbekannte Namen liefern ErrUnknownWeights
// mit einem Vorschlag.
func Lookup(arch, name string) (Spec, error) {
	specs, ok := registry[arch]
	if !ok {
		return Spec{}, typesmodel.Suggest(fmt.Errorf("%w: no weights for architecture %q", ErrUnknownWeights, arch), arch, slices.Collect(maps.Keys(registry)))
	}

	if alias, ok := aliases[arch][name]; ok {
		name = alias
	}

	s, ok := specs[name]
	if !ok {
		return Spec{}, typesmodel.Suggest(fmt.Errorf("%w: %s:%s", ErrUnknownWeights, arch, name), name, Names(arch))
	}

	s.Arch, s.Name = arch, name
	return s, nil
}

// Names listet die bekannten Gewichtsnamen einer Architektur inklusive Aliase
func Names(arch string) []string {
	names := slices.Collect(maps.Keys(registry[arch]))
	names = slices.AppendSeq(names, maps.Keys(aliases[arch]))
	slices.Sort(names)
	return names
}
