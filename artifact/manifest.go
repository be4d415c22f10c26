// MODUL: manifest
// ZWECK: Manifest.json eines Paket-Artefakts erzeugen und lesen
// INPUT: Modellname bzw. Manifest-Bytes
// OUTPUT: Manifest mit geordneten Item-Eintraegen
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: google/uuid, wk8/go-ordered-map
// HINWEISE: Eintraege sind nach Einfuegereihenfolge geordnet, damit die Datei stabil bleibt

package artifact

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// ManifestName ist der Dateiname des Manifests im Paket
	ManifestName = "Manifest.json"

	// FileFormatVersion ist die Version des Paketformats
	FileFormatVersion = "1.0.0"

	dataDir   = "Data"
	bundleID  = "com.ollama.mlexport"
	modelFile = "model.gguf"
)

// ItemInfo beschreibt eine Datei unterhalb von Data/
type ItemInfo struct {
	Author      string `json:"author"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Path        string `json:"path"`
}

// Manifest ist der Inhalt von Manifest.json
type Manifest struct {
	FileFormatVersion   string                                   `json:"fileFormatVersion"`
	ItemInfoEntries     *orderedmap.OrderedMap[string, ItemInfo] `json:"itemInfoEntries"`
	RootModelIdentifier string                                   `json:"rootModelIdentifier"`
}

// NewManifest erstellt ein Manifest mit genau einem Modell-Eintrag
func NewManifest(name string) *Manifest {
	id := strings.ToUpper(uuid.NewString())

	entries := orderedmap.New[string, ItemInfo]()
	entries.Set(id, ItemInfo{
		Author:      bundleID,
		Description: fmt.Sprintf("%s model specification (GGUF)", name),
		Name:        modelFile,
		Path:        path.Join(bundleID, modelFile),
	})

	return &Manifest{
		FileFormatVersion:   FileFormatVersion,
		ItemInfoEntries:     entries,
		RootModelIdentifier: id,
	}
}

// ParseManifest dekodiert Manifest.json
func ParseManifest(b []byte) (*Manifest, error) {
	m := Manifest{ItemInfoEntries: orderedmap.New[string, ItemInfo]()}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	if m.FileFormatVersion == "" {
		return nil, fmt.Errorf("%w: missing fileFormatVersion", ErrInvalidPackage)
	}
	return &m, nil
}

// Root gibt den Eintrag des Wurzelmodells zurueck
func (m *Manifest) Root() (ItemInfo, error) {
	item, ok := m.ItemInfoEntries.Get(m.RootModelIdentifier)
	if !ok {
		return ItemInfo{}, fmt.Errorf("%w: root model %q not listed", ErrInvalidPackage, m.RootModelIdentifier)
	}

	clean := path.Clean(item.Path)
	if item.Path == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return ItemInfo{}, fmt.Errorf("%w: invalid item path %q", ErrInvalidPackage, item.Path)
	}
	item.Path = clean
	return item, nil
}
