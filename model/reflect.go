// Package model - Reflection-basierte Parameter-Benennung
//
// Dieses Modul enthält die Reflection-Logik, die die Parameter einer
// Modell-Struktur über ihre gguf-Tags benennt und in Base registriert.
//
// Hauptkomponenten:
// - populateFields: Durchläuft Strukturfelder rekursiv
// - setPointer: Folgt Pointer- und Interface-Feldern
// - Tag: GGUF-Tag-Struktur für Parameter-Namen
// - parseTag: Parst GGUF-Tags aus Struct-Tags

package model

import (
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/ollama/mlexport/ml"
)

// Tag repräsentiert einen geparsten GGUF-Tag
type Tag struct {
	name,
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix,
	suffix string
	alternatives []string
}

// parseTag parst einen GGUF-Tag-String in eine Tag-Struktur
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	if len(parts) > 0 {
		tag.name = parts[0]

		for _, part := range parts[1:] {
			if value, ok := strings.CutPrefix(part, "alt:"); ok && tag.name == "" {
				// Alternative zum Primärnamen erheben wenn kein Primärname
				tag.name = value
				slog.Warn("gguf tag has alt: but no primary name", "tag", s)
			} else if ok {
				tag.alternatives = append(tag.alternatives, value)
			}
			if value, ok := strings.CutPrefix(part, "pre:"); ok {
				tag.prefix = value
			}
			if value, ok := strings.CutPrefix(part, "suf:"); ok {
				tag.suffix = value
			}
		}
	}

	return
}

var (
	baseType  = reflect.TypeOf(Base{})
	paramType = reflect.TypeOf((*ml.Parameter)(nil))
)

// populateFields durchläuft Strukturfelder rekursiv und registriert alle
// nicht-nil Parameter unter ihren vollständigen Namen
func populateFields(base *Base, v reflect.Value, tags ...Tag) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := range t.NumField() {
		tt := t.Field(i).Type
		vv := v.Field(i)
		if !vv.CanSet() || tt == baseType {
			continue
		}

		// Kopie erstellen
		tagsCopy := tags
		if tag := t.Field(i).Tag.Get("gguf"); tag != "" {
			tagsCopy = append(tagsCopy, parseTag(tag))
		}

		switch {
		case tt == paramType:
			if vv.IsNil() {
				continue
			}

			var names []string
			for _, name := range buildTensorNames(tagsCopy, "", "") {
				names = append(names, strings.Join(name, "."))
			}
			if len(names) == 0 {
				slog.Warn("parameter without gguf tag", "field", t.Field(i).Name)
				continue
			}

			p := vv.Interface().(*ml.Parameter)
			p.Name = names[0]
			base.params = append(base.params, &param{names: names, p: p})
		case tt.Kind() == reflect.Pointer || tt.Kind() == reflect.Interface:
			setPointer(base, vv, tagsCopy)
		case tt.Kind() == reflect.Slice || tt.Kind() == reflect.Array:
			for i := range vv.Len() {
				vvv := vv.Index(i)
				if vvv.Kind() == reflect.Pointer || vvv.Kind() == reflect.Interface {
					setPointer(base, vvv, append(tagsCopy, Tag{name: strconv.Itoa(i)}))
				} else {
					populateFields(base, vvv, append(tagsCopy, Tag{name: strconv.Itoa(i)})...)
				}
			}
		case tt.Kind() == reflect.Struct:
			populateFields(base, vv, tagsCopy...)
		}
	}
}

// buildTensorNames baut die vollständigen Parameter-Namen aus Tags
func buildTensorNames(tags []Tag, prefix, suffix string) (fullNames [][]string) {
	if len(tags) > 0 {
		var names []string
		if tags[0].name != "" {
			for _, n := range append([]string{tags[0].name}, tags[0].alternatives...) {
				names = append(names, prefix+n+suffix)
			}
		}
		childNames := buildTensorNames(tags[1:], tags[0].prefix, tags[0].suffix)
		if len(names) == 0 {
			// Aktueller Tag hat keinen Namen, nur Kind-Namen verwenden
			fullNames = append(fullNames, childNames...)
		} else if len(childNames) == 0 {
			// Aktueller Tag hat Namen aber keine Kinder, Branches für jeden Namen erstellen
			for _, name := range names {
				fullNames = append(fullNames, []string{name})
			}
		} else {
			// Jeden Namen mit jedem Kind zusammenführen
			for _, name := range names {
				for _, childName := range childNames {
					fullNames = append(fullNames, append([]string{name}, childName...))
				}
			}
		}
	}

	return fullNames
}

// setPointer folgt nicht-nil Pointer- und Interface-Feldern
func setPointer(base *Base, v reflect.Value, tags []Tag) {
	if v.IsNil() {
		return
	}

	vv := v
	if v.Kind() == reflect.Interface {
		vv = vv.Elem()
		if vv.Kind() != reflect.Pointer {
			return
		}
	}

	populateFields(base, reflect.Indirect(vv), tags...)
}

// setBase setzt das eingebettete Base-Feld
func setBase(v reflect.Value, base Base) error {
	for i := range v.NumField() {
		if v.Field(i).Type() == baseType && v.Field(i).CanSet() {
			v.Field(i).Set(reflect.ValueOf(base))
			return nil
		}
	}
	return errors.New("model struct does not embed model.Base")
}
