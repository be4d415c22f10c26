// Package model - Namen fuer Architektur- und Gewichtsreferenzen
// Enthaelt: Name-Struktur, Parsing, Validierung, Vorschlaege bei Tippfehlern
package model

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrInvalidName wird zurueckgegeben wenn ein Teil des Namens ungueltig ist
var ErrInvalidName = errors.New("invalid name")

// MissingPart markiert einen Teil, der durch einen Separator versprochen wurde, aber fehlt
const MissingPart = "!MISSING!"

// DefaultWeights ist der Gewichtsname wenn keiner angegeben wurde
const DefaultWeights = "DEFAULT"

// Name referenziert eine Architektur und einen veroeffentlichten Gewichtssatz
type Name struct {
	Arch    string
	Weights string
}

// ParseName parst einen Namen der Form
//
//	{ arch } ":" { weights }
//	{ arch }
//
// Fehlende Gewichte werden mit DefaultWeights belegt. Der Name ist nicht
// zwingend gueltig; dafuer gibt es [Name.IsValid].
func ParseName(s string) Name {
	var n Name
	if i := strings.LastIndex(s, ":"); i >= 0 {
		n.Arch, n.Weights = cmp.Or(s[:i], MissingPart), cmp.Or(s[i+1:], MissingPart)
	} else {
		n.Arch = s
	}
	n.Weights = cmp.Or(n.Weights, DefaultWeights)
	return n
}

// String gibt den Namen in der Form arch:weights zurueck
func (n Name) String() string {
	if n.Weights == "" {
		return n.Arch
	}
	return n.Arch + ":" + n.Weights
}

// LogValue gibt den Namen als String fuer slog zurueck
func (n Name) LogValue() slog.Value {
	return slog.StringValue(n.String())
}

// IsValid prueft beide Teile
func (n Name) IsValid() bool {
	return isValidPart(n.Arch) && isValidPart(n.Weights)
}

// Validate gibt einen Fehler mit dem ersten ungueltigen Teil zurueck
func (n Name) Validate() error {
	if !isValidPart(n.Arch) {
		return fmt.Errorf("%w: architecture %q", ErrInvalidName, n.Arch)
	}
	if !isValidPart(n.Weights) {
		return fmt.Errorf("%w: weights %q", ErrInvalidName, n.Weights)
	}
	return nil
}

// isValidPart: { alphanum | "_" } { alphanum | "-" | "_" | "." }*, Laenge [1, 80]
func isValidPart(s string) bool {
	if len(s) < 1 || len(s) > 80 {
		return false
	}
	for i := range s {
		if i == 0 {
			if !isAlphanumericOrUnderscore(s[i]) {
				return false
			}
			continue
		}
		switch s[i] {
		case '_', '-', '.':
		default:
			if !isAlphanumericOrUnderscore(s[i]) {
				return false
			}
		}
	}
	return true
}

func isAlphanumericOrUnderscore(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}

// Closest gibt den Kandidaten mit der kleinsten Editierdistanz zu s zurueck.
// Ist die Distanz groesser als die halbe Laenge von s, gibt es keinen Vorschlag.
func Closest(s string, candidates []string) (string, bool) {
	var best string
	score := math.MaxInt
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(strings.ToLower(s), strings.ToLower(c)); d < score {
			score = d
			best = c
		}
	}

	if best == "" || score > max(len(s)/2, 1) {
		return "", false
	}
	return best, true
}

// Suggest haengt "did you mean" an eine Fehlermeldung, wenn es einen Vorschlag gibt
func Suggest(err error, s string, candidates []string) error {
	if c, ok := Closest(s, candidates); ok {
		return fmt.Errorf("%w (did you mean %q?)", err, c)
	}
	return err
}
