// config.go - Haupt-Konfigurationsfunktionen fuer mlexport
//
// Dieses Modul enthaelt:
// - Cache: Gibt das Cache-Verzeichnis fuer Gewichte zurueck (MLEXPORT_CACHE)
// - LabelsURL: Gibt die Label-URL zurueck (MLEXPORT_LABELS_URL)
// - HTTPTimeout: Gibt das HTTP-Timeout zurueck (MLEXPORT_HTTP_TIMEOUT)
// - LogLevel: Gibt Log-Level zurueck (MLEXPORT_DEBUG)
// - TopK: Anzahl der Klassen bei classify (MLEXPORT_TOP_K)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultLabelsURL ist die Quelle der ImageNet-Klassennamen
const DefaultLabelsURL = "https://raw.githubusercontent.com/anishathalye/imagenet-simple-labels/master/imagenet-simple-labels.json"

// Cache gibt das Cache-Verzeichnis fuer heruntergeladene Gewichte zurueck
// Konfigurierbar via MLEXPORT_CACHE
// Default: $XDG_CACHE_HOME/mlexport bzw. $HOME/.cache/mlexport
func Cache() string {
	if s := Var("MLEXPORT_CACHE"); s != "" {
		return s
	}

	if s := Var("XDG_CACHE_HOME"); s != "" {
		return filepath.Join(s, "mlexport")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mlexport")
	}

	return filepath.Join(home, ".cache", "mlexport")
}

// LabelsURL gibt die URL der Label-Liste zurueck
// Konfigurierbar via MLEXPORT_LABELS_URL
func LabelsURL() string {
	if s := Var("MLEXPORT_LABELS_URL"); s != "" {
		return s
	}
	return DefaultLabelsURL
}

// InsecureSkipVerify deaktiviert die TLS-Zertifikatspruefung fuer Downloads
// Konfigurierbar via MLEXPORT_INSECURE_SKIP_VERIFY
var InsecureSkipVerify = Bool("MLEXPORT_INSECURE_SKIP_VERIFY")

// TopK ist die Standardanzahl der Klassen bei classify
// Konfigurierbar via MLEXPORT_TOP_K
var TopK = Uint("MLEXPORT_TOP_K", 5)

// HTTPTimeout gibt das Timeout fuer HTTP-Anfragen zurueck
// Konfigurierbar via MLEXPORT_HTTP_TIMEOUT (Dauer oder Sekunden)
// 0 oder negative Werte = kein Timeout (Default)
func HTTPTimeout() (timeout time.Duration) {
	if s := Var("MLEXPORT_HTTP_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			timeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("invalid environment variable, using default", "key", "MLEXPORT_HTTP_TIMEOUT", "value", s)
		}
	}

	if timeout < 0 {
		return 0
	}

	return timeout
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via MLEXPORT_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("MLEXPORT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
