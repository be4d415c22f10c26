package envconfig

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestCache(t *testing.T) {
	t.Setenv("MLEXPORT_CACHE", "/tmp/mlx-cache")
	if got := Cache(); got != "/tmp/mlx-cache" {
		t.Errorf("Cache() = %q, erwartet %q", got, "/tmp/mlx-cache")
	}

	t.Setenv("MLEXPORT_CACHE", "")
	t.Setenv("XDG_CACHE_HOME", "/xdg")
	if got := Cache(); got != filepath.Join("/xdg", "mlexport") {
		t.Errorf("Cache() = %q, erwartet XDG-Pfad", got)
	}
}

func TestLabelsURL(t *testing.T) {
	t.Setenv("MLEXPORT_LABELS_URL", "")
	if got := LabelsURL(); got != DefaultLabelsURL {
		t.Errorf("LabelsURL() = %q, erwartet Default", got)
	}

	t.Setenv("MLEXPORT_LABELS_URL", "'https://example.com/labels.json'")
	if got := LabelsURL(); got != "https://example.com/labels.json" {
		t.Errorf("LabelsURL() = %q, Quotes wurden nicht entfernt", got)
	}
}

func TestHTTPTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":      0,
		"30s":   30 * time.Second,
		"5":     5 * time.Second,
		"-1s":   0,
		"bogus": 0,
	}

	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MLEXPORT_HTTP_TIMEOUT", v)
			if got := HTTPTimeout(); got != want {
				t.Errorf("HTTPTimeout() = %v, erwartet %v", got, want)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MLEXPORT_DEBUG", v)
			if got := LogLevel(); got != want {
				t.Errorf("LogLevel() = %v, erwartet %v", got, want)
			}
		})
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"1":     true,
		"true":  true,
		"ja":    true,
	}

	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MLEXPORT_INSECURE_SKIP_VERIFY", v)
			if got := InsecureSkipVerify(); got != want {
				t.Errorf("InsecureSkipVerify() = %v, erwartet %v", got, want)
			}
		})
	}
}

func TestAsMap(t *testing.T) {
	m := AsMap()
	for _, k := range []string{"MLEXPORT_DEBUG", "MLEXPORT_CACHE", "MLEXPORT_LABELS_URL", "MLEXPORT_INSECURE_SKIP_VERIFY", "MLEXPORT_HTTP_TIMEOUT", "MLEXPORT_TOP_K"} {
		if _, ok := m[k]; !ok {
			t.Errorf("AsMap() enthaelt %s nicht", k)
		}
	}
}

func TestTopK(t *testing.T) {
	cases := map[string]uint{
		"":     5,
		"3":    3,
		"0":    0,
		"abc":  5,
		"-1":   5,
		"1000": 1000,
	}

	for v, want := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MLEXPORT_TOP_K", v)
			if got := TopK(); got != want {
				t.Errorf("TopK() = %d, erwartet %d", got, want)
			}
		})
	}
}
