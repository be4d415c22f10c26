// download.go - Download der Gewichte in den lokalen Cache
// Atomisches Schreiben, Pruefsumme aus dem Dateinamen, Fortschritt auf dem Terminal.
package weights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ollama/mlexport/envconfig"
)

// Download-Konstanten
const (
	DefaultChunkSize       = 1024 * 1024 // 1 MB
	ProgressUpdateInterval = 100 * time.Millisecond
	ClientUserAgent        = "mlexport/1.0"
)

// ProgressCallback wird waehrend des Downloads aufgerufen
type ProgressCallback func(downloaded, total int64)

// Option konfiguriert Resolve
type Option func(*resolveConfig)

type resolveConfig struct {
	cacheDir   string
	httpClient *http.Client
	progressFn ProgressCallback
	userAgent  string
}

// WithCacheDir setzt das Cache-Verzeichnis
func WithCacheDir(dir string) Option {
	return func(cfg *resolveConfig) { cfg.cacheDir = dir }
}

// WithHTTPClient setzt einen Custom HTTP Client
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *resolveConfig) { cfg.httpClient = client }
}

// WithProgress setzt den Progress-Callback
func WithProgress(fn ProgressCallback) Option {
	return func(cfg *resolveConfig) { cfg.progressFn = fn }
}

// CacheDir ist das Standard-Verzeichnis fuer heruntergeladene Checkpoints
func CacheDir() string {
	return filepath.Join(envconfig.Cache(), "hub", "checkpoints")
}

// Resolve gibt den lokalen Pfad der Gewichte zurueck und laedt sie bei Bedarf herunter
func Resolve(ctx context.Context, spec Spec, opts ...Option) (string, error) {
	cfg := &resolveConfig{
		cacheDir:   CacheDir(),
		httpClient: &http.Client{Timeout: envconfig.HTTPTimeout()},
		userAgent:  ClientUserAgent,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.progressFn == nil && term.IsTerminal(int(os.Stderr.Fd())) {
		cfg.progressFn = terminalProgress(os.Stderr, spec.FileName())
	}

	targetPath := filepath.Join(cfg.cacheDir, spec.FileName())
	// Pruefen ob bereits im Cache
	if _, err := os.Stat(targetPath); err == nil {
		slog.Debug("using cached weights", "path", targetPath)
		return targetPath, nil
	}

	if err := os.MkdirAll(cfg.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	slog.Info("downloading weights", "model", spec.Ref(), "url", spec.URL, "dest", targetPath)
	if err := download(ctx, cfg, spec, targetPath); err != nil {
		return "", err
	}
	return targetPath, nil
}

func download(ctx context.Context, cfg *resolveConfig, spec Spec, targetPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", cfg.userAgent)

	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s: status %d - %s", ErrUnavailable, spec.URL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Atomisches Schreiben
	tmpFile, err := os.CreateTemp(filepath.Dir(targetPath), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(tmpFile, h)
	var r io.Reader = resp.Body
	if cfg.progressFn != nil {
		r = &progressReader{r: resp.Body, total: resp.ContentLength, fn: cfg.progressFn}
	}

	buf := make([]byte, DefaultChunkSize)
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if prefix := spec.HashPrefix(); prefix != "" {
		digest := hex.EncodeToString(h.Sum(nil))
		if !strings.HasPrefix(digest, prefix) {
			return fmt.Errorf("%w: %s has sha256 %s, expected prefix %s", ErrChecksum, spec.FileName(), digest, prefix)
		}
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// progressReader meldet gelesene Bytes, hoechstens alle ProgressUpdateInterval
type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	last  time.Time
	fn    ProgressCallback
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.done += int64(n)
	if err == io.EOF || time.Since(p.last) >= ProgressUpdateInterval {
		// ohne Content-Length ist die Gesamtgroesse erst am Ende bekannt
		if err == io.EOF && p.total <= 0 {
			p.total = p.done
		}
		p.last = time.Now()
		p.fn(p.done, p.total)
	}
	return n, err
}

func terminalProgress(w io.Writer, name string) ProgressCallback {
	return func(downloaded, total int64) {
		if total > 0 {
			fmt.Fprintf(w, "\rdownloading %s %3d%%", name, downloaded*100/total)
		} else {
			fmt.Fprintf(w, "\rdownloading %s %d MB", name, downloaded>>20)
		}
		if downloaded == total {
			fmt.Fprintln(w)
		}
	}
}
