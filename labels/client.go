// client.go - Abruf der Klassennamen als JSON-Array ueber HTTP(S)
// Die TLS-Pruefung ist nur pro Client und nur auf ausdruecklichen Wunsch abschaltbar.
package labels

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/buger/jsonparser"
)

// Konstanten fuer den Label-Abruf
const (
	ClientUserAgent = "mlexport/1.0"

	// maxBodySize begrenzt die Antwort (16 MB)
	maxBodySize = 16 << 20
)

// Fehler-Definitionen
var (
	ErrNetwork          = errors.New("labels: network error")
	ErrUnexpectedStatus = errors.New("labels: unexpected status")
	ErrInvalidEncoding  = errors.New("labels: response is not valid UTF-8")
	ErrInvalidResponse  = errors.New("labels: response is not a JSON array of strings")
	ErrNoLabels         = errors.New("labels: empty label list")
)

// Client laedt Label-Listen
type Client struct {
	httpClient *http.Client
	userAgent  string
	insecure   bool
	timeout    *time.Duration
}

// ClientOption ist eine Funktion zur Konfiguration des Clients
type ClientOption func(*Client)

// WithInsecureSkipVerify schaltet die Zertifikatspruefung fuer diesen Client ab
func WithInsecureSkipVerify(insecure bool) ClientOption {
	return func(c *Client) { c.insecure = insecure }
}

// WithHTTPClient setzt einen Custom HTTP Client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithTimeout setzt den HTTP Timeout; 0 bedeutet kein Timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = &timeout }
}

// WithUserAgent setzt einen Custom User-Agent
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient erstellt einen neuen Label-Client
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  ClientUserAgent,
	}
	for _, opt := range options {
		opt(c)
	}

	// Timeout nur auf einer Kopie setzen, ein uebergebener Client bleibt unveraendert
	if c.timeout != nil {
		cp := *c.httpClient
		cp.Timeout = *c.timeout
		c.httpClient = &cp
	}
	if c.insecure {
		c.httpClient = insecureClient(c.httpClient)
	}
	return c
}

// insecureClient kopiert hc mit eigenem Transport ohne Zertifikatspruefung.
// http.DefaultTransport bleibt unveraendert.
func insecureClient(hc *http.Client) *http.Client {
	var base *http.Transport
	switch t := hc.Transport.(type) {
	case nil:
		base = http.DefaultTransport.(*http.Transport).Clone()
	case *http.Transport:
		base = t.Clone()
	default:
		slog.Warn("custom transport, cannot disable TLS verification", "transport", fmt.Sprintf("%T", t))
		return hc
	}

	if base.TLSClientConfig == nil {
		base.TLSClientConfig = &tls.Config{}
	}
	base.TLSClientConfig.InsecureSkipVerify = true

	slog.Warn("TLS certificate verification is disabled for label downloads")
	cp := *hc
	cp.Transport = base
	return &cp
}

// Fetch laedt die Label-Liste von url. Die Reihenfolge ist die Klassen-ID.
func (c *Client) Fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	labels, err := Parse(body)
	if err != nil {
		return nil, err
	}

	slog.Debug("fetched labels", "url", url, "count", len(labels))
	return labels, nil
}

// Parse dekodiert ein JSON-Array von Strings
func Parse(body []byte) ([]string, error) {
	if !utf8.Valid(body) {
		return nil, ErrInvalidEncoding
	}

	value, dataType, _, err := jsonparser.Get(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if dataType != jsonparser.Array {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidResponse, dataType)
	}

	var labels []string
	var elemErr error
	if _, err := jsonparser.ArrayEach(value, func(v []byte, dataType jsonparser.ValueType, _ int, err error) {
		if elemErr != nil {
			return
		}
		if err != nil {
			elemErr = err
			return
		}
		if dataType != jsonparser.String {
			elemErr = fmt.Errorf("element %d is %s", len(labels), dataType)
			return
		}

		s, err := jsonparser.ParseString(v)
		if err != nil {
			elemErr = err
			return
		}
		labels = append(labels, s)
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if elemErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, elemErr)
	}

	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	return labels, nil
}
