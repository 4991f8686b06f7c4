package healthcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second
	StatusHealthy  = "healthy"
	healthPath     = "/health"
)

// ProbeError describes why an upstream was judged unhealthy.
type ProbeError struct {
	URL        string
	StatusCode int    // 0 when no response was received
	Status     string // reported body status, if any
	Err        error
}

func (e *ProbeError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("health probe %s: %v", e.URL, e.Err)
	case e.StatusCode != http.StatusOK:
		return fmt.Sprintf("health probe %s: unexpected status code %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("health probe %s: reported status %q", e.URL, e.Status)
	}
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

type healthBody struct {
	Status string `json:"status"`
}

// Prober issues health probes with a fixed per-probe timeout.
type Prober struct {
	client *http.Client
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Prober{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Probe returns nil if baseAddress reports itself healthy, and a *ProbeError otherwise.
func (p *Prober) Probe(ctx context.Context, baseAddress string) error {
	healthURL, err := HealthURL(baseAddress)
	if err != nil {
		return &ProbeError{URL: baseAddress, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return &ProbeError{URL: healthURL, Err: err}
	}

	res, err := p.client.Do(req)
	if err != nil {
		return &ProbeError{URL: healthURL, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return &ProbeError{URL: healthURL, StatusCode: res.StatusCode}
	}

	var body healthBody
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return &ProbeError{URL: healthURL, StatusCode: res.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}

	if body.Status != StatusHealthy {
		return &ProbeError{URL: healthURL, StatusCode: res.StatusCode, Status: body.Status}
	}

	return nil
}

// HealthURL appends /health to the base address, keeping any base path.
func HealthURL(baseAddress string) (string, error) {
	u, err := url.Parse(baseAddress)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base address %q", baseAddress)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + healthPath
	u.RawQuery = ""
	return u.String(), nil
}
