package scenario

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHealthEndpoint = "/actuator/health"
	DefaultHealthTimeout  = 5 * time.Second
)

// Prober checks whether the target is ready before any load is sent
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to Prober
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

// HTTPProbe treats the target as healthy when its health endpoint
// answers 200 within Timeout
type HTTPProbe struct {
	Client  *http.Client
	URL     string
	Timeout time.Duration
}

// NewHTTPProbe builds a probe for host + endpoint
func NewHTTPProbe(client *http.Client, host, endpoint string) *HTTPProbe {
	if endpoint == "" {
		endpoint = DefaultHealthEndpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProbe{
		Client:  client,
		URL:     strings.TrimRight(host, "/") + endpoint,
		Timeout: DefaultHealthTimeout,
	}
}

// Probe performs a single GET against the health endpoint
func (p *HTTPProbe) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
