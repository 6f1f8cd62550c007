// Package arcgis provides the transport adapter and wire types for the
// remote GIS REST backend.
package arcgis

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jobrunner/atlas/internal/ports/output"
)

// Transport implements output.Transport over net/http. It performs the
// exchange and classifies network failures; HTTP status handling is left to
// the caller.
type Transport struct {
	client  *http.Client
	timeout time.Duration
}

// TransportConfig holds transport configuration.
type TransportConfig struct {
	Timeout time.Duration // Per-attempt deadline, default 60s
}

// NewTransport creates a new HTTP transport adapter.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	// The per-attempt deadline is applied via context so that cancellation
	// by the caller is also honored.
	return &Transport{
		client:  &http.Client{},
		timeout: cfg.Timeout,
	}
}

// Get performs an HTTP GET with the given query parameters.
func (t *Transport) Get(ctx context.Context, rawURL string, params url.Values) (*output.Response, error) {
	u, err := withQuery(rawURL, params)
	if err != nil {
		return nil, &output.TransportError{Kind: output.TransportConnection, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &output.TransportError{Kind: output.TransportConnection, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	return t.do(req)
}

// Post performs an HTTP POST with form-encoded parameters.
func (t *Transport) Post(ctx context.Context, rawURL string, params url.Values) (*output.Response, error) {
	body := ""
	if params != nil {
		body = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
	if err != nil {
		return nil, &output.TransportError{Kind: output.TransportConnection, URL: rawURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return t.do(req)
}

// do executes the request under the per-attempt deadline and classifies
// failures into timeout vs connection outcomes.
func (t *Transport) do(req *http.Request) (*output.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classify(req.URL.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(req.URL.String(), err)
	}

	return &output.Response{Status: resp.StatusCode, Body: body}, nil
}

// classify maps a network error to a TransportError kind.
func classify(rawURL string, err error) *output.TransportError {
	kind := output.TransportConnection

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = output.TransportTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = output.TransportTimeout
	}

	return &output.TransportError{Kind: kind, URL: rawURL, Err: err}
}

// withQuery appends params to the URL's existing query string.
func withQuery(rawURL string, params url.Values) (string, error) {
	if params == nil {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
