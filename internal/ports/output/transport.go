// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Transport defines the secondary port for talking to the remote GIS REST
// backend. Implementations carry no business logic; they perform the request
// and classify the outcome so the dispatcher's retry policy can tell
// transient failures from rejections.
type Transport interface {
	// Get performs an HTTP GET with the given query parameters.
	Get(ctx context.Context, rawURL string, params url.Values) (*Response, error)

	// Post performs an HTTP POST with form-encoded parameters.
	Post(ctx context.Context, rawURL string, params url.Values) (*Response, error)
}

// Response is the transport-level result of a successful exchange.
type Response struct {
	Status int    // HTTP status code
	Body   []byte // Raw response body
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// TransportErrorKind classifies a transport failure.
type TransportErrorKind string

// Transport failure kinds.
const (
	TransportTimeout    TransportErrorKind = "timeout"
	TransportConnection TransportErrorKind = "connection"
	TransportHTTPStatus TransportErrorKind = "http_status"
)

// TransportError is a classified transport failure.
type TransportError struct {
	Kind   TransportErrorKind // Failure classification
	URL    string             // Request URL
	Status int                // HTTP status, set for TransportHTTPStatus
	Err    error              // Underlying error, if any
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Kind == TransportHTTPStatus {
		return fmt.Sprintf("transport %s %d for %s", e.Kind, e.Status, e.URL)
	}
	return fmt.Sprintf("transport %s for %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying: timeouts,
// connection failures and 5xx responses. 4xx responses are rejections.
func (e *TransportError) Transient() bool {
	switch e.Kind {
	case TransportTimeout, TransportConnection:
		return true
	case TransportHTTPStatus:
		return e.Status >= 500
	}
	return false
}

// ClassifyTransportError extracts a TransportError from an error chain.
func ClassifyTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// HTTPStatusError builds a TransportError for a non-2xx response. Transports
// return such responses without error; callers that treat them as failures
// wrap them with this helper so the retry policy can classify them.
func HTTPStatusError(rawURL string, status int) *TransportError {
	return &TransportError{Kind: TransportHTTPStatus, URL: rawURL, Status: status}
}
