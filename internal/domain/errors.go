package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrDatasetNotFound     = fmt.Errorf("dataset: %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service: %w", ErrNotFound)
	ErrLayerNotFound       = fmt.Errorf("layer: %w", ErrNotFound)
	ErrFieldNotFound       = fmt.Errorf("field: %w", ErrNotFound)
	ErrInvalidGeometry     = fmt.Errorf("geometry: %w", ErrInvalidInput)
	ErrUnsupportedGeometry = fmt.Errorf("geometry for export target: %w", ErrUnsupported)
	ErrCatalogUnavailable  = fmt.Errorf("catalog: %w", ErrUnavailable)
)

// QueryErrorKind classifies a query failure.
type QueryErrorKind string

// Query failure kinds.
const (
	KindInvalidRequest  QueryErrorKind = "invalid_request"
	KindServiceRejected QueryErrorKind = "service_rejected"
	KindTimeout         QueryErrorKind = "timeout"
	KindTruncated       QueryErrorKind = "truncated"
)

// QueryError represents a failure while dispatching a feature query.
type QueryError struct {
	Kind    QueryErrorKind // Failure classification
	Service string         // Target service URL
	Layer   int            // Target layer id
	Err     error          // Underlying error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s on layer %d of %s: %v", e.Kind, e.Layer, e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError builds a QueryError for the given request target.
func NewQueryError(kind QueryErrorKind, service string, layer int, err error) *QueryError {
	return &QueryError{Kind: kind, Service: service, Layer: layer, Err: err}
}

// QueryErrorKindOf extracts the kind from an error chain. Returns false if the
// chain contains no QueryError.
func QueryErrorKindOf(err error) (QueryErrorKind, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

// DiscoveryError is a fatal discovery failure: the portal enumeration itself
// could not run. Per-item failures are DiscoveryIssues, not errors.
type DiscoveryError struct {
	Endpoint string // Portal endpoint that failed
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery against %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
