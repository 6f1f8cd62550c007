package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncDiscoveryRuns increments the discovery run counter.
	IncDiscoveryRuns(success bool)

	// ObserveDiscoveryDuration records the duration of a discovery run.
	ObserveDiscoveryDuration(duration time.Duration)

	// SetDatasetsCataloged sets the dataset count of the current snapshot.
	SetDatasetsCataloged(count int)

	// SetDiscoveryIssues sets the issue count of the last discovery run.
	SetDiscoveryIssues(count int)

	// IncCatalogServed counts a catalog read, labeled fresh or stale.
	IncCatalogServed(stale bool)

	// IncQueryCount increments the query counter per service.
	IncQueryCount(service string, success bool)

	// ObserveQueryDuration records end-to-end query duration per service.
	ObserveQueryDuration(service string, duration time.Duration)

	// IncUpstreamRequests counts outbound requests to the GIS backend.
	IncUpstreamRequests(outcome string)

	// ObserveUpstreamDuration records a single upstream attempt's duration.
	ObserveUpstreamDuration(duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncDiscoveryRuns implements MetricsCollector.
func (n *NoOpMetrics) IncDiscoveryRuns(_ bool) {}

// ObserveDiscoveryDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveDiscoveryDuration(_ time.Duration) {}

// SetDatasetsCataloged implements MetricsCollector.
func (n *NoOpMetrics) SetDatasetsCataloged(_ int) {}

// SetDiscoveryIssues implements MetricsCollector.
func (n *NoOpMetrics) SetDiscoveryIssues(_ int) {}

// IncCatalogServed implements MetricsCollector.
func (n *NoOpMetrics) IncCatalogServed(_ bool) {}

// IncQueryCount implements MetricsCollector.
func (n *NoOpMetrics) IncQueryCount(_ string, _ bool) {}

// ObserveQueryDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveQueryDuration(_ string, _ time.Duration) {}

// IncUpstreamRequests implements MetricsCollector.
func (n *NoOpMetrics) IncUpstreamRequests(_ string) {}

// ObserveUpstreamDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveUpstreamDuration(_ time.Duration) {}
