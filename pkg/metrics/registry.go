// Package metrics defines the observability interfaces used by the NM and
// SS roles. Concrete collectors live in pkg/metrics/prometheus; passing nil
// for any interface disables collection with zero overhead.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool
)

// InitRegistry creates (or returns the existing) Prometheus registry and
// marks metrics collection as enabled. Call once at startup before
// constructing any collectors.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	enabled.Store(true)
	return registry
}

// GetRegistry returns the current registry, creating one if necessary.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled.Load()
}
