// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Connection metrics collector. Keys are "<connection id>.<counter>".

package control

import (
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds the latest value published for every key.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// GetSnapshot returns a copy of all metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Connection returns the counters of one connection keyed without the id
// prefix.
func (mr *MetricsRegistry) Connection(id string) map[string]any {
	prefix := id + "."
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range mr.metrics {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			out[name] = v
		}
	}
	return out
}

// Forget drops every key of a connection and returns how many were removed.
func (mr *MetricsRegistry) Forget(id string) int {
	prefix := id + "."
	mr.mu.Lock()
	defer mr.mu.Unlock()
	n := 0
	for k := range mr.metrics {
		if strings.HasPrefix(k, prefix) {
			delete(mr.metrics, k)
			n++
		}
	}
	if n > 0 {
		mr.updated = time.Now()
	}
	return n
}

// Updated reports when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
