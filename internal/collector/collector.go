// Package collector gathers the system statistics included in device
// health reports. Collectors are registered at startup; the reporter asks
// the registry for a combined snapshot before each send.
package collector

import "context"

// Collector is the interface that all stat collectors implement.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect gathers the stat data and returns it.
	Collect(ctx context.Context) (interface{}, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false are not registered.
	IsAvailable() bool
}
