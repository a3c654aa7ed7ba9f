// Package sampler records device throughput and filesystem occupancy
// as a time series. Throughput comes from an external iostat process
// whose output schema varies between versions, so the parser discovers
// the right column from the header instead of hardcoding a position.
package sampler

import (
	"context"
	"fmt"
)

// Sample is one normalized observation: when, how full the filesystem
// is, and how fast the device is writing.
type Sample struct {
	Epoch          int64
	UsagePercent   int
	ThroughputMBps float64
}

// String renders the sample in the log's wire format:
// whitespace-separated epoch seconds, integer usage percent, and
// write throughput in MB/s.
func (s Sample) String() string {
	return fmt.Sprintf("%d %d %.2f", s.Epoch, s.UsagePercent, s.ThroughputMBps)
}

// Source is the capability the orchestrator needs from a sampling
// backend: a stream of samples that ends when the context does.
type Source interface {
	Samples(ctx context.Context) (<-chan Sample, error)
}
