// Package run wires the filler, distributor, stop controller, sampler
// and worker pool into a single orchestrated run with guaranteed
// teardown.
package run

import (
	"fmt"
	"os"
	"time"

	"github.com/diskburn/diskburn/internal/fill"
)

// Mode selects how work items come into existence.
type Mode int

const (
	// ModeFill generates new uniquely-named targets until the
	// occupancy threshold is reached.
	ModeFill Mode = iota
	// ModeRewrite rewrites the fixed set of targets discovered in the
	// mount directory.
	ModeRewrite
)

func (m Mode) String() string {
	if m == ModeRewrite {
		return "rewrite"
	}
	return "fill"
}

// Config carries everything a run needs. Zero values are filled in by
// ApplyDefaults; Validate rejects anything a run cannot start with.
type Config struct {
	Mount       string
	Mode        Mode
	Workers     int
	StopPercent int // fill mode only

	// LimitMBps throttles aggregate write bandwidth; 0 = unlimited.
	LimitMBps float64

	// Interval is the sampling period.
	Interval time.Duration

	// LogPath overrides the default sample log location.
	LogPath string

	FillerPath   string
	FillerSize   int64
	MinItemBytes int64
	MaxItemBytes int64
}

// ApplyDefaults fills unset fields with the conventional values:
// 2 workers, 90% threshold, 10s sampling, 1 GiB filler under the
// mount, 800–1000 MB items.
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.StopPercent == 0 {
		c.StopPercent = 90
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.FillerSize == 0 {
		c.FillerSize = fill.DefaultSize
	}
	if c.FillerPath == "" && c.Mount != "" {
		c.FillerPath = c.Mount + "/" + fill.Filename
	}
	if c.MinItemBytes == 0 {
		c.MinItemBytes = 800 << 20
	}
	if c.MaxItemBytes == 0 {
		c.MaxItemBytes = 1000 << 20
	}
}

// Validate reports the first fatal configuration error. It runs
// before any filesystem mutation, so a bad invocation never leaves
// state behind.
func (c Config) Validate() error {
	st, err := os.Stat(c.Mount)
	if err != nil {
		return fmt.Errorf("mount path %q: %w", c.Mount, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("mount path %q is not a directory", c.Mount)
	}
	if c.Workers < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Workers)
	}
	if c.Mode == ModeFill {
		if c.StopPercent < 1 || c.StopPercent > 100 {
			return fmt.Errorf("stop percent must be in [1,100], got %d", c.StopPercent)
		}
		if c.MinItemBytes <= 0 || c.MaxItemBytes < c.MinItemBytes {
			return fmt.Errorf("invalid item size range [%d,%d]", c.MinItemBytes, c.MaxItemBytes)
		}
	}
	if c.LimitMBps < 0 {
		return fmt.Errorf("limit must be >= 0 MB/s, got %g", c.LimitMBps)
	}
	if c.Interval < time.Second {
		return fmt.Errorf("sampling interval must be >= 1s, got %s", c.Interval)
	}
	if c.FillerSize <= 0 {
		return fmt.Errorf("filler size must be positive, got %d", c.FillerSize)
	}
	return nil
}
