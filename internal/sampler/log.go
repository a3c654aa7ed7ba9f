package sampler

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger owns the append-only sample log. It is the single writer:
// samples and tagged diagnostics both funnel through it, so data rows
// and noise never interleave within a line and consumers can skip the
// noise by prefix.
type Logger struct {
	mu        sync.Mutex
	f         *os.File
	lastEpoch int64
}

// DefaultLogPath returns the conventional log location for a device.
func DefaultLogPath(device string) string {
	return fmt.Sprintf("/var/tmp/write-benchmark-%s.log", device)
}

// NewLogger opens (appending) the log at path and writes the run
// header line.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sample log: %w", err)
	}
	l := &Logger{f: f}
	if _, err := fmt.Fprintf(f, "monitor start %d\n", time.Now().Unix()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}
	return l, nil
}

// Record appends one sample row. Timestamps are clamped to be
// non-decreasing so consumers can rely on sample order even if the
// wall clock steps backwards mid-run.
func (l *Logger) Record(s Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.Epoch < l.lastEpoch {
		s.Epoch = l.lastEpoch
	}
	l.lastEpoch = s.Epoch
	fmt.Fprintln(l.f, s.String())
}

// Diagnostic appends a tagged non-data line. The caller supplies the
// tag prefix (e.g. "[iostat] ...").
func (l *Logger) Diagnostic(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.f, line)
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
