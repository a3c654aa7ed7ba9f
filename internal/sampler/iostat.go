package sampler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// iostatBinary is the external extended-statistics tool. Its absence
// is checked at startup, before any work begins.
const iostatBinary = "iostat"

// CheckIostat verifies that the iostat binary is available on PATH.
func CheckIostat() error {
	if _, err := exec.LookPath(iostatBinary); err != nil {
		return fmt.Errorf("required tool %q not found: %w", iostatBinary, err)
	}
	return nil
}

// Iostat samples device write throughput by running iostat as a
// long-lived subprocess and filtering its output down to one device.
// It pairs each throughput reading with a fresh occupancy query so
// every emitted Sample is internally consistent.
type Iostat struct {
	// Device is the canonical device name rows must match, e.g.
	// "nvme0n1p2". Rows for any other device are dropped.
	Device string

	// Interval is the iostat reporting period.
	Interval time.Duration

	// UsagePercent supplies the occupancy half of each sample.
	UsagePercent func() (int, error)

	// Diagnostic receives tagged subprocess stderr lines and other
	// non-data output so the log stays machine-parsable.
	Diagnostic func(string)

	// now is overridable for tests.
	now func() time.Time
}

// Samples starts the subprocess and returns the sample stream. The
// channel closes when the subprocess exits, which happens when ctx is
// cancelled; the sampler never terminates itself.
func (s *Iostat) Samples(ctx context.Context) (<-chan Sample, error) {
	secs := int(s.Interval.Seconds())
	if secs < 1 {
		secs = 1
	}

	cmd := exec.CommandContext(ctx, iostatBinary, "-d", "-m", "-x", strconv.Itoa(secs))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("iostat stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("iostat stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start iostat: %w", err)
	}
	logrus.WithFields(logrus.Fields{"device": s.Device, "interval": s.Interval}).
		Debug("iostat sampler started")

	ch := make(chan Sample, 1)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			s.diag(sc.Text())
		}
	}()

	go func() {
		defer close(ch)
		s.pump(ctx, stdout, ch)
		// Both pipes must be drained before Wait may close them.
		<-stderrDone
		// Reap the subprocess; the error is expected to be the kill
		// from context cancellation.
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			s.diag("exited: " + err.Error())
		}
	}()

	return ch, nil
}

// pump reads iostat output line by line, parses data rows for the
// target device and emits complete samples. Separated from Samples so
// tests can drive it with synthetic input.
func (s *Iostat) pump(ctx context.Context, r io.Reader, ch chan<- Sample) {
	p := newParser(s.Device)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		mbps, ok := p.feed(sc.Text())
		if !ok {
			continue
		}

		pct, err := s.UsagePercent()
		if err != nil {
			s.diag("usage query failed: " + err.Error())
			continue
		}

		sample := Sample{
			Epoch:          s.clock().Unix(),
			UsagePercent:   pct,
			ThroughputMBps: mbps,
		}
		select {
		case ch <- sample:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		s.diag("read error: " + err.Error())
	}
}

func (s *Iostat) diag(msg string) {
	if s.Diagnostic != nil {
		s.Diagnostic("[iostat] " + msg)
	}
}

func (s *Iostat) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
