package sampler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParser_DiscoversWMBColumn(t *testing.T) {
	p := newParser("sda")

	if _, ok := p.feed("Linux 6.1.0 (host)  08/26/26  _x86_64_  (8 CPU)"); ok {
		t.Fatal("banner line must not parse")
	}
	if _, ok := p.feed("sda 1.00 2.00 3.00"); ok {
		t.Fatal("data before header must be dropped")
	}

	p.feed("Device  r/s  rMB/s  w/s  wMB/s  %util")
	mbps, ok := p.feed("sda  1.00  0.50  20.00  123.45  80.0")
	if !ok {
		t.Fatal("expected data row to parse")
	}
	if mbps != 123.45 {
		t.Fatalf("mbps = %v, want 123.45", mbps)
	}
}

func TestParser_ConvertsKBColumns(t *testing.T) {
	p := newParser("nvme0n1")
	p.feed("Device  r/s  rkB/s  w/s  wkB/s  %util")
	mbps, ok := p.feed("nvme0n1  0.00  0.00  5.00  2048.00  10.0")
	require.True(t, ok)
	require.InDelta(t, 2.0, mbps, 1e-9)
}

func TestParser_SkipsOtherDevices(t *testing.T) {
	p := newParser("sda")
	p.feed("Device  w/s  wMB/s")
	if _, ok := p.feed("sdb  1.00  99.00"); ok {
		t.Fatal("row for a different device must be dropped")
	}
	if _, ok := p.feed("sda1  1.00  99.00"); ok {
		t.Fatal("partition row must not match the whole-disk name")
	}
	mbps, ok := p.feed("sda  1.00  7.00")
	if !ok || mbps != 7.0 {
		t.Fatalf("got (%v,%v)", mbps, ok)
	}
}

func TestParser_MalformedRows(t *testing.T) {
	p := newParser("sda")
	p.feed("Device  w/s  wMB/s")

	if _, ok := p.feed(""); ok {
		t.Fatal("blank line must not parse")
	}
	if _, ok := p.feed("sda  1.00"); ok {
		t.Fatal("truncated row must not parse")
	}
	if _, ok := p.feed("sda  1.00  not-a-number"); ok {
		t.Fatal("non-numeric field must not parse")
	}
}

func TestParser_DeviceColonHeader(t *testing.T) {
	// Older sysstat prints "Device:" with a trailing colon.
	p := newParser("sda")
	p.feed("Device:  w/s  MB_wrtn/s")
	mbps, ok := p.feed("sda  3.00  42.00")
	require.True(t, ok)
	require.Equal(t, 42.0, mbps)
}

func TestIostat_PumpEmitsSamples(t *testing.T) {
	input := strings.Join([]string{
		"Linux 6.1.0 (host)  08/26/26  _x86_64_  (8 CPU)",
		"",
		"Device  r/s  rMB/s  w/s  wMB/s  %util",
		"sda  0.00  0.00  10.00  100.00  50.0",
		"sdb  0.00  0.00  99.00  999.00  99.0",
		"sda  0.00  0.00  12.00  110.00  55.0",
	}, "\n")

	var diags []string
	s := &Iostat{
		Device:       "sda",
		Interval:     time.Second,
		UsagePercent: func() (int, error) { return 42, nil },
		Diagnostic:   func(line string) { diags = append(diags, line) },
		now:          func() time.Time { return time.Unix(1700000000, 0) },
	}

	ch := make(chan Sample, 16)
	s.pump(context.Background(), strings.NewReader(input), ch)
	close(ch)

	var got []Sample
	for smp := range ch {
		got = append(got, smp)
	}
	require.Len(t, got, 2, "only rows for the target device produce samples")
	require.Equal(t, Sample{Epoch: 1700000000, UsagePercent: 42, ThroughputMBps: 100}, got[0])
	require.Equal(t, Sample{Epoch: 1700000000, UsagePercent: 42, ThroughputMBps: 110}, got[1])
	require.Empty(t, diags)
}

func TestIostat_UsageFailureDropsSample(t *testing.T) {
	input := "Device  w/s  wMB/s\nsda  1.00  5.00\n"

	var diags []string
	s := &Iostat{
		Device:       "sda",
		UsagePercent: func() (int, error) { return 0, os.ErrPermission },
		Diagnostic:   func(line string) { diags = append(diags, line) },
	}

	ch := make(chan Sample, 1)
	s.pump(context.Background(), strings.NewReader(input), ch)
	close(ch)

	if _, open := <-ch; open {
		t.Fatal("no sample must be emitted when the usage query fails")
	}
	require.Len(t, diags, 1)
	require.True(t, strings.HasPrefix(diags[0], "[iostat] "), "diagnostics must be tagged: %q", diags[0])
}

func TestSampleString(t *testing.T) {
	s := Sample{Epoch: 1700000123, UsagePercent: 87, ThroughputMBps: 12.5}
	if got := s.String(); got != "1700000123 87 12.50" {
		t.Fatalf("String() = %q", got)
	}
}

func TestLogger_HeaderRowsAndDiagnostics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.log")

	l, err := NewLogger(path)
	require.NoError(t, err)

	l.Record(Sample{Epoch: 100, UsagePercent: 10, ThroughputMBps: 5})
	l.Diagnostic("[iostat] something grumbled")
	l.Record(Sample{Epoch: 110, UsagePercent: 11, ThroughputMBps: 6})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "monitor start "))
	require.Equal(t, "100 10 5.00", lines[1])
	require.Equal(t, "[iostat] something grumbled", lines[2])
	require.Equal(t, "110 11 6.00", lines[3])
}

func TestLogger_ClampsBackwardTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.log")
	l, err := NewLogger(path)
	require.NoError(t, err)

	l.Record(Sample{Epoch: 200, UsagePercent: 1, ThroughputMBps: 1})
	l.Record(Sample{Epoch: 150, UsagePercent: 2, ThroughputMBps: 2}) // clock stepped back
	l.Record(Sample{Epoch: 220, UsagePercent: 3, ThroughputMBps: 3})
	require.NoError(t, l.Close())

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, "200 1 1.00", lines[1])
	require.Equal(t, "200 2 2.00", lines[2], "backward timestamp must be clamped forward")
	require.Equal(t, "220 3 3.00", lines[3])
}
