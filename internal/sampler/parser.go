package sampler

import (
	"strconv"
	"strings"
)

// writeColumns maps the header names different iostat versions use
// for the write-bandwidth column to the factor converting their unit
// to MB/s.
var writeColumns = map[string]float64{
	"wMB/s":     1,
	"wkB/s":     1.0 / 1024,
	"MB_wrtn/s": 1,
	"kB_wrtn/s": 1.0 / 1024,
}

// parser extracts write throughput for a single device from an iostat
// extended-statistics stream. It is stateful: the column index and
// unit scale are discovered from the first header row seen, and data
// rows before that (or for other devices) are dropped.
type parser struct {
	device string
	col    int
	scale  float64
}

func newParser(device string) *parser {
	return &parser{device: device, col: -1}
}

// feed consumes one line of iostat output and returns the write
// throughput in MB/s if the line is a data row for the target device.
// Header rows, blank lines, banner lines, rows for other devices and
// malformed rows all return ok=false.
func (p *parser) feed(line string) (mbps float64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}

	if first := strings.TrimSuffix(fields[0], ":"); first == "Device" {
		p.discover(fields)
		return 0, false
	}

	if p.col < 0 || fields[0] != p.device || len(fields) <= p.col {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(fields[p.col], ",", "."), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * p.scale, true
}

// discover locates the write-bandwidth column in a header row.
// Later headers win, so a schema change mid-stream (it happens when
// iostat re-execs) is picked up.
func (p *parser) discover(fields []string) {
	for i, name := range fields {
		if scale, found := writeColumns[name]; found {
			p.col = i
			p.scale = scale
			return
		}
	}
}
