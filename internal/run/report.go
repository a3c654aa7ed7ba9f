package run

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var bold = color.New(color.Bold)

// Report prints the per-worker summary table and totals. It is
// printed on every completed drain, interrupted runs included, so an
// operator always sees what was written.
func (r *Runner) Report(w io.Writer) {
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "diskburn summary")

	table := tablewriter.NewWriter(w)
	table.Header("Worker", "Items", "Written", "MB/s", "Status")

	var totalItems int
	var totalBytes int64
	for _, res := range r.results {
		totalItems += res.Items
		totalBytes += res.Bytes

		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		_ = table.Append(
			fmt.Sprintf("%d", res.ID),
			fmt.Sprintf("%d", res.Items),
			humanBytes(res.Bytes),
			fmt.Sprintf("%.1f", mbps(res.Bytes, res.Elapsed)),
			status,
		)
	}

	var elapsed time.Duration
	for _, res := range r.results {
		if res.Elapsed > elapsed {
			elapsed = res.Elapsed
		}
	}
	_ = table.Append("total", fmt.Sprintf("%d", totalItems), humanBytes(totalBytes),
		fmt.Sprintf("%.1f", mbps(totalBytes, elapsed)), "")
	_ = table.Render()
}

func mbps(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) / d.Seconds() / (1 << 20)
}

// humanBytes formats a byte count with a binary unit suffix.
func humanBytes(n int64) string {
	v := float64(n)
	for _, unit := range []string{"B", "KiB", "MiB", "GiB", "TiB"} {
		if v < 1024 || unit == "TiB" {
			if unit == "B" {
				return fmt.Sprintf("%.0f %s", v, unit)
			}
			return fmt.Sprintf("%.2f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%d B", n)
}
