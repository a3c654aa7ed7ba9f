package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var errColor = color.New(color.FgRed)

// Display is the single in-place progress line shared by the whole
// run. The underlying bar is safe for concurrent updates, so workers
// report to it directly.
type Display struct {
	bar   *progressbar.ProgressBar
	label string
}

// NewBytes returns a display measuring progress in bytes toward
// target (generative mode). A target of -1 renders a spinner with
// byte counts but no percentage.
func NewBytes(label string, target int64) *Display {
	return &Display{
		bar:   newBar(label, target, progressbar.OptionShowBytes(true)),
		label: label,
	}
}

// NewItems returns a display measuring progress in completed items
// (enumerative mode).
func NewItems(label string, total int) *Display {
	return &Display{
		bar:   newBar(label, int64(total)),
		label: label,
	}
}

func newBar(label string, max int64, extra ...progressbar.Option) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(200 * time.Millisecond),
		progressbar.OptionClearOnFinish(),
	}
	opts = append(opts, extra...)
	return progressbar.NewOptions64(max, opts...)
}

// AddBytes advances a byte-measured display.
func (d *Display) AddBytes(n int64) {
	_ = d.bar.Add64(n)
}

// AddItem advances an item-measured display by one.
func (d *Display) AddItem() {
	_ = d.bar.Add(1)
}

// Describe updates the in-place line with the current estimate.
func (d *Display) Describe(eta time.Duration, ok bool) {
	d.bar.Describe(fmt.Sprintf("%s (%s)", d.label, FormatETA(eta, ok)))
}

// Finish clears the progress line on a normal end of run.
func (d *Display) Finish() {
	_ = d.bar.Finish()
}

// Fail terminates the progress line: newline first so the diagnostic
// does not overwrite the bar, then the message.
func (d *Display) Fail(msg string) {
	_ = d.bar.Exit()
	fmt.Fprintln(os.Stderr)
	_, _ = errColor.Fprintln(os.Stderr, msg)
}
