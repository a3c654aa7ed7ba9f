// Command diskburn drives a filesystem toward a target occupancy (or
// rewrites its existing data) with concurrent writers while logging
// device throughput as a time series.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/diskburn/diskburn/internal/run"
	"github.com/diskburn/diskburn/internal/sampler"
)

var errColor = color.New(color.FgRed)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = errColor.Fprintf(os.Stderr, "diskburn: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "diskburn",
		Short:         "Saturate or rewrite a filesystem while recording device throughput",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetOutput(os.Stderr)
			logrus.SetLevel(logrus.WarnLevel)
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newFillCmd(), newRewriteCmd())
	return root
}

// commonFlags binds the flags shared by both modes.
func commonFlags(cmd *cobra.Command, cfg *run.Config, fillerMB *int64) {
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "j", 2, "number of concurrent writers (>= 1)")
	cmd.Flags().Float64Var(&cfg.LimitMBps, "limit-mbps", 0, "aggregate write throttle in MB/s (0 = unlimited)")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", 10*time.Second, "throughput sampling period")
	cmd.Flags().StringVar(&cfg.LogPath, "log", "", "sample log path (default /var/tmp/write-benchmark-<device>.log)")
	cmd.Flags().Int64Var(fillerMB, "filler-mb", 1024, "filler payload size in MiB")
}

func newFillCmd() *cobra.Command {
	var cfg run.Config
	var fillerMB, minMB, maxMB int64

	cmd := &cobra.Command{
		Use:   "fill MOUNT",
		Short: "Write new files until occupancy reaches the stop threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mount = args[0]
			cfg.Mode = run.ModeFill
			cfg.FillerSize = fillerMB << 20
			cfg.MinItemBytes = minMB << 20
			cfg.MaxItemBytes = maxMB << 20
			return execute(cmd, cfg)
		},
	}
	commonFlags(cmd, &cfg, &fillerMB)
	cmd.Flags().IntVar(&cfg.StopPercent, "stop-percent", 90, "occupancy percent at which workers stop (1-100)")
	cmd.Flags().Int64Var(&minMB, "min-mb", 800, "minimum item size in MiB")
	cmd.Flags().Int64Var(&maxMB, "max-mb", 1000, "maximum item size in MiB")
	return cmd
}

func newRewriteCmd() *cobra.Command {
	var cfg run.Config
	var fillerMB int64

	cmd := &cobra.Command{
		Use:   "rewrite MOUNT",
		Short: "Rewrite every existing target file under MOUNT exactly once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mount = args[0]
			cfg.Mode = run.ModeRewrite
			cfg.FillerSize = fillerMB << 20
			return execute(cmd, cfg)
		},
	}
	commonFlags(cmd, &cfg, &fillerMB)
	return cmd
}

// execute validates the configuration, checks external dependencies,
// and runs to completion under a signal-aware context.
func execute(cmd *cobra.Command, cfg run.Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := sampler.CheckIostat(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := run.New(cfg)
	err := r.Run(ctx)
	if r.State() == run.StateStopped {
		// The pool drained; show what was written even if the run
		// ended in an error or interrupt.
		r.Report(os.Stdout)
	}
	return err
}
