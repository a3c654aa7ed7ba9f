package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/diskburn/diskburn/internal/claim"
	"github.com/diskburn/diskburn/internal/device"
	"github.com/diskburn/diskburn/internal/fill"
	"github.com/diskburn/diskburn/internal/progress"
	"github.com/diskburn/diskburn/internal/sampler"
)

// State is the orchestrator's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// WorkerResult is one worker's final tally.
type WorkerResult struct {
	ID      int
	Items   int
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// Runner owns one run end to end: prepare, execute, drain, clean up.
type Runner struct {
	cfg      Config
	query    device.QueryFunc
	resolve  func(string) (string, error)
	source   sampler.Source // overrides the iostat source when set
	progress bool

	state     atomic.Int32
	results   []WorkerResult
	errMu     sync.Mutex
	firstErr  error
	aggBytes  atomic.Int64
	completed atomic.Int64
}

// Option customizes a Runner. The production CLI uses none; tests
// substitute the occupancy query, device resolution and sample source.
type Option func(*Runner)

// WithUsageQuery substitutes the filesystem occupancy query.
func WithUsageQuery(q device.QueryFunc) Option {
	return func(r *Runner) { r.query = q }
}

// WithDeviceResolver substitutes mount-to-device resolution.
func WithDeviceResolver(f func(string) (string, error)) Option {
	return func(r *Runner) { r.resolve = f }
}

// WithSamplerSource substitutes the throughput sample source.
func WithSamplerSource(s sampler.Source) Option {
	return func(r *Runner) { r.source = s }
}

// WithoutProgress disables the in-place progress display.
func WithoutProgress() Option {
	return func(r *Runner) { r.progress = false }
}

// New returns a Runner for the given (defaulted, validated) config.
func New(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		query:    device.FS,
		resolve:  device.Resolve,
		progress: true,
		results:  make([]WorkerResult, cfg.Workers),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Results returns the per-worker tallies of the last run.
func (r *Runner) Results() []WorkerResult { return r.results }

// State returns the orchestrator's current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		logrus.WithFields(logrus.Fields{"from": old, "to": s}).Debug("state transition")
	}
}

func (r *Runner) recordErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.firstErr == nil {
		r.firstErr = err
	}
}

// Run executes the configured run. Teardown (sampler termination,
// advisory lock sweep, log close) happens on every exit path.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg
	r.setState(StatePreparing)

	devName, err := r.resolve(cfg.Mount)
	if err != nil {
		return fmt.Errorf("resolve device for %s: %w", cfg.Mount, err)
	}
	logPath := cfg.LogPath
	if logPath == "" {
		logPath = sampler.DefaultLogPath(devName)
	}
	logrus.WithFields(logrus.Fields{
		"mount": cfg.Mount, "device": devName, "mode": cfg.Mode,
		"workers": cfg.Workers, "log": logPath,
	}).Info("run starting")

	locks := claim.NewLockDir(cfg.Mount)
	if err := locks.Sweep(); err != nil {
		logrus.WithError(err).Warn("stale lock sweep failed")
	}
	defer func() {
		if err := locks.Sweep(); err != nil {
			logrus.WithError(err).Warn("lock cleanup failed")
		}
	}()

	if _, err := fill.Ensure(cfg.FillerPath, cfg.FillerSize); err != nil {
		return fmt.Errorf("ensure filler: %w", err)
	}

	var (
		src         claim.Source
		stop        *device.StopController
		totalItems  int
		targetBytes int64
	)
	switch cfg.Mode {
	case ModeRewrite:
		items, err := claim.Discover(cfg.Mount)
		if err != nil {
			return fmt.Errorf("discover work in %s: %w", cfg.Mount, err)
		}
		enum := claim.NewEnumerative(items)
		src = enum
		totalItems = enum.Total()
		logrus.WithField("items", totalItems).Info("rewrite list discovered")
	default:
		stop = device.NewStopController(cfg.Mount, cfg.StopPercent, r.query, cfg.Interval)
		u, err := stop.Usage()
		if err != nil {
			return fmt.Errorf("query occupancy of %s: %w", cfg.Mount, err)
		}
		capacity := u.Used + u.Avail
		targetBytes = int64(capacity)*int64(cfg.StopPercent)/100 - int64(u.Used)
		if targetBytes < 0 {
			targetBytes = 0
		}
		src = claim.NewGenerative(cfg.Mount, cfg.MinItemBytes, cfg.MaxItemBytes, cfg.Workers)
		logrus.WithFields(logrus.Fields{
			"usage": u.Percent(), "threshold": cfg.StopPercent,
			"target_bytes": targetBytes,
		}).Info("fill target computed")
	}

	log, err := sampler.NewLogger(logPath)
	if err != nil {
		return err
	}
	defer log.Close()

	smp := r.source
	if smp == nil {
		smp = &sampler.Iostat{
			Device:   devName,
			Interval: cfg.Interval,
			UsagePercent: func() (int, error) {
				u, err := r.query(cfg.Mount)
				if err != nil {
					return 0, err
				}
				return u.Percent(), nil
			},
			Diagnostic: log.Diagnostic,
		}
	}

	// The sampler runs on its own context so worker cancellation does
	// not kill it early; the orchestrator terminates it during
	// teardown, never the other way around.
	samplerCtx, stopSampler := context.WithCancel(context.Background())
	defer stopSampler()
	samples, err := smp.Samples(samplerCtx)
	if err != nil {
		return fmt.Errorf("start sampler: %w", err)
	}
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		for s := range samples {
			log.Record(s)
		}
	}()
	defer func() {
		stopSampler()
		<-samplerDone
	}()

	var disp *progress.Display
	if r.progress {
		if cfg.Mode == ModeRewrite {
			disp = progress.NewItems("rewriting", totalItems)
		} else {
			disp = progress.NewBytes("filling", targetBytes)
		}
	}

	var limiter *rate.Limiter
	if cfg.LimitMBps > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LimitMBps*(1<<20)), fill.CopyChunk)
	}

	r.setState(StateRunning)
	start := time.Now()

	// Flip to draining as soon as an external interrupt arrives, even
	// while workers are still winding down.
	monitorDone := make(chan struct{})
	defer close(monitorDone)
	go func() {
		select {
		case <-ctx.Done():
			if r.State() == StateRunning {
				r.setState(StateDraining)
			}
		case <-monitorDone:
		}
	}()

	var g errgroup.Group
	for i := 0; i < cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			copier := fill.NewCopier(cfg.FillerPath, limiter)
			defer copier.Close()
			r.results[id] = r.worker(ctx, id, src, stop, locks, copier, disp, totalItems, targetBytes, start)
			return nil
		})
	}
	_ = g.Wait()
	r.setState(StateDraining)

	stopSampler()
	<-samplerDone

	if disp != nil {
		if r.firstErr != nil {
			disp.Fail(fmt.Sprintf("run failed: %v", r.firstErr))
		} else if ctx.Err() != nil {
			disp.Fail("interrupted")
		} else {
			disp.Finish()
		}
	}

	r.setState(StateStopped)
	logrus.WithFields(logrus.Fields{
		"bytes": r.aggBytes.Load(), "items": r.completed.Load(),
		"elapsed": time.Since(start).Round(time.Second),
	}).Info("run finished")

	if r.firstErr != nil {
		return r.firstErr
	}
	return ctx.Err()
}

// worker is the per-worker control loop: consult the stop condition,
// claim an item, take the advisory lock, write, report. It never
// blocks on other workers outside the claim step.
func (r *Runner) worker(
	ctx context.Context,
	id int,
	src claim.Source,
	stop *device.StopController,
	locks *claim.LockDir,
	copier *fill.Copier,
	disp *progress.Display,
	totalItems int,
	targetBytes int64,
	start time.Time,
) WorkerResult {
	wlog := logrus.WithField("worker", id)
	tracker := progress.NewTracker()
	res := WorkerResult{ID: id}

	for ctx.Err() == nil {
		if stop != nil {
			halt, err := stop.Check()
			if err != nil {
				// Worker-local failure: log and bow out, the rest of
				// the pool keeps going.
				wlog.WithError(err).Warn("occupancy query failed, worker exiting")
				break
			}
			if halt {
				wlog.Debug("stop threshold reached")
				break
			}
		}

		it, ok := src.Next(id)
		if !ok {
			wlog.Debug("work exhausted")
			break
		}

		if !locks.TryLock(it.Target) {
			wlog.WithField("target", it.Target).Debug("item locked, skipping")
			continue
		}
		n, err := copier.Copy(ctx, it.Target, it.Size)
		locks.Unlock(it.Target)

		if n > 0 {
			r.aggBytes.Add(n)
			if disp != nil && targetBytes > 0 {
				disp.AddBytes(n)
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			wlog.WithError(err).WithField("target", it.Target).Error("write failed, worker stopping")
			res.Err = err
			r.recordErr(err)
			break
		}

		tracker.Done(n)
		r.completed.Add(1)
		if disp != nil {
			if totalItems > 0 {
				disp.AddItem()
			}
			r.describeETA(disp, totalItems, targetBytes, start)
		}
	}

	res.Items = tracker.Items()
	res.Bytes = tracker.Bytes()
	res.Elapsed = tracker.Elapsed()
	return res
}

// describeETA refreshes the progress line with the current estimate:
// claim-count fraction in rewrite mode, target-byte delta against
// aggregate throughput in fill mode.
func (r *Runner) describeETA(disp *progress.Display, totalItems int, targetBytes int64, start time.Time) {
	elapsed := time.Since(start)
	if totalItems > 0 {
		eta, ok := progress.Fraction(int(r.completed.Load()), totalItems, elapsed)
		disp.Describe(eta, ok)
		return
	}
	written := r.aggBytes.Load()
	var bps float64
	if secs := elapsed.Seconds(); secs > 0 {
		bps = float64(written) / secs
	}
	eta, ok := progress.ByteDelta(targetBytes-written, bps)
	disp.Describe(eta, ok)
}
