// Package orchestrator runs one scan: it lists the drives, walks them with
// the exclusion policy, offers every file to the registered scanners,
// merges what they produce and hands the result to the transport.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"iocscan/config"
	"iocscan/drive"
	"iocscan/fuzzy"
	"iocscan/index"
	"iocscan/logger"
	"iocscan/scanner"
	"iocscan/store"
	"iocscan/tracing"
	"iocscan/transport"
	"iocscan/utils"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

const (
	// ReportTopic carries the concatenated detections.
	ReportTopic = "iocscan_report"
	// StateTopic carries the merged scanner state.
	StateTopic = "iocscan"
	// StateChannel is the channel the state is sent on.
	StateChannel = "report_state"
)

// ReportChannel is the channel detections are sent on for a reporting mode.
func ReportChannel(mode string) string {
	return "report_" + mode
}

type State int

const (
	Idle State = iota
	Initializing
	Scanning
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Scanning:
		return "scanning"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Factory builds a scanner for the merged run configuration.
type Factory func(cfg config.ScanConfig) scanner.Scanner

// DefaultFactories registers the signature scanner followed by the index
// scanner.
func DefaultFactories(st store.Store, ix *index.Index, hashers []fuzzy.Hasher) []Factory {
	return []Factory{
		func(cfg config.ScanConfig) scanner.Scanner {
			return scanner.NewSignatureScanner(cfg, st, scanner.WithFuzzyHashers(hashers...))
		},
		func(cfg config.ScanConfig) scanner.Scanner {
			return scanner.NewIndexScanner(cfg, ix)
		},
	}
}

// DriveError reports a drive that could not be opened or walked to the end.
type DriveError struct {
	Device     string
	Mountpoint string
	Err        error
}

func (e *DriveError) Error() string {
	return fmt.Sprintf("cannot scan %s | %s: %v", e.Device, e.Mountpoint, e.Err)
}

func (e *DriveError) Unwrap() error { return e.Err }

// DriveResult is the outcome of one drive. Err is a *DriveError or nil.
type DriveResult struct {
	Device     string
	Mountpoint string
	Files      int
	Err        error
}

// Result is what a run produced.
type Result struct {
	Config    config.ScanConfig
	State     scanner.State
	Report    []scanner.Detection
	Drives    []DriveResult
	Delivered bool
}

type Orchestrator struct {
	defaults  config.ScanConfig
	overrides config.Overrides
	manager   drive.Manager
	client    transport.Client
	factories []Factory

	limiter  *rate.Limiter
	windows  bool
	progress bool
	now      func() time.Time

	state    State
	scanners []scanner.Scanner
}

type Option func(*Orchestrator)

// WithMaxIOPerSecond limits how many files are offered to the scanners per
// second. Zero means unlimited.
func WithMaxIOPerSecond(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(n), n)
		} else {
			o.limiter = nil
		}
	}
}

// WithWindowsPaths controls drive letter stripping before exclusion
// matching. It defaults to the host OS.
func WithWindowsPaths(windows bool) Option {
	return func(o *Orchestrator) { o.windows = windows }
}

func WithProgress(visible bool) Option {
	return func(o *Orchestrator) { o.progress = visible }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(defaults config.ScanConfig, overrides config.Overrides, manager drive.Manager, client transport.Client, factories []Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		defaults:  defaults,
		overrides: overrides,
		manager:   manager,
		client:    client,
		factories: factories,
		windows:   runtime.GOOS == "windows",
		progress:  progressVisible(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State { return o.state }

// Run performs one complete scan. Scanner, drive and delivery failures are
// logged and recorded in the Result. A failure to list drives, a second call
// or a cancelled ctx aborts the run; an aborted run finalizes nothing, so the
// index snapshot stays as it was.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if o.state != Idle {
		return nil, fmt.Errorf("orchestrator already ran (state %s)", o.state)
	}

	o.state = Initializing
	cfg := o.defaults.Merge(o.overrides)
	cfg.Timestamp = o.now().UTC().Format(time.RFC3339)
	logger.Debugf("iocscan running with %+v", cfg)

	partitions, err := o.manager.ListAvailable(ctx)
	if err != nil {
		o.state = Done
		return nil, fmt.Errorf("list drives: %w", err)
	}

	initCtx, endInit := tracing.StartTask(ctx, "iocscan.init")
	o.scanners = make([]scanner.Scanner, 0, len(o.factories))
	for _, factory := range o.factories {
		s := factory(cfg)
		if err := s.Init(initCtx); err != nil {
			logger.Errorf("Scanner %s failed to initialize: %v", s.Name(), err)
		}
		o.scanners = append(o.scanners, s)
	}
	endInit()

	o.state = Scanning
	res := &Result{Config: cfg}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Scanning files"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(o.progress),
		progressbar.OptionFullWidth(),
	)
	for _, p := range partitions {
		res.Drives = append(res.Drives, o.scanDrive(ctx, cfg, p, bar))
		if ctx.Err() != nil {
			break
		}
	}
	_ = bar.Finish()

	if err := ctx.Err(); err != nil {
		o.abort()
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	o.state = Finalizing
	res.State = scanner.State{}
	res.Report = []scanner.Detection{}
	for _, s := range o.scanners {
		state, report := s.Finalize()
		for k, v := range state {
			res.State[k] = v
		}
		res.Report = append(res.Report, report...)
	}

	res.Delivered = o.deliver(ctx, cfg, res)
	o.state = Done
	logger.Info("iocscan done")
	return res, nil
}

func (o *Orchestrator) scanDrive(ctx context.Context, cfg config.ScanConfig, p drive.Partition, bar *progressbar.ProgressBar) DriveResult {
	out := DriveResult{Device: p.Device, Mountpoint: p.Mountpoint}
	ctx, endTask := tracing.StartTask(ctx, "iocscan.drive")
	defer endTask()
	tracing.Log(ctx, "drive", p.Mountpoint)

	logger.Infof("Scanning %s | %s", p.Device, p.Mountpoint)
	d, err := o.manager.Open(p.Device, p.Mountpoint)
	if err != nil {
		out.Err = &DriveError{Device: p.Device, Mountpoint: p.Mountpoint, Err: err}
		logger.Warnf("%v", out.Err)
		return out
	}

	prune := func(path string) bool {
		return !utils.HasAnyPrefix(utils.NormalizeScanPath(path, o.windows), cfg.ExcludeDirs)
	}
	bar.Describe("Scanning " + p.Mountpoint)

	endRegion := tracing.StartRegion(ctx, "enumerate")
	err = d.EnumerateFiles(cfg.ScanRoots, prune, func(f drive.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warnf("I/O limiter disabled: %v", err)
				o.limiter = nil
			}
		}
		out.Files++
		for _, s := range o.scanners {
			s.Process(p.Mountpoint, f)
		}
		_ = bar.Add(1)
		return nil
	})
	endRegion()
	if ctx.Err() != nil {
		out.Err = ctx.Err()
		logger.Warnf("Scan of %s interrupted after %d files", p.Mountpoint, out.Files)
		return out
	}
	if err != nil {
		out.Err = &DriveError{Device: p.Device, Mountpoint: p.Mountpoint, Err: err}
		logger.Warnf("%v", out.Err)
	}
	return out
}

// abort releases what the scanners hold without finalizing them.
func (o *Orchestrator) abort() {
	for _, s := range o.scanners {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warnf("Scanner %s: %v", s.Name(), err)
			}
		}
	}
	o.state = Done
}

func (o *Orchestrator) deliver(ctx context.Context, cfg config.ScanConfig, res *Result) bool {
	if o.client == nil {
		logger.Warn("No transport configured, results not delivered")
		return false
	}
	reportOK := o.send(ctx, ReportChannel(cfg.ReportingMode), ReportTopic, res.Report)
	stateOK := o.send(ctx, StateChannel, StateTopic, res.State)
	return reportOK && stateOK
}

func (o *Orchestrator) send(ctx context.Context, channel, topic string, payload any) bool {
	ok := true
	if err := o.client.Send(ctx, channel, topic, payload); err != nil {
		logger.Errorf("Could not send %s on %s: %v", topic, channel, err)
		ok = false
	}
	if err := o.client.Flush(ctx, channel); err != nil {
		logger.Errorf("Could not flush %s: %v", channel, err)
		ok = false
	}
	return ok
}

// Failed lists the drives that did not scan cleanly.
func (r *Result) Failed() []DriveResult {
	var out []DriveResult
	for _, d := range r.Drives {
		var de *DriveError
		if errors.As(d.Err, &de) {
			out = append(out, d)
		}
	}
	return out
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("IOCSCAN_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
