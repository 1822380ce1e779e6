// Package runner drives the periodic sync cycles from a cron schedule and
// fires the delayed startup run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/doorsync/internal/application"
)

// Syncer is the slice of the sync orchestrator the runner needs.
type Syncer interface {
	RunOnce(ctx context.Context, trigger string) (application.SyncResult, error)
}

// Config controls when cycles fire. Spec accepts a five-field cron
// expression or a descriptor such as "@every 90s".
type Config struct {
	Spec         string
	StartupDelay time.Duration
	Zone         *time.Location
}

// Runner owns the cron scheduler. Concurrent triggers are serialized by the
// orchestrator itself; the runner only reports when one was skipped.
type Runner struct {
	syncer Syncer
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
}

// New builds a runner. A nil logger falls back to slog.Default.
func New(syncer Syncer, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Zone == nil {
		cfg.Zone = time.UTC
	}
	return &Runner{
		syncer: syncer,
		cfg:    cfg,
		logger: logger.With("component", "runner"),
	}
}

// ParseSpec validates a schedule spec without starting anything. Config
// loading uses it to reject bad expressions at boot.
func ParseSpec(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(spec)
}

// Start parses the spec, starts the cron loop and arms the startup kick.
// It returns immediately; cycles run on the cron goroutine.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runner is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner already started")
	}

	schedule, err := ParseSpec(r.cfg.Spec)
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", r.cfg.Spec, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.cron = cron.New(cron.WithLocation(r.cfg.Zone))
	r.cron.Schedule(schedule, cron.FuncJob(func() {
		r.kick(runCtx, "scheduled")
	}))
	r.cron.Start()
	r.started = true

	r.logger.Info("sync runner started",
		"spec", r.cfg.Spec,
		"startup_delay", r.cfg.StartupDelay,
		"next_run", schedule.Next(time.Now().In(r.cfg.Zone)),
	)

	go r.startupKick(runCtx)
	return nil
}

// startupKick waits out the configured delay so the HTTP surface is up and
// the controller has a chance to come online, then runs the first cycle.
func (r *Runner) startupKick(ctx context.Context) {
	if r.cfg.StartupDelay > 0 {
		timer := time.NewTimer(r.cfg.StartupDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	r.kick(ctx, "startup")
}

// Kick runs one cycle outside the cron cadence, for the file watcher.
func (r *Runner) Kick(ctx context.Context, trigger string) {
	if r == nil {
		return
	}
	r.kick(ctx, trigger)
}

func (r *Runner) kick(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	result, err := r.syncer.RunOnce(ctx, trigger)
	if errors.Is(err, application.ErrBusy) {
		r.logger.Info("cycle already running, trigger skipped", "trigger", trigger)
		return
	}
	if err != nil {
		r.logger.Error("sync cycle failed to start", "trigger", trigger, "error", err)
		return
	}
	r.logger.Debug("cycle finished",
		"trigger", trigger,
		"run_id", result.RunID,
		"summary", result.Summary,
	)
}

// Stop halts the cron loop and waits for a running job to return.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.cancel()
	drained := r.cron.Stop()
	<-drained.Done()
	r.started = false
	r.logger.Info("sync runner stopped")
}
