package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// DispatchObserver records dispatcher passes.
type DispatchObserver interface {
	ObserveDispatch(result DispatchResult, err error)
}

// Dispatcher sends due scheduled messages on a cron schedule.
type Dispatcher struct {
	service  *Service
	cron     *cron.Cron
	parser   cron.Parser
	spec     string
	observer DispatchObserver
	logger   *slog.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	started bool
	running sync.Mutex
}

func NewDispatcher(log *slog.Logger, service *Service, spec string) (*Dispatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	spec = strings.TrimSpace(spec)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid dispatch schedule %q: %w", spec, err)
	}
	return &Dispatcher{
		service: service,
		cron:    cron.New(cron.WithParser(parser)),
		parser:  parser,
		spec:    spec,
		logger:  log.With(slog.String("service", "dispatcher")),
	}, nil
}

func (d *Dispatcher) SetObserver(o DispatchObserver) {
	d.observer = o
}

// Start registers the dispatch job and starts the scheduler. Every pass runs with ctx.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	entry, err := d.cron.AddFunc(d.spec, func() {
		d.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	d.entry = entry
	d.started = true
	d.cron.Start()
	d.logger.Info("dispatcher started", slog.String("spec", d.spec))
	return nil
}

// Stop halts the scheduler and waits for a running pass, or until ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.cron.Remove(d.entry)
	d.started = false
	d.mu.Unlock()

	done := d.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single dispatch pass. Overlapping passes are skipped.
func (d *Dispatcher) RunOnce(ctx context.Context) DispatchResult {
	if !d.running.TryLock() {
		d.logger.Debug("dispatch pass still running, skipping")
		return DispatchResult{}
	}
	defer d.running.Unlock()

	result, err := d.service.DispatchDue(ctx)
	if d.observer != nil {
		d.observer.ObserveDispatch(result, err)
	}
	if err != nil {
		d.logger.Error("dispatch pass failed", slog.Any("error", err))
		return result
	}
	if result.Sent+result.Failed+result.Skipped > 0 {
		d.logger.Info("dispatch pass",
			slog.Int("sent", result.Sent),
			slog.Int("failed", result.Failed),
			slog.Int("skipped", result.Skipped))
	}
	return result
}
