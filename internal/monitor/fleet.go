package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
	"fleet-monitor/speedwatch/internal/metrics"
)

// Source fetches the current reading for a vessel. Failures should be
// *domain.FetchError.
type Source interface {
	Fetch(ctx context.Context, id string) (domain.VesselReading, error)
}

// Notifier delivers an alert. Failures should be *domain.DispatchError.
type Notifier interface {
	Dispatch(ctx context.Context, ev domain.AlertEvent) error
}

// HistorySink receives every successfully polled status. Record must not block.
type HistorySink interface {
	Record(status domain.VesselStatus)
}

type Options struct {
	FetchTimeout    time.Duration
	DispatchTimeout time.Duration
	History         HistorySink
	Logger          *slog.Logger
	Now             func() time.Time
}

const (
	DefaultFetchTimeout    = 10 * time.Second
	DefaultDispatchTimeout = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = DefaultDispatchTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Fleet owns one monitor loop per registered vessel. Register and Deregister
// are serialized; per-vessel state is only written by the vessel's own loop.
type Fleet struct {
	source   Source
	notifier Notifier
	opts     Options
	logger   *slog.Logger
	gate     *CooldownGate

	mu     sync.RWMutex
	loops  map[string]*vesselLoop
	closed bool
}

func NewFleet(source Source, notifier Notifier, opts Options) *Fleet {
	opts = opts.withDefaults()
	return &Fleet{
		source:   source,
		notifier: notifier,
		opts:     opts,
		logger:   opts.Logger,
		gate:     NewCooldownGate(),
		loops:    make(map[string]*vesselLoop),
	}
}

func (f *Fleet) Register(cfg domain.VesselConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return domain.ErrFleetClosed
	}
	if _, exists := f.loops[cfg.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateVessel, cfg.ID)
	}

	f.gate.Track(cfg.ID, cfg.AlertCooldown)
	ctx, cancel := context.WithCancel(context.Background())
	loop := newVesselLoop(cfg, f, cancel)
	f.loops[cfg.ID] = loop
	metrics.VesselsRegistered.Set(float64(len(f.loops)))
	setStateGauge(cfg.ID, domain.StateUnknown)

	go loop.run(ctx)

	f.logger.Info("vessel registered",
		"vessel", cfg.ID,
		"name", cfg.DisplayName(),
		"stop_threshold", cfg.StopThreshold,
		"slowdown_threshold", cfg.SlowdownThreshold,
		"check_interval", cfg.CheckInterval,
		"alert_cooldown", cfg.AlertCooldown,
	)
	return nil
}

// Deregister stops the vessel's loop and waits for it to exit before removing
// its state. Once it returns nil no further alert for id will be dispatched.
// If ctx expires first the loop is still cancelled but stays registered.
func (f *Fleet) Deregister(ctx context.Context, id string) error {
	f.mu.RLock()
	loop, ok := f.loops[id]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrVesselNotFound, id)
	}

	loop.cancel()
	select {
	case <-loop.done:
	case <-ctx.Done():
		return fmt.Errorf("deregister %s: %w", id, ctx.Err())
	}

	f.mu.Lock()
	if f.loops[id] == loop {
		delete(f.loops, id)
		f.gate.Forget(id)
		metrics.ClearVessel(id)
		metrics.VesselsRegistered.Set(float64(len(f.loops)))
	}
	f.mu.Unlock()

	f.logger.Info("vessel deregistered", "vessel", id)
	return nil
}

// Summary never waits on an in-flight poll: each vessel's status is read from
// an atomically swapped pointer.
func (f *Fleet) Summary() domain.FleetSnapshot {
	loops := f.snapshotLoops()

	vessels := make([]domain.VesselSummary, 0, len(loops))
	for _, l := range loops {
		vessels = append(vessels, l.Status().Summary())
	}
	sort.Slice(vessels, func(i, j int) bool {
		return vessels[i].ID < vessels[j].ID
	})

	return domain.FleetSnapshot{
		GeneratedAt: f.opts.Now(),
		Total:       len(vessels),
		Vessels:     vessels,
	}
}

func (f *Fleet) Status(id string) (domain.VesselStatus, bool) {
	f.mu.RLock()
	loop, ok := f.loops[id]
	f.mu.RUnlock()
	if !ok {
		return domain.VesselStatus{}, false
	}
	return loop.Status(), true
}

func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.loops)
}

// Shutdown cancels every loop and waits for all of them, bounded by ctx.
// The fleet rejects registrations afterwards.
func (f *Fleet) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	loops := make([]*vesselLoop, 0, len(f.loops))
	for _, l := range f.loops {
		loops = append(loops, l)
	}
	f.mu.Unlock()

	for _, l := range loops {
		l.cancel()
	}

	var waitErr error
	exited := 0
	for _, l := range loops {
		select {
		case <-l.done:
			exited++
		case <-ctx.Done():
			waitErr = fmt.Errorf("shutdown: %d of %d vessel loops still running: %w",
				len(loops)-exited, len(loops), ctx.Err())
		}
		if waitErr != nil {
			break
		}
	}

	f.mu.Lock()
	for id, l := range f.loops {
		select {
		case <-l.done:
			delete(f.loops, id)
			f.gate.Forget(id)
			metrics.ClearVessel(id)
		default:
		}
	}
	metrics.VesselsRegistered.Set(float64(len(f.loops)))
	f.mu.Unlock()

	if waitErr != nil {
		f.logger.Warn("fleet shutdown incomplete", "error", waitErr)
		return waitErr
	}
	f.logger.Info("fleet shut down", "vessels", len(loops))
	return nil
}

func (f *Fleet) snapshotLoops() []*vesselLoop {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*vesselLoop, 0, len(f.loops))
	for _, l := range f.loops {
		out = append(out, l)
	}
	return out
}
