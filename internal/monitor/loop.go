package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
	"fleet-monitor/speedwatch/internal/metrics"
)

// vesselLoop polls a single vessel. state, last and failures are owned by the
// run goroutine; everyone else reads the published status.
type vesselLoop struct {
	cfg      domain.VesselConfig
	source   Source
	notifier Notifier
	history  HistorySink
	gate     *CooldownGate
	opts     Options
	logger   *slog.Logger

	status atomic.Pointer[domain.VesselStatus]
	cancel context.CancelFunc
	done   chan struct{}

	// fetching is set while a Fetch call is running, including one that was
	// abandoned after its timeout.
	fetching atomic.Bool

	state    domain.State
	last     *domain.VesselReading
	failures int
}

func newVesselLoop(cfg domain.VesselConfig, f *Fleet, cancel context.CancelFunc) *vesselLoop {
	l := &vesselLoop{
		cfg:      cfg,
		source:   f.source,
		notifier: f.notifier,
		history:  f.opts.History,
		gate:     f.gate,
		opts:     f.opts,
		logger:   f.logger.With("vessel", cfg.ID),
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    domain.StateUnknown,
	}
	l.status.Store(&domain.VesselStatus{
		ID:    cfg.ID,
		Name:  cfg.Name,
		State: domain.StateUnknown,
	})
	return l
}

// Status returns the last published status without blocking the loop.
func (l *vesselLoop) Status() domain.VesselStatus {
	return *l.status.Load()
}

func (l *vesselLoop) run(ctx context.Context) {
	defer close(l.done)

	next := time.Now()
	for {
		if !sleepUntil(ctx, next) {
			return
		}
		start := time.Now()
		if err := l.poll(ctx); err != nil {
			l.halt(err)
			return
		}
		// Scheduled from the tick start so slow polls do not drift; a tick
		// already in the past runs immediately.
		next = start.Add(l.cfg.CheckInterval)
	}
}

func sleepUntil(ctx context.Context, at time.Time) bool {
	wait := time.Until(at)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return ctx.Err() == nil
	}
}

var errFetchStillRunning = errors.New("previous fetch still running")

// poll runs one cycle. A non-nil error is fatal to this loop only.
func (l *vesselLoop) poll(ctx context.Context) error {
	id := l.cfg.ID

	// A source that ignores its context keeps at most one call outstanding.
	if !l.fetching.CompareAndSwap(false, true) {
		l.fetchFailed(domain.NewTimeoutError("fetch", id, errFetchStillRunning))
		return nil
	}

	started := time.Now()
	reading, err := callWithTimeout(ctx, l.opts.FetchTimeout, "fetch", id,
		func(c context.Context) (domain.VesselReading, error) {
			defer l.fetching.Store(false)
			return l.source.Fetch(c, id)
		})
	metrics.FetchDuration.Observe(time.Since(started).Seconds())

	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = validateReading(id, &reading, l.opts.Now())
	}
	if err != nil {
		l.fetchFailed(err)
		return nil
	}
	metrics.PollsTotal.WithLabelValues("success").Inc()

	raw := Classify(reading.Speed, l.cfg)
	kind, fire, err := Transition(l.state, raw)
	if err != nil {
		return err
	}

	prev := l.state
	l.state = raw
	l.last = &reading
	l.failures = 0
	status := l.publish("")

	if l.history != nil {
		l.history.Record(status)
	}
	if prev != raw {
		setStateGauge(id, raw)
		l.logger.Info("vessel state changed", "from", prev.String(), "to", raw.String(), "speed", reading.Speed)
	}
	if fire {
		l.alert(ctx, kind, prev, raw, reading)
	}
	return nil
}

func validateReading(id string, r *domain.VesselReading, now time.Time) error {
	if math.IsNaN(r.Speed) || math.IsInf(r.Speed, 0) || r.Speed < 0 {
		return &domain.FetchError{ID: id, Err: fmt.Errorf("malformed speed %v", r.Speed)}
	}
	if r.ID == "" {
		r.ID = id
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	return nil
}

func (l *vesselLoop) fetchFailed(err error) {
	l.failures++

	result := "failure"
	if domain.IsTimeout(err) {
		result = "timeout"
	}
	metrics.PollsTotal.WithLabelValues(result).Inc()

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		err = &domain.FetchError{ID: l.cfg.ID, Err: err}
	}
	l.logger.Warn("vessel fetch failed", "failures", l.failures, "error", err)
	l.publish(err.Error())
}

func (l *vesselLoop) alert(ctx context.Context, kind domain.AlertKind, prev, cur domain.State, reading domain.VesselReading) {
	id := l.cfg.ID
	now := l.opts.Now()

	if !l.gate.Allow(id, kind, now) {
		metrics.AlertsTotal.WithLabelValues(kind.String(), "suppressed").Inc()
		l.logger.Debug("alert suppressed by cooldown", "kind", kind.String())
		return
	}
	if ctx.Err() != nil {
		return
	}

	ev := domain.AlertEvent{
		ID:        id,
		Name:      l.cfg.Name,
		Kind:      kind,
		Reading:   reading,
		Previous:  prev,
		Current:   cur,
		Timestamp: now,
	}
	// A delivery that has started is allowed to finish (bounded by the
	// dispatch timeout) even if the vessel is deregistered meanwhile.
	_, err := callWithTimeout(context.WithoutCancel(ctx), l.opts.DispatchTimeout, "dispatch", id,
		func(c context.Context) (struct{}, error) {
			return struct{}{}, l.notifier.Dispatch(c, ev)
		})
	if err != nil {
		var de *domain.DispatchError
		if !errors.As(err, &de) {
			err = &domain.DispatchError{ID: id, Kind: kind, Err: err}
		}
		metrics.AlertsTotal.WithLabelValues(kind.String(), "failed").Inc()
		l.logger.Error("alert dispatch failed", "kind", kind.String(), "error", err)
		return
	}

	metrics.AlertsTotal.WithLabelValues(kind.String(), "dispatched").Inc()
	l.logger.Info("alert dispatched", "kind", kind.String(), "speed", reading.Speed)
}

func (l *vesselLoop) publish(lastErr string) domain.VesselStatus {
	s := &domain.VesselStatus{
		ID:                  l.cfg.ID,
		Name:                l.cfg.Name,
		State:               l.state,
		LastReading:         l.last,
		LastPollAt:          l.opts.Now(),
		LastError:           lastErr,
		ConsecutiveFailures: l.failures,
	}
	l.status.Store(s)
	return *s
}

func (l *vesselLoop) halt(err error) {
	s := l.Status()
	s.Halted = true
	s.LastError = err.Error()
	l.status.Store(&s)

	metrics.LoopHalts.Inc()
	l.logger.Error("vessel monitor halted", "error", err)
}

func setStateGauge(id string, cur domain.State) {
	for _, s := range domain.States {
		v := 0.0
		if s == cur {
			v = 1
		}
		metrics.VesselState.WithLabelValues(id, s.String()).Set(v)
	}
}

// callWithTimeout bounds fn even when it ignores its context. On timeout the
// call is abandoned and its result discarded; the goroutine running fn lives
// until fn returns. Fetches guard against piling these up with the loop's
// fetching flag.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, op, id string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return r.v, domain.NewTimeoutError(op, id, r.err)
		}
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, domain.NewTimeoutError(op, id, cctx.Err())
	}
}
