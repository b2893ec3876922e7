package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
)

type StateStore interface {
	PipelineStateUpdate(ctx context.Context, status domain.VesselStatus) error
}

type StateWriter struct {
	ch     <-chan domain.VesselStatus
	redis  StateStore
	logger *slog.Logger
}

func NewStateWriter(
	ch <-chan domain.VesselStatus,
	redis StateStore,
	logger *slog.Logger,
) *StateWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateWriter{ch: ch, redis: redis, logger: logger}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]domain.VesselStatus, 0, 100)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-w.ch:
			if !ok {
				w.finalFlush(ctx, batch)
				return
			}
			batch = append(batch, st)
			if len(batch) >= 100 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.finalFlush(ctx, batch)
			return
		}
	}
}

func (w *StateWriter) finalFlush(ctx context.Context, batch []domain.VesselStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	w.flushBatch(ctx, batch)
}

// flushBatch writes only the newest status per vessel; older ones in the same
// batch would be overwritten immediately.
func (w *StateWriter) flushBatch(ctx context.Context, batch []domain.VesselStatus) {
	if len(batch) == 0 {
		return
	}
	latest := make(map[string]int, len(batch))
	for i, st := range batch {
		latest[st.ID] = i
	}
	for i, st := range batch {
		if latest[st.ID] != i {
			continue
		}
		if err := w.redis.PipelineStateUpdate(ctx, st); err != nil {
			w.logger.Warn("redis state update failed", "vessel", st.ID, "error", err)
		}
	}
}
