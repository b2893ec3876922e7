package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
	"fleet-monitor/speedwatch/internal/metrics"
)

type ReadingStore interface {
	BatchInsert(ctx context.Context, statuses []domain.VesselStatus) error
}

const (
	retryDelay   = 500 * time.Millisecond
	flushTimeout = 10 * time.Second
)

type DBWriter struct {
	ch        <-chan domain.VesselStatus
	db        ReadingStore
	batchSize int
	flushMS   int
	logger    *slog.Logger
}

func NewDBWriter(
	ch <-chan domain.VesselStatus,
	db ReadingStore,
	batchSize int,
	flushMS int,
	logger *slog.Logger,
) *DBWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushMS <= 0 {
		flushMS = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DBWriter{
		ch:        ch,
		db:        db,
		batchSize: batchSize,
		flushMS:   flushMS,
		logger:    logger,
	}
}

// Run batches statuses until ch is closed or ctx is done. The pending batch
// is flushed on exit with a fresh timeout so shutdown does not lose it.
func (w *DBWriter) Run(ctx context.Context) {
	batch := make([]domain.VesselStatus, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-w.ch:
			if !ok {
				w.finalFlush(batch)
				return
			}
			batch = append(batch, st)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.finalFlush(batch)
			return
		}
	}
}

func (w *DBWriter) finalFlush(batch []domain.VesselStatus) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	w.flush(ctx, batch)
}

func (w *DBWriter) flush(ctx context.Context, batch []domain.VesselStatus) {
	err := w.db.BatchInsert(ctx, batch)
	if err != nil {
		w.logger.Warn("db write failed, retrying", "batch", len(batch), "error", err)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			w.logger.Error("db write abandoned", "batch", len(batch), "error", ctx.Err())
			metrics.DBWrites.WithLabelValues("failure").Add(float64(len(batch)))
			return
		}
		err = w.db.BatchInsert(ctx, batch)
		if err != nil {
			w.logger.Error("db write permanently failed", "batch", len(batch), "error", err)
			metrics.DBWrites.WithLabelValues("failure").Add(float64(len(batch)))
			return
		}
	}
	metrics.DBWrites.WithLabelValues("success").Add(float64(len(batch)))
}
