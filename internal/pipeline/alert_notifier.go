package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"fleet-monitor/speedwatch/internal/domain"
)

type AlertStore interface {
	InsertAlert(ctx context.Context, ev domain.AlertEvent) error
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, ev domain.AlertEvent) error
}

// AlertNotifier delivers alerts by persisting them and publishing them to
// live subscribers. Either backend may be nil; with both nil alerts are only
// logged.
type AlertNotifier struct {
	db     AlertStore
	pub    AlertPublisher
	logger *slog.Logger
}

func NewAlertNotifier(db AlertStore, pub AlertPublisher, logger *slog.Logger) *AlertNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertNotifier{db: db, pub: pub, logger: logger}
}

// Dispatch tries every backend even if one fails and reports the combined
// failure as a *domain.DispatchError.
func (n *AlertNotifier) Dispatch(ctx context.Context, ev domain.AlertEvent) error {
	n.logger.Info("vessel alert",
		"vessel", ev.ID,
		"name", ev.Name,
		"kind", ev.Kind,
		"severity", ev.Kind.Severity(),
		"previous", ev.Previous,
		"current", ev.Current,
		"speed", ev.Reading.Speed,
	)

	var errs []error
	if n.db != nil {
		if err := n.db.InsertAlert(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if n.pub != nil {
		if err := n.pub.PublishAlert(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &domain.DispatchError{ID: ev.ID, Kind: ev.Kind, Err: errors.Join(errs...)}
	}
	return nil
}
