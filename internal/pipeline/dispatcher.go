package pipeline

import (
	"fleet-monitor/speedwatch/internal/domain"
	"fleet-monitor/speedwatch/internal/metrics"
)

// Dispatcher fans polled statuses out to the history writers. A nil channel
// disables that sink. Record never blocks: a full channel drops the status.
type Dispatcher struct {
	DBChan    chan domain.VesselStatus
	StateChan chan domain.VesselStatus
}

func NewDispatcher(dbSize, stateSize int) *Dispatcher {
	d := &Dispatcher{}
	if dbSize > 0 {
		d.DBChan = make(chan domain.VesselStatus, dbSize)
	}
	if stateSize > 0 {
		d.StateChan = make(chan domain.VesselStatus, stateSize)
	}
	return d
}

func (d *Dispatcher) Record(status domain.VesselStatus) {
	if d.DBChan != nil {
		select {
		case d.DBChan <- status:
		default:
			metrics.HistoryDrops.WithLabelValues("db").Inc()
		}
	}

	if d.StateChan != nil {
		select {
		case d.StateChan <- status:
		default:
			metrics.HistoryDrops.WithLabelValues("state").Inc()
		}
	}
}

// Close closes the channels so the writers drain and exit. Record must not be
// called afterwards.
func (d *Dispatcher) Close() {
	if d.DBChan != nil {
		close(d.DBChan)
	}
	if d.StateChan != nil {
		close(d.StateChan)
	}
}
