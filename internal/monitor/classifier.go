package monitor

import (
	"fmt"

	"fleet-monitor/speedwatch/internal/domain"
)

// Classify maps a single speed reading to its raw state, ignoring history.
func Classify(speed float64, cfg domain.VesselConfig) domain.State {
	switch {
	case speed <= cfg.StopThreshold:
		return domain.StateStopped
	case speed <= cfg.SlowdownThreshold:
		return domain.StateSlowdown
	default:
		return domain.StateNormal
	}
}

// Transition is edge-triggered: it only yields an alert when raw differs from
// prev and the change crosses one of the reportable boundaries.
// STOPPED -> SLOWDOWN stays silent until the vessel is NORMAL again.
func Transition(prev, raw domain.State) (domain.AlertKind, bool, error) {
	switch raw {
	case domain.StateNormal, domain.StateSlowdown, domain.StateStopped:
	default:
		return 0, false, fmt.Errorf("%w: raw state %s", domain.ErrClassifier, raw)
	}
	if prev == raw {
		return 0, false, nil
	}

	switch prev {
	case domain.StateUnknown, domain.StateNormal:
		switch raw {
		case domain.StateStopped:
			return domain.AlertStopped, true, nil
		case domain.StateSlowdown:
			return domain.AlertSlowdown, true, nil
		}
		return 0, false, nil
	case domain.StateSlowdown:
		switch raw {
		case domain.StateStopped:
			return domain.AlertStopped, true, nil
		case domain.StateNormal:
			return domain.AlertRecovered, true, nil
		}
		return 0, false, nil
	case domain.StateStopped:
		if raw == domain.StateNormal {
			return domain.AlertRecovered, true, nil
		}
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: previous state %s", domain.ErrClassifier, prev)
	}
}
