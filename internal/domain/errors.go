package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid vessel config")
	ErrDuplicateVessel = errors.New("vessel already registered")
	ErrVesselNotFound  = errors.New("vessel not registered")
	ErrFleetClosed     = errors.New("fleet is shut down")
	ErrClassifier      = errors.New("classifier error")
)

// FetchError wraps a failure to obtain a reading for a vessel.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DispatchError wraps a failure to deliver an alert.
type DispatchError struct {
	ID   string
	Kind AlertKind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s alert for %s: %v", e.Kind, e.ID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// TimeoutError represents an external call that did not finish in time.
type TimeoutError struct {
	Operation string
	ID        string
	Err       error
}

func (e *TimeoutError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("timeout: %s on %s: %v", e.Operation, e.ID, e.Err)
	}
	return fmt.Sprintf("timeout: %s: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func NewTimeoutError(operation, id string, err error) *TimeoutError {
	return &TimeoutError{Operation: operation, ID: id, Err: err}
}

// IsTimeout reports whether err is a TimeoutError or wraps context.DeadlineExceeded.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
