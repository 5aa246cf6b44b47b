package amplitude

import (
	"errors"
	"fmt"
)

var (
	ErrAmplitudeNotFound = errors.New("amplitude not found")
	ErrParameterNotFound = errors.New("parameter not found")
	ErrParameterCount    = errors.New("wrong number of parameters")
	ErrInvalidAmplitude  = errors.New("invalid amplitude")
	ErrInvalidBounds     = errors.New("invalid bounds")
	ErrEmptyModel        = errors.New("model has no coherent sums")
	ErrNodeShared        = errors.New("node already bound to another dataset")
	ErrNilDataset        = errors.New("nil dataset")
	ErrUnknownKind       = errors.New("unknown amplitude kind")
)

// PrecalculationError reports a node that could not prepare its cache.
type PrecalculationError struct {
	Amplitude string
	Err       error
}

func (e *PrecalculationError) Error() string {
	return fmt.Sprintf("precalculate amplitude %q: %v", e.Amplitude, e.Err)
}

func (e *PrecalculationError) Unwrap() error { return e.Err }

// EvaluationError reports a node that failed on a specific event.
type EvaluationError struct {
	Amplitude string
	Event     int
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate amplitude %q on event %d: %v", e.Amplitude, e.Event, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
