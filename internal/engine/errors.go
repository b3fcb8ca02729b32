// Package engine is the top-level hole-fill driver spec.md §4/§6
// describes: it validates caller input, selects a backend (cpu or
// gpu) by name, and runs the automatic coarse-to-fine fill schedule
// spec.md §6 "Automatic fill schedule" specifies. It is the only
// package that imports both cpubackend and gpubackend, which keeps
// those two free of any dependency back on engine.
package engine

import (
	"errors"
	"fmt"

	"github.com/cwbudde/holefill/internal/gpubackend"
)

// Error taxonomy (spec.md §7), the canonical definitions every other
// package's errors are judged compatible with via errors.Is.
var (
	ErrInvalidInput              = errors.New("engine: invalid input")
	ErrInvalidState              = errors.New("engine: invalid state")
	ErrResourceExhausted         = errors.New("engine: resource exhausted")
	ErrInternalInvariantViolated = errors.New("engine: internal invariant violated")
)

// wrapBackendError reclassifies a gpubackend sentinel error under the
// engine's own taxonomy, so callers can use errors.Is(err,
// engine.ErrInvalidInput) regardless of which backend produced it.
func wrapBackendError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gpubackend.ErrInvalidInput):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, gpubackend.ErrInvalidState):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	case errors.Is(err, gpubackend.ErrResourceExhausted),
		errors.Is(err, gpubackend.ErrBackendUnavailable):
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	case errors.Is(err, gpubackend.ErrInternalInvariantViolated),
		errors.Is(err, gpubackend.ErrBackendNotImplemented):
		return fmt.Errorf("%w: %v", ErrInternalInvariantViolated, err)
	default:
		return err
	}
}
