package model

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation error")

// ValidationError reports a malformed or inconsistent snapshot. It is never
// auto-corrected: the caller must fix the named entity and field.
type ValidationError struct {
	Entity string // e.g. "snapshot", "commercial_row", "phase"
	Field  string // offending field
	Value  any    // offending value, if useful
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s.%s (%v): %s", e.Entity, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s.%s: %s", e.Entity, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidation returns true if err (or any error in its chain) is a
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WarningCode classifies a non-fatal data-quality issue.
type WarningCode string

const (
	// WarningPhaseGap flags a phase between the current phase and the
	// terminal phase that has no success rate; it is treated as 1.0.
	WarningPhaseGap WarningCode = "phase_coverage_gap"
	// WarningIgnoredShift flags a duration lever on a historical phase.
	WarningIgnoredShift WarningCode = "ignored_duration_shift"
	// WarningLaunchAfterLOE flags a row whose shifted launch falls on or
	// after its LOE date; the row earns no revenue.
	WarningLaunchAfterLOE WarningCode = "launch_after_loe"
)

// Warning is surfaced alongside a successful result.
type Warning struct {
	Code    WarningCode `json:"code"`
	Phase   Phase       `json:"phase,omitempty"`
	Message string      `json:"message"`
}
