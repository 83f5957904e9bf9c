package faults

import (
	"errors"
	"fmt"
)

// Shared failure taxonomy. Every component returns one of these sentinels
// (possibly wrapped with context via fmt.Errorf %w) so callers can branch
// with errors.Is regardless of which registry rejected the call.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidState       = errors.New("invalid state for requested transition")
	ErrCapacityViolation  = errors.New("capacity violation")
	ErrRiderNotEligible   = errors.New("rider not eligible")
	ErrNoCapacity         = errors.New("no capacity at port")
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
	ErrPartialFailure     = errors.New("partial failure")
)

// PartialFailure reports that a composite lifecycle operation committed one
// registry mutation and then failed the next, leaving the registries
// mutually inconsistent until reconciled. Callers detect it with
// errors.Is(err, ErrPartialFailure) and inspect the step fields to decide
// how to reconcile.
type PartialFailure struct {
	Op            string // lifecycle operation, e.g. "start_trip"
	CommittedStep string // mutation that committed, e.g. "fleet.start_trip"
	FailedStep    string // mutation that failed, e.g. "portcap.apply_delta"
	Cause         error
}

func (p *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %s committed but %s failed: %v",
		p.Op, p.CommittedStep, p.FailedStep, p.Cause)
}

// Is makes errors.Is(err, ErrPartialFailure) succeed.
func (p *PartialFailure) Is(target error) bool {
	return target == ErrPartialFailure
}

func (p *PartialFailure) Unwrap() error {
	return p.Cause
}
