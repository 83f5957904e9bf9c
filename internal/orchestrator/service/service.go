package service

import (
	"fmt"
	"sync"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// Orchestrator owns trip records and drives their lifecycle by validating
// against and mutating the three leaf registries in a fixed sequence per
// operation. It never assumes atomicity across the multiple registry calls
// a single operation issues: each leaf call commits on its own, and the
// two documented partial-failure windows (StartTrip, CompleteTrip) are
// surfaced as faults.PartialFailure instead of being hidden.
type Orchestrator struct {
	trips       domain.TripRepository
	eligibility domain.EligibilityChecker
	ports       domain.PortRegistry
	fleet       domain.FleetRegistry
	verifier    domain.CredentialVerifier
	sink        events.Sink
	logger      logger.Logger

	// principal is the identity the orchestrator presents to the leaf
	// registries; their allow-lists are keyed on it.
	principal string

	mu       sync.Mutex
	operator string
}

func NewOrchestrator(
	trips domain.TripRepository,
	eligibility domain.EligibilityChecker,
	ports domain.PortRegistry,
	fleet domain.FleetRegistry,
	verifier domain.CredentialVerifier,
	sink events.Sink,
	log logger.Logger,
	principal string,
	operator string,
) *Orchestrator {
	return &Orchestrator{
		trips:       trips,
		eligibility: eligibility,
		ports:       ports,
		fleet:       fleet,
		verifier:    verifier,
		sink:        sink,
		logger:      log,
		principal:   principal,
		operator:    operator,
	}
}

// requireOperator guards every mutating lifecycle operation.
func (o *Orchestrator) requireOperator(caller string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.operator {
		return fmt.Errorf("caller %q is not the operator: %w", caller, faults.ErrAccessDenied)
	}
	return nil
}

// SetOperator replaces the operator. Only the current operator may reassign.
func (o *Orchestrator) SetOperator(caller, newOperator string) error {
	if newOperator == "" {
		return fmt.Errorf("new operator identity is empty: %w", faults.ErrInvalidArgument)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if caller != o.operator {
		return fmt.Errorf("caller %q is not the operator: %w", caller, faults.ErrAccessDenied)
	}

	previous := o.operator
	o.operator = newOperator

	o.sink.Emit(events.Record("orchestrator_operator", newOperator, previous, newOperator))
	o.logger.WithFields(logger.LogFields{
		"previous_operator": previous,
		"new_operator":      newOperator,
	}).Info("operator_set", "Orchestrator operator replaced")

	return nil
}

// emitTripChange publishes the structured change record for a trip
// transition.
func (o *Orchestrator) emitTripChange(tripID string, previous, next domain.TripStatus) {
	o.sink.Emit(events.Record("trip", tripID, previous.String(), next.String()))
}
