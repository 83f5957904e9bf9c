package service

import (
	"context"
	"errors"
	"fmt"

	"av-trip/internal/orchestrator/domain"
	"av-trip/internal/registry/fleet"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// ReleaseVehicle returns a stranded EXPECTING vehicle to service. Three
// situations leave a vehicle assigned with no live trip holding it:
// cancellation (which deliberately does not touch the fleet registry), a
// reservation whose trip record was never saved after the assignment
// committed, and a duplicate-id race where the stored trip belongs to a
// different vehicle. All three are releasable here; a vehicle whose
// assigned trip exists, matches, and is still live is rejected.
func (o *Orchestrator) ReleaseVehicle(ctx context.Context, caller, vehicleID string) error {
	if err := o.requireOperator(caller); err != nil {
		return err
	}
	if vehicleID == "" {
		return fmt.Errorf("vehicle id is empty: %w", faults.ErrInvalidArgument)
	}

	state, err := o.fleet.GetState(vehicleID)
	if err != nil {
		return err
	}
	if state.AssignedTrip == "" {
		return fmt.Errorf("vehicle %q has no assigned trip: %w", vehicleID, faults.ErrInvalidState)
	}

	trip, err := o.trips.FindByID(ctx, state.AssignedTrip)
	switch {
	case errors.Is(err, faults.ErrNotFound):
		// The assignment committed but the trip record was never saved
		// (the create-side partial failure). Nothing references the
		// vehicle, so the release may proceed.
	case err != nil:
		return err
	case trip.VehicleID() != vehicleID:
		// The stored trip holds a different vehicle: this one lost a
		// duplicate-id race after its assignment committed.
	case trip.Status() != domain.StatusCancelled:
		return fmt.Errorf("trip %q is %s, not CANCELLED: %w", trip.ID(), trip.Status(), faults.ErrInvalidState)
	}

	if err := o.fleet.Release(o.principal, vehicleID); err != nil {
		return err
	}

	o.logger.WithFields(logger.LogFields{
		"vehicle_id": vehicleID,
		"trip_id":    state.AssignedTrip,
	}).Info("vehicle_released", "Vehicle released from dead assignment")

	return nil
}

// ReconcileTrip retries the capacity half of a partially-failed StartTrip
// or CompleteTrip. The window is detectable because the fleet registry and
// the trip record disagree: the vehicle already moved but the trip status
// did not. If trip and vehicle agree there is nothing to reconcile.
//
// Limitation: the registries carry no record of which half failed, so this
// cannot distinguish "capacity delta never applied" from "delta applied
// but the trip update failed afterwards". Reconciling the latter applies
// the delta a second time. With the in-memory repository the trip update
// cannot fail after the delta, so the ambiguity only arises on a durable
// store; operators should check the port's free counts before retrying.
func (o *Orchestrator) ReconcileTrip(ctx context.Context, caller, tripID, portCredential string) (*TripDTO, error) {
	if err := o.requireOperator(caller); err != nil {
		return nil, err
	}
	if tripID == "" {
		return nil, fmt.Errorf("trip id is empty: %w", faults.ErrInvalidArgument)
	}

	trip, err := o.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("trip %q: %w", tripID, faults.ErrNotFound)
	}
	state, err := o.fleet.GetState(trip.VehicleID())
	if err != nil {
		return nil, err
	}

	switch {
	// StartTrip committed its fleet half: vehicle is IN_USE on this trip
	// but the trip never advanced past CONFIRMED.
	case trip.Status() == domain.StatusConfirmed &&
		state.OperatingState == fleet.StateInUse &&
		state.AssignedTrip == tripID:

		if err := o.ports.ApplyDelta(o.principal, trip.OriginPort(), portCredential, 0, +1); err != nil {
			return nil, &faults.PartialFailure{
				Op:            "reconcile_trip",
				CommittedStep: "fleet.start_trip",
				FailedStep:    "portcap.apply_delta",
				Cause:         err,
			}
		}
		if err := trip.Start(); err != nil {
			return nil, err
		}
		if err := o.trips.Update(ctx, trip); err != nil {
			return nil, fmt.Errorf("failed to persist reconciled start: %w", err)
		}
		o.emitTripChange(tripID, domain.StatusConfirmed, domain.StatusInProgress)

	// CompleteTrip committed its fleet half: vehicle already parked at the
	// destination with its assignment cleared, trip still IN_PROGRESS.
	case trip.Status() == domain.StatusInProgress &&
		state.OperatingState == fleet.StateParked &&
		state.AssignedTrip == "" &&
		state.CurrentPort == trip.DestinationPort():

		if err := o.ports.ApplyDelta(o.principal, trip.DestinationPort(), portCredential, 0, -1); err != nil {
			return nil, &faults.PartialFailure{
				Op:            "reconcile_trip",
				CommittedStep: "fleet.complete_trip",
				FailedStep:    "portcap.apply_delta",
				Cause:         err,
			}
		}
		if err := trip.Complete(); err != nil {
			return nil, err
		}
		if err := o.trips.Update(ctx, trip); err != nil {
			return nil, fmt.Errorf("failed to persist reconciled completion: %w", err)
		}
		o.emitTripChange(tripID, domain.StatusInProgress, domain.StatusCompleted)

	default:
		return nil, fmt.Errorf("trip %q (%s) and vehicle %q (%s) are consistent, nothing to reconcile: %w",
			tripID, trip.Status(), state.ID, state.OperatingState, faults.ErrInvalidState)
	}

	o.logger.WithFields(logger.LogFields{
		"trip_id":    tripID,
		"vehicle_id": trip.VehicleID(),
		"status":     trip.Status().String(),
	}).Info("trip_reconciled", "Partial failure reconciled")

	return toTripDTO(trip), nil
}
