package service

import (
	"context"
	"fmt"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// StartTrip moves a CONFIRMED trip to IN_PROGRESS. Two independent leaf
// mutations run in sequence: the vehicle goes EXPECTING -> IN_USE, then one
// parking slot is released at the origin port. The pair is not atomic: if
// the capacity update fails after the fleet update committed, the trip
// status is left untouched and the caller gets a PartialFailure naming
// both steps. ReconcileTrip retries the capacity half.
func (o *Orchestrator) StartTrip(ctx context.Context, caller, tripID, originCredential string) (*TripDTO, error) {
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
	if trip.Status() != domain.StatusConfirmed {
		return nil, fmt.Errorf("trip %q is %s, not CONFIRMED: %w", tripID, trip.Status(), faults.ErrInvalidState)
	}

	// Mutation 1: vehicle EXPECTING -> IN_USE.
	if err := o.fleet.StartTrip(o.principal, trip.VehicleID()); err != nil {
		o.logger.WithFields(logger.LogFields{
			"trip_id":    tripID,
			"vehicle_id": trip.VehicleID(),
		}).Error("fleet_start_failed", err)
		return nil, err
	}

	// Mutation 2: the departing vehicle frees one parking slot at origin.
	if err := o.ports.ApplyDelta(o.principal, trip.OriginPort(), originCredential, 0, +1); err != nil {
		o.logger.WithFields(logger.LogFields{
			"trip_id": tripID,
			"port_id": trip.OriginPort(),
		}).Error("origin_delta_failed", err)
		return nil, &faults.PartialFailure{
			Op:            "start_trip",
			CommittedStep: "fleet.start_trip",
			FailedStep:    "portcap.apply_delta",
			Cause:         err,
		}
	}

	if err := trip.Start(); err != nil {
		return nil, err
	}
	if err := o.trips.Update(ctx, trip); err != nil {
		o.logger.WithFields(logger.LogFields{"trip_id": tripID}).Error("update_trip_failed", err)
		return nil, &faults.PartialFailure{
			Op:            "start_trip",
			CommittedStep: "portcap.apply_delta",
			FailedStep:    "trips.update",
			Cause:         err,
		}
	}

	o.emitTripChange(tripID, domain.StatusConfirmed, domain.StatusInProgress)
	o.logger.WithFields(logger.LogFields{
		"trip_id":    tripID,
		"vehicle_id": trip.VehicleID(),
	}).Info("trip_started", "Trip in progress, origin parking slot released")

	return toTripDTO(trip), nil
}
