package service

import (
	"context"
	"fmt"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// CompleteTrip moves an IN_PROGRESS trip to COMPLETED. Mirror image of
// StartTrip: the vehicle parks at the destination, then one parking slot
// is occupied there. Same non-atomic pair, same PartialFailure surfacing.
func (o *Orchestrator) CompleteTrip(ctx context.Context, caller, tripID, destinationCredential string) (*TripDTO, error) {
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
	if trip.Status() != domain.StatusInProgress {
		return nil, fmt.Errorf("trip %q is %s, not IN_PROGRESS: %w", tripID, trip.Status(), faults.ErrInvalidState)
	}

	// Mutation 1: vehicle IN_USE -> PARKED at destination, assignment cleared.
	if err := o.fleet.CompleteTrip(o.principal, trip.VehicleID(), trip.DestinationPort()); err != nil {
		o.logger.WithFields(logger.LogFields{
			"trip_id":    tripID,
			"vehicle_id": trip.VehicleID(),
		}).Error("fleet_complete_failed", err)
		return nil, err
	}

	// Mutation 2: the arriving vehicle occupies one parking slot.
	if err := o.ports.ApplyDelta(o.principal, trip.DestinationPort(), destinationCredential, 0, -1); err != nil {
		o.logger.WithFields(logger.LogFields{
			"trip_id": tripID,
			"port_id": trip.DestinationPort(),
		}).Error("destination_delta_failed", err)
		return nil, &faults.PartialFailure{
			Op:            "complete_trip",
			CommittedStep: "fleet.complete_trip",
			FailedStep:    "portcap.apply_delta",
			Cause:         err,
		}
	}

	if err := trip.Complete(); err != nil {
		return nil, err
	}
	if err := o.trips.Update(ctx, trip); err != nil {
		o.logger.WithFields(logger.LogFields{"trip_id": tripID}).Error("update_trip_failed", err)
		return nil, &faults.PartialFailure{
			Op:            "complete_trip",
			CommittedStep: "portcap.apply_delta",
			FailedStep:    "trips.update",
			Cause:         err,
		}
	}

	o.emitTripChange(tripID, domain.StatusInProgress, domain.StatusCompleted)
	o.logger.WithFields(logger.LogFields{
		"trip_id":    tripID,
		"vehicle_id": trip.VehicleID(),
	}).Info("trip_completed", "Trip completed, destination parking slot occupied")

	return toTripDTO(trip), nil
}
