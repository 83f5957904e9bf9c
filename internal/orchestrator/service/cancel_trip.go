package service

import (
	"context"
	"fmt"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// CancelTrip terminates a trip that has not started (REQUESTED or
// CONFIRMED). The vehicle assignment made at reservation time is
// deliberately not released here; operators release it out-of-band via
// ReleaseVehicle once the cancellation is settled.
func (o *Orchestrator) CancelTrip(ctx context.Context, caller, tripID string) (*TripDTO, error) {
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

	previous := trip.Status()
	if err := trip.Cancel(); err != nil {
		return nil, err
	}
	if err := o.trips.Update(ctx, trip); err != nil {
		o.logger.WithFields(logger.LogFields{"trip_id": tripID}).Error("update_trip_failed", err)
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}

	o.emitTripChange(tripID, previous, domain.StatusCancelled)
	o.logger.WithFields(logger.LogFields{
		"trip_id":    tripID,
		"vehicle_id": trip.VehicleID(),
	}).Info("trip_cancelled", "Trip cancelled; vehicle remains assigned until released")

	return toTripDTO(trip), nil
}
