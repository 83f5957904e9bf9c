package service

import (
	"context"
	"fmt"

	"av-trip/internal/orchestrator/domain"
	"av-trip/internal/registry/eligibility"
	"av-trip/internal/registry/fleet"
	"av-trip/internal/registry/portcap"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// CreateReservationCommand represents the input for confirming a trip.
type CreateReservationCommand struct {
	Caller            string
	TripID            string
	Rider             string
	OriginPort        string
	DestinationPort   string
	VehicleID         string
	RiderCredential   string
	OriginCredential  string
	VehicleCredential string
}

// TripDTO represents the output data transfer object.
type TripDTO struct {
	ID              string `json:"id"`
	Rider           string `json:"rider"`
	OriginPort      string `json:"origin_port"`
	DestinationPort string `json:"destination_port"`
	VehicleID       string `json:"vehicle_id"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// CreateReservation validates across all three registries and, only after
// every read succeeds, mutates the fleet registry and persists the trip in
// CONFIRMED. A failure at any validation step leaves every registry
// untouched. A failure of the fleet assignment itself (the vehicle changed
// state between the availability read and the assignment write) surfaces
// as ErrVehicleUnavailable with no trip created, so no compensating action
// is needed.
func (o *Orchestrator) CreateReservation(ctx context.Context, cmd CreateReservationCommand) (*TripDTO, error) {
	if err := o.requireOperator(cmd.Caller); err != nil {
		return nil, err
	}

	// 1. Identifier validation, then duplicate-id rejection.
	if cmd.TripID == "" || cmd.Rider == "" || cmd.OriginPort == "" ||
		cmd.DestinationPort == "" || cmd.VehicleID == "" {
		return nil, fmt.Errorf("reservation identifiers must be non-empty: %w", faults.ErrInvalidArgument)
	}
	if existing, err := o.trips.FindByID(ctx, cmd.TripID); err == nil && existing != nil {
		return nil, fmt.Errorf("trip %q: %w", cmd.TripID, faults.ErrAlreadyExists)
	}

	// Credential gates. A false verdict short-circuits with no mutation.
	if !o.verifier.Verify(cmd.RiderCredential, eligibility.CredentialSchema, eligibility.CredentialSchemaVersion) {
		return nil, fmt.Errorf("rider credential rejected: %w", faults.ErrAccessDenied)
	}
	if !o.verifier.Verify(cmd.OriginCredential, portcap.CredentialSchema, portcap.CredentialSchemaVersion) {
		return nil, fmt.Errorf("origin port credential rejected: %w", faults.ErrAccessDenied)
	}
	if !o.verifier.Verify(cmd.VehicleCredential, fleet.CredentialSchema, fleet.CredentialSchemaVersion) {
		return nil, fmt.Errorf("vehicle credential rejected: %w", faults.ErrAccessDenied)
	}

	// 2. Rider must currently be permitted to travel.
	if !o.eligibility.IsEligible(cmd.Rider) {
		return nil, fmt.Errorf("rider %q: %w", cmd.Rider, faults.ErrRiderNotEligible)
	}

	// 3. Origin port must be able to receive the vehicle.
	if !o.ports.CheckLandingAvailability(cmd.OriginPort) {
		return nil, fmt.Errorf("port %q: %w", cmd.OriginPort, faults.ErrNoCapacity)
	}

	// 4. Vehicle must be parked and unassigned.
	if !o.fleet.IsAvailable(cmd.VehicleID) {
		return nil, fmt.Errorf("vehicle %q: %w", cmd.VehicleID, faults.ErrVehicleUnavailable)
	}

	// 5. First and only registry mutation. The vehicle may have changed
	// state since step 4's read; the registry re-checks under its own
	// lock and any rejection here means the vehicle is no longer usable.
	if err := o.fleet.AssignToTrip(o.principal, cmd.VehicleID, cmd.TripID); err != nil {
		o.logger.WithFields(logger.LogFields{
			"trip_id":    cmd.TripID,
			"vehicle_id": cmd.VehicleID,
		}).Error("assign_vehicle_failed", err)
		return nil, fmt.Errorf("vehicle %q: %w", cmd.VehicleID, faults.ErrVehicleUnavailable)
	}

	// 6. Persist the trip in CONFIRMED.
	trip, err := domain.NewTrip(cmd.TripID, cmd.Rider, cmd.OriginPort, cmd.DestinationPort, cmd.VehicleID)
	if err != nil {
		return nil, err
	}
	if err := o.trips.Save(ctx, trip); err != nil {
		// The vehicle assignment already committed; losing the trip
		// record here is the create-side inconsistency window. Surface
		// it distinctly so the caller can release the vehicle.
		o.logger.WithFields(logger.LogFields{
			"trip_id":    cmd.TripID,
			"vehicle_id": cmd.VehicleID,
		}).Error("save_trip_failed", err)
		return nil, &faults.PartialFailure{
			Op:            "create_reservation",
			CommittedStep: "fleet.assign_to_trip",
			FailedStep:    "trips.save",
			Cause:         err,
		}
	}

	o.emitTripChange(trip.ID(), domain.StatusRequested, domain.StatusConfirmed)
	o.logger.WithFields(logger.LogFields{
		"trip_id":    trip.ID(),
		"vehicle_id": trip.VehicleID(),
		"rider":      trip.Rider(),
	}).Info("reservation_created", "Trip confirmed and vehicle assigned")

	return toTripDTO(trip), nil
}
