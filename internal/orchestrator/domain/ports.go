package domain

import (
	"context"

	"av-trip/internal/registry/fleet"
	"av-trip/internal/registry/portcap"
)

// TripRepository is the interface (port) for trip persistence.
// This belongs in domain layer - implementations are in infrastructure.
type TripRepository interface {
	// Save persists a new trip. Fails if the trip id is already known.
	Save(ctx context.Context, trip *Trip) error

	// Update persists a status change for an existing trip.
	Update(ctx context.Context, trip *Trip) error

	// FindByID retrieves a trip by its ID.
	FindByID(ctx context.Context, tripID string) (*Trip, error)

	// FindByStatus retrieves trips by status.
	FindByStatus(ctx context.Context, status TripStatus) ([]*Trip, error)

	// CountTrips returns the total number of stored trips.
	CountTrips(ctx context.Context) (int, error)
}

// EligibilityChecker is the orchestrator's read view of the rider
// eligibility registry.
type EligibilityChecker interface {
	IsEligible(rider string) bool
}

// PortRegistry is the orchestrator's view of the port capacity registry.
// Every mutating call carries the orchestrator's own principal; the
// registry enforces its allow-list independently.
type PortRegistry interface {
	CheckLandingAvailability(id string) bool
	ApplyDelta(caller, id, credentialToken string, landingDelta, parkingDelta int) error
	GetState(id string) (portcap.PortState, error)
}

// FleetRegistry is the orchestrator's view of the fleet state registry.
type FleetRegistry interface {
	IsAvailable(id string) bool
	AssignToTrip(caller, id, tripRef string) error
	StartTrip(caller, id string) error
	CompleteTrip(caller, id, destinationPort string) error
	Release(caller, id string) error
	GetState(id string) (fleet.VehicleState, error)
}

// CredentialVerifier gates lifecycle operations on caller-supplied
// credentials before any registry is touched.
type CredentialVerifier interface {
	Verify(token, schemaName, schemaVersion string) bool
}
