package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"
)

// tripRow is the stored form of a trip; the repository never hands out its
// internal rows, only reconstructed entities.
type tripRow struct {
	id              string
	rider           string
	originPort      string
	destinationPort string
	vehicleID       string
	status          domain.TripStatus
	createdAt       time.Time
}

// MemoryTripRepository implements domain.TripRepository on a mutex-guarded
// map. The mutex is the per-call serialization boundary: every Save or
// Update commits fully before the next call observes the table. Trips are
// never deleted.
type MemoryTripRepository struct {
	mu    sync.Mutex
	trips map[string]tripRow
}

func NewMemoryTripRepository() *MemoryTripRepository {
	return &MemoryTripRepository{
		trips: make(map[string]tripRow),
	}
}

// Save persists a new trip. Duplicate ids are rejected here as well as in
// the orchestrator's pre-check, so the uniqueness invariant holds even
// under concurrent creates.
func (r *MemoryTripRepository) Save(_ context.Context, trip *domain.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.trips[trip.ID()]; ok {
		return fmt.Errorf("trip %q: %w", trip.ID(), faults.ErrAlreadyExists)
	}
	r.trips[trip.ID()] = toRow(trip)
	return nil
}

// Update persists a status change for an existing trip.
func (r *MemoryTripRepository) Update(_ context.Context, trip *domain.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.trips[trip.ID()]; !ok {
		return fmt.Errorf("trip %q: %w", trip.ID(), faults.ErrNotFound)
	}
	r.trips[trip.ID()] = toRow(trip)
	return nil
}

// FindByID retrieves a trip by its ID.
func (r *MemoryTripRepository) FindByID(_ context.Context, tripID string) (*domain.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.trips[tripID]
	if !ok {
		return nil, fmt.Errorf("trip %q: %w", tripID, faults.ErrNotFound)
	}
	return fromRow(row), nil
}

// FindByStatus retrieves trips by status.
func (r *MemoryTripRepository) FindByStatus(_ context.Context, status domain.TripStatus) ([]*domain.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var trips []*domain.Trip
	for _, row := range r.trips {
		if row.status == status {
			trips = append(trips, fromRow(row))
		}
	}
	return trips, nil
}

// CountTrips returns the total number of stored trips.
func (r *MemoryTripRepository) CountTrips(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trips), nil
}

func toRow(trip *domain.Trip) tripRow {
	return tripRow{
		id:              trip.ID(),
		rider:           trip.Rider(),
		originPort:      trip.OriginPort(),
		destinationPort: trip.DestinationPort(),
		vehicleID:       trip.VehicleID(),
		status:          trip.Status(),
		createdAt:       trip.CreatedAt(),
	}
}

func fromRow(row tripRow) *domain.Trip {
	return domain.ReconstructTrip(
		row.id, row.rider, row.originPort, row.destinationPort,
		row.vehicleID, row.status, row.createdAt,
	)
}
