package service

import (
	"context"
	"fmt"
	"time"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"
)

// GetTrip is a read-only lookup.
func (o *Orchestrator) GetTrip(ctx context.Context, tripID string) (*TripDTO, error) {
	trip, err := o.trips.FindByID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("trip %q: %w", tripID, faults.ErrNotFound)
	}
	return toTripDTO(trip), nil
}

// ListTripsByStatus returns all trips currently in the given status.
func (o *Orchestrator) ListTripsByStatus(ctx context.Context, status domain.TripStatus) ([]*TripDTO, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("status %q: %w", status, faults.ErrInvalidArgument)
	}
	trips, err := o.trips.FindByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	dtos := make([]*TripDTO, 0, len(trips))
	for _, t := range trips {
		dtos = append(dtos, toTripDTO(t))
	}
	return dtos, nil
}

// Stats reports aggregate counters for the service surface.
type Stats struct {
	TotalTrips int `json:"total_trips"`
}

func (o *Orchestrator) Stats(ctx context.Context) (*Stats, error) {
	total, err := o.trips.CountTrips(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{TotalTrips: total}, nil
}

// toTripDTO converts domain entity to DTO
func toTripDTO(trip *domain.Trip) *TripDTO {
	return &TripDTO{
		ID:              trip.ID(),
		Rider:           trip.Rider(),
		OriginPort:      trip.OriginPort(),
		DestinationPort: trip.DestinationPort(),
		VehicleID:       trip.VehicleID(),
		Status:          trip.Status().String(),
		CreatedAt:       trip.CreatedAt().Format(time.RFC3339),
	}
}
