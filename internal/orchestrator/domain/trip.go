package domain

import (
	"fmt"
	"time"

	"av-trip/pkg/faults"
)

// TripStatus represents the lifecycle state of a trip.
type TripStatus string

const (
	// StatusRequested is a nominal prior state: it appears in the
	// enumeration and in the cancellable set, but no code path ever
	// stores a trip in it. Trips are created directly in CONFIRMED.
	StatusRequested  TripStatus = "REQUESTED"
	StatusConfirmed  TripStatus = "CONFIRMED"
	StatusInProgress TripStatus = "IN_PROGRESS"
	StatusCompleted  TripStatus = "COMPLETED"
	StatusCancelled  TripStatus = "CANCELLED"
)

func (s TripStatus) String() string {
	return string(s)
}

// IsValid checks if status is valid
func (s TripStatus) IsValid() bool {
	switch s {
	case StatusRequested, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Trip is the reservation record binding a rider, origin/destination ports
// and a vehicle. Identity fields are immutable once set; only status moves.
// Trips are never deleted.
type Trip struct {
	id              string
	rider           string
	originPort      string
	destinationPort string
	vehicleID       string
	status          TripStatus
	createdAt       time.Time
}

// NewTrip creates a trip directly in CONFIRMED, stamped with the current
// time. Identifier validation happens here so no caller can build a trip
// with empty identity fields.
func NewTrip(id, rider, originPort, destinationPort, vehicleID string) (*Trip, error) {
	if id == "" || rider == "" || originPort == "" || destinationPort == "" || vehicleID == "" {
		return nil, fmt.Errorf("trip identifiers must be non-empty: %w", faults.ErrInvalidArgument)
	}
	return &Trip{
		id:              id,
		rider:           rider,
		originPort:      originPort,
		destinationPort: destinationPort,
		vehicleID:       vehicleID,
		status:          StatusConfirmed,
		createdAt:       time.Now(),
	}, nil
}

// ReconstructTrip rebuilds a trip from persistence (used by repositories).
func ReconstructTrip(id, rider, originPort, destinationPort, vehicleID string, status TripStatus, createdAt time.Time) *Trip {
	return &Trip{
		id:              id,
		rider:           rider,
		originPort:      originPort,
		destinationPort: destinationPort,
		vehicleID:       vehicleID,
		status:          status,
		createdAt:       createdAt,
	}
}

// Business methods

// Start advances a CONFIRMED trip to IN_PROGRESS.
func (t *Trip) Start() error {
	if t.status != StatusConfirmed {
		return fmt.Errorf("trip %q is %s, not CONFIRMED: %w", t.id, t.status, faults.ErrInvalidState)
	}
	t.status = StatusInProgress
	return nil
}

// Complete advances an IN_PROGRESS trip to COMPLETED.
func (t *Trip) Complete() error {
	if t.status != StatusInProgress {
		return fmt.Errorf("trip %q is %s, not IN_PROGRESS: %w", t.id, t.status, faults.ErrInvalidState)
	}
	t.status = StatusCompleted
	return nil
}

// Cancel terminates a trip that has not started. The assigned vehicle is
// deliberately not released here; release is an operator reconciliation
// action (see ReleaseVehicle on the orchestrator).
func (t *Trip) Cancel() error {
	if !t.CanBeCancelled() {
		return fmt.Errorf("trip %q is %s: %w", t.id, t.status, faults.ErrInvalidState)
	}
	t.status = StatusCancelled
	return nil
}

// Query methods

// CanBeCancelled reports whether the trip is still in a cancellable state.
func (t *Trip) CanBeCancelled() bool {
	return t.status == StatusRequested || t.status == StatusConfirmed
}

// IsTerminal reports whether no further transition is possible.
func (t *Trip) IsTerminal() bool {
	return t.status == StatusCompleted || t.status == StatusCancelled
}

// Getters (encapsulation)

func (t *Trip) ID() string              { return t.id }
func (t *Trip) Rider() string           { return t.rider }
func (t *Trip) OriginPort() string      { return t.originPort }
func (t *Trip) DestinationPort() string { return t.destinationPort }
func (t *Trip) VehicleID() string       { return t.vehicleID }
func (t *Trip) Status() TripStatus      { return t.status }
func (t *Trip) CreatedAt() time.Time    { return t.createdAt }
