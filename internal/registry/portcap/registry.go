package portcap

import (
	"fmt"
	"sync"

	"av-trip/pkg/credential"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// Credential schema accepted on mutating calls.
const (
	CredentialSchema        = "port_credential"
	CredentialSchemaVersion = "1.0"
)

// PortState is the full capacity row for one port. Capacities are fixed at
// registration; only the free counts move.
type PortState struct {
	ID                string `json:"id"`
	TotalLandingSlots int    `json:"total_landing_slots"`
	TotalParkingSlots int    `json:"total_parking_slots"`
	FreeLandingSlots  int    `json:"free_landing_slots"`
	FreeParkingSlots  int    `json:"free_parking_slots"`
}

// Registry stores per-port landing and parking capacity. Every mutation
// preserves 0 <= free <= total for both slot kinds.
//
// Mutating calls check the caller against an authorized-principal
// allow-list; the registry is independently exposed, so the check cannot
// rely on the orchestrator being the only caller.
type Registry struct {
	mu         sync.Mutex
	ports      map[string]*PortState
	authorized map[string]bool
	verifier   credential.Verifier
	sink       events.Sink
	logger     logger.Logger
}

func NewRegistry(verifier credential.Verifier, sink events.Sink, log logger.Logger, authorizedPrincipals ...string) *Registry {
	authorized := make(map[string]bool, len(authorizedPrincipals))
	for _, p := range authorizedPrincipals {
		authorized[p] = true
	}
	return &Registry{
		ports:      make(map[string]*PortState),
		authorized: authorized,
		verifier:   verifier,
		sink:       sink,
		logger:     log,
	}
}

// RegisterPort creates a capacity row with free counts equal to totals.
// A port with zero capacity of both kinds cannot be registered.
func (r *Registry) RegisterPort(caller, id string, totalLanding, totalParking int, credentialToken string) error {
	if id == "" {
		return fmt.Errorf("port id is empty: %w", faults.ErrInvalidArgument)
	}
	if totalLanding < 0 || totalParking < 0 {
		return fmt.Errorf("negative capacity: %w", faults.ErrInvalidArgument)
	}
	if totalLanding == 0 && totalParking == 0 {
		return fmt.Errorf("port %q has zero capacity of both kinds: %w", id, faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.authorized[caller] {
		return fmt.Errorf("caller %q is not authorized: %w", caller, faults.ErrAccessDenied)
	}
	if !r.verifier.Verify(credentialToken, CredentialSchema, CredentialSchemaVersion) {
		return fmt.Errorf("port credential rejected by verifier: %w", faults.ErrAccessDenied)
	}
	if _, ok := r.ports[id]; ok {
		return fmt.Errorf("port %q: %w", id, faults.ErrAlreadyExists)
	}

	r.ports[id] = &PortState{
		ID:                id,
		TotalLandingSlots: totalLanding,
		TotalParkingSlots: totalParking,
		FreeLandingSlots:  totalLanding,
		FreeParkingSlots:  totalParking,
	}

	r.sink.Emit(events.Record("port", id, "", "REGISTERED"))
	r.logger.WithFields(logger.LogFields{
		"port_id":       id,
		"total_landing": totalLanding,
		"total_parking": totalParking,
	}).Info("port_registered", "Port capacity row created")

	return nil
}

// ApplyDelta applies signed deltas to both free counts. Both deltas are
// validated against the invariant bounds before either is applied; a delta
// that would push a free count below zero or above its total fails the
// whole call and mutates nothing.
func (r *Registry) ApplyDelta(caller, id, credentialToken string, landingDelta, parkingDelta int) error {
	if id == "" {
		return fmt.Errorf("port id is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.authorized[caller] {
		return fmt.Errorf("caller %q is not authorized: %w", caller, faults.ErrAccessDenied)
	}
	if !r.verifier.Verify(credentialToken, CredentialSchema, CredentialSchemaVersion) {
		return fmt.Errorf("port credential rejected by verifier: %w", faults.ErrAccessDenied)
	}

	port, ok := r.ports[id]
	if !ok {
		return fmt.Errorf("port %q: %w", id, faults.ErrNotFound)
	}

	newLanding := port.FreeLandingSlots + landingDelta
	newParking := port.FreeParkingSlots + parkingDelta
	if newLanding < 0 || newLanding > port.TotalLandingSlots {
		return fmt.Errorf("landing delta %d would leave %d of %d free: %w",
			landingDelta, newLanding, port.TotalLandingSlots, faults.ErrCapacityViolation)
	}
	if newParking < 0 || newParking > port.TotalParkingSlots {
		return fmt.Errorf("parking delta %d would leave %d of %d free: %w",
			parkingDelta, newParking, port.TotalParkingSlots, faults.ErrCapacityViolation)
	}

	previous := fmt.Sprintf("landing=%d,parking=%d", port.FreeLandingSlots, port.FreeParkingSlots)
	port.FreeLandingSlots = newLanding
	port.FreeParkingSlots = newParking
	next := fmt.Sprintf("landing=%d,parking=%d", port.FreeLandingSlots, port.FreeParkingSlots)

	r.sink.Emit(events.Record("port", id, previous, next))
	r.logger.WithFields(logger.LogFields{
		"port_id":       id,
		"landing_delta": landingDelta,
		"parking_delta": parkingDelta,
		"free_landing":  port.FreeLandingSlots,
		"free_parking":  port.FreeParkingSlots,
	}).Info("port_delta_applied", "Port free counts updated")

	return nil
}

// CheckLandingAvailability reports whether a registered port can currently
// receive a vehicle: a landing needs both a free landing slot and a free
// parking slot to put the vehicle in afterwards.
func (r *Registry) CheckLandingAvailability(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	port, ok := r.ports[id]
	if !ok {
		return false
	}
	return port.FreeLandingSlots > 0 && port.FreeParkingSlots > 0
}

// GetState returns a copy of the full capacity row.
func (r *Registry) GetState(id string) (PortState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	port, ok := r.ports[id]
	if !ok {
		return PortState{}, fmt.Errorf("port %q: %w", id, faults.ErrNotFound)
	}
	return *port, nil
}
