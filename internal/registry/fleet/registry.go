package fleet

import (
	"fmt"
	"sync"

	"av-trip/pkg/credential"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// Credential schema accepted on vehicle registration.
const (
	CredentialSchema        = "vehicle_credential"
	CredentialSchemaVersion = "1.0"
)

// OperatingState is a vehicle's position in its state machine.
type OperatingState string

const (
	StateParked      OperatingState = "PARKED"
	StateExpecting   OperatingState = "EXPECTING"
	StateInUse       OperatingState = "IN_USE"
	StateMaintenance OperatingState = "MAINTENANCE"
)

func (s OperatingState) String() string {
	return string(s)
}

// VehicleState is the full fleet row for one vehicle.
//
// Invariant: AssignedTrip is non-empty iff OperatingState is EXPECTING or
// IN_USE.
type VehicleState struct {
	ID             string         `json:"id"`
	OperatingState OperatingState `json:"operating_state"`
	CurrentPort    string         `json:"current_port"`
	AssignedTrip   string         `json:"assigned_trip,omitempty"`
}

// Registry drives the per-vehicle operating state machine:
//
//	PARKED --AssignToTrip--> EXPECTING --StartTrip--> IN_USE --CompleteTrip--> PARKED
//	PARKED --SetMaintenance--> MAINTENANCE --FinishMaintenance--> PARKED
//
// Mutating calls check the caller against an authorized-principal
// allow-list, same scheme as the port registry.
type Registry struct {
	mu         sync.Mutex
	vehicles   map[string]*VehicleState
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
		vehicles:   make(map[string]*VehicleState),
		authorized: authorized,
		verifier:   verifier,
		sink:       sink,
		logger:     log,
	}
}

// RegisterVehicle creates a vehicle in PARKED with no assigned trip.
func (r *Registry) RegisterVehicle(caller, id, initialPort, credentialToken string) error {
	if id == "" || initialPort == "" {
		return fmt.Errorf("vehicle id or initial port is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.authorized[caller] {
		return fmt.Errorf("caller %q is not authorized: %w", caller, faults.ErrAccessDenied)
	}
	if !r.verifier.Verify(credentialToken, CredentialSchema, CredentialSchemaVersion) {
		return fmt.Errorf("vehicle credential rejected by verifier: %w", faults.ErrAccessDenied)
	}
	if _, ok := r.vehicles[id]; ok {
		return fmt.Errorf("vehicle %q: %w", id, faults.ErrAlreadyExists)
	}

	r.vehicles[id] = &VehicleState{
		ID:             id,
		OperatingState: StateParked,
		CurrentPort:    initialPort,
	}

	r.sink.Emit(events.Record("vehicle", id, "", string(StateParked)))
	r.logger.WithFields(logger.LogFields{
		"vehicle_id":   id,
		"initial_port": initialPort,
	}).Info("vehicle_registered", "Vehicle created in PARKED state")

	return nil
}

// IsAvailable reports whether the vehicle can take a new assignment:
// registered, PARKED, and carrying no assigned trip.
func (r *Registry) IsAvailable(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return false
	}
	return v.OperatingState == StateParked && v.AssignedTrip == ""
}

// AssignToTrip moves a PARKED vehicle to EXPECTING and stores the trip
// reference.
func (r *Registry) AssignToTrip(caller, id, tripRef string) error {
	if tripRef == "" {
		return fmt.Errorf("trip reference is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.authorizedVehicle(caller, id)
	if err != nil {
		return err
	}
	if v.AssignedTrip != "" {
		return fmt.Errorf("vehicle %q already assigned to trip %q: %w", id, v.AssignedTrip, faults.ErrInvalidState)
	}
	if v.OperatingState != StateParked {
		return fmt.Errorf("vehicle %q is %s, not PARKED: %w", id, v.OperatingState, faults.ErrInvalidState)
	}

	r.transition(v, StateExpecting)
	v.AssignedTrip = tripRef
	return nil
}

// StartTrip moves an EXPECTING vehicle to IN_USE.
func (r *Registry) StartTrip(caller, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.authorizedVehicle(caller, id)
	if err != nil {
		return err
	}
	if v.OperatingState != StateExpecting || v.AssignedTrip == "" {
		return fmt.Errorf("vehicle %q is %s, not EXPECTING with an assignment: %w", id, v.OperatingState, faults.ErrInvalidState)
	}

	r.transition(v, StateInUse)
	return nil
}

// CompleteTrip parks an IN_USE vehicle at the destination port and clears
// its assignment.
func (r *Registry) CompleteTrip(caller, id, destinationPort string) error {
	if destinationPort == "" {
		return fmt.Errorf("destination port is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.authorizedVehicle(caller, id)
	if err != nil {
		return err
	}
	if v.OperatingState != StateInUse || v.AssignedTrip == "" {
		return fmt.Errorf("vehicle %q is %s, not IN_USE with an assignment: %w", id, v.OperatingState, faults.ErrInvalidState)
	}

	r.transition(v, StateParked)
	v.AssignedTrip = ""
	v.CurrentPort = destinationPort
	return nil
}

// Release returns an EXPECTING vehicle to PARKED and clears its
// assignment. Reconciliation path for trips cancelled after confirmation;
// the orchestrator checks the trip really is cancelled before calling.
func (r *Registry) Release(caller, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.authorizedVehicle(caller, id)
	if err != nil {
		return err
	}
	if v.OperatingState != StateExpecting {
		return fmt.Errorf("vehicle %q is %s, not EXPECTING: %w", id, v.OperatingState, faults.ErrInvalidState)
	}

	r.transition(v, StateParked)
	v.AssignedTrip = ""
	return nil
}

// SetMaintenance takes a PARKED, unassigned vehicle out of service.
func (r *Registry) SetMaintenance(caller, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.authorizedVehicle(caller, id)
	if err != nil {
		return err
	}
	if v.OperatingState != StateParked || v.AssignedTrip != "" {
		return fmt.Errorf("vehicle %q is %s, not PARKED without assignment: %w", id, v.OperatingState, faults.ErrInvalidState)
	}

	r.transition(v, StateMaintenance)
	return nil
}

// FinishMaintenance returns a MAINTENANCE vehicle to PARKED.
func (r *Registry) FinishMaintenance(caller, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.authorizedVehicle(caller, id)
	if err != nil {
		return err
	}
	if v.OperatingState != StateMaintenance {
		return fmt.Errorf("vehicle %q is %s, not MAINTENANCE: %w", id, v.OperatingState, faults.ErrInvalidState)
	}

	r.transition(v, StateParked)
	return nil
}

// GetState returns a copy of the full fleet row.
func (r *Registry) GetState(id string) (VehicleState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return VehicleState{}, fmt.Errorf("vehicle %q: %w", id, faults.ErrNotFound)
	}
	return *v, nil
}

// authorizedVehicle resolves caller and vehicle for a mutating call.
// Callers must hold r.mu.
func (r *Registry) authorizedVehicle(caller, id string) (*VehicleState, error) {
	if id == "" {
		return nil, fmt.Errorf("vehicle id is empty: %w", faults.ErrInvalidArgument)
	}
	if !r.authorized[caller] {
		return nil, fmt.Errorf("caller %q is not authorized: %w", caller, faults.ErrAccessDenied)
	}
	v, ok := r.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %q: %w", id, faults.ErrNotFound)
	}
	return v, nil
}

// transition records and emits a state change. Callers must hold r.mu.
func (r *Registry) transition(v *VehicleState, next OperatingState) {
	previous := v.OperatingState
	v.OperatingState = next

	r.sink.Emit(events.Record("vehicle", v.ID, string(previous), string(next)))
	r.logger.WithFields(logger.LogFields{
		"vehicle_id": v.ID,
		"from":       string(previous),
		"to":         string(next),
	}).Info("vehicle_transition", "Vehicle operating state changed")
}
