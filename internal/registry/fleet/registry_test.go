package fleet

import (
	"errors"
	"testing"

	"av-trip/pkg/credential"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

const testCaller = "orchestrator"

func newTestRegistry() *Registry {
	return NewRegistry(credential.AllowAll{}, events.Discard{}, logger.NewLogger("fleet-test"), testCaller)
}

// checkInvariant asserts AssignedTrip is non-empty iff the state is
// EXPECTING or IN_USE.
func checkInvariant(t *testing.T, r *Registry, id string) {
	t.Helper()
	v, err := r.GetState(id)
	if err != nil {
		t.Fatalf("GetState(%s): %v", id, err)
	}
	assigned := v.AssignedTrip != ""
	active := v.OperatingState == StateExpecting || v.OperatingState == StateInUse
	if assigned != active {
		t.Fatalf("invariant broken: state=%s assignedTrip=%q", v.OperatingState, v.AssignedTrip)
	}
}

func TestRegisterVehicle(t *testing.T) {
	r := newTestRegistry()

	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}

	v, err := r.GetState("V1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if v.OperatingState != StateParked || v.AssignedTrip != "" || v.CurrentPort != "P1" {
		t.Errorf("fresh vehicle = %+v", v)
	}

	if err := r.RegisterVehicle(testCaller, "V1", "P2", "cred"); !errors.Is(err, faults.ErrAlreadyExists) {
		t.Errorf("duplicate register = %v, want ErrAlreadyExists", err)
	}
}

func TestTripCycle(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}
	checkInvariant(t, r, "V1")

	if !r.IsAvailable("V1") {
		t.Fatal("fresh vehicle not available")
	}

	if err := r.AssignToTrip(testCaller, "V1", "T1"); err != nil {
		t.Fatalf("AssignToTrip: %v", err)
	}
	checkInvariant(t, r, "V1")
	if r.IsAvailable("V1") {
		t.Error("assigned vehicle still available")
	}

	if err := r.StartTrip(testCaller, "V1"); err != nil {
		t.Fatalf("StartTrip: %v", err)
	}
	checkInvariant(t, r, "V1")

	if err := r.CompleteTrip(testCaller, "V1", "P2"); err != nil {
		t.Fatalf("CompleteTrip: %v", err)
	}
	checkInvariant(t, r, "V1")

	v, _ := r.GetState("V1")
	if v.OperatingState != StateParked || v.CurrentPort != "P2" || v.AssignedTrip != "" {
		t.Errorf("after completion: %+v", v)
	}
	if !r.IsAvailable("V1") {
		t.Error("completed vehicle not available again")
	}
}

func TestInvalidTransitions(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}

	// No assignment yet: start and complete are both out of order.
	if err := r.StartTrip(testCaller, "V1"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("StartTrip from PARKED = %v, want ErrInvalidState", err)
	}
	if err := r.CompleteTrip(testCaller, "V1", "P2"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("CompleteTrip from PARKED = %v, want ErrInvalidState", err)
	}

	if err := r.AssignToTrip(testCaller, "V1", "T1"); err != nil {
		t.Fatalf("AssignToTrip: %v", err)
	}
	// Double assignment is rejected.
	if err := r.AssignToTrip(testCaller, "V1", "T2"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("second AssignToTrip = %v, want ErrInvalidState", err)
	}
	// EXPECTING vehicle cannot complete or enter maintenance.
	if err := r.CompleteTrip(testCaller, "V1", "P2"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("CompleteTrip from EXPECTING = %v, want ErrInvalidState", err)
	}
	if err := r.SetMaintenance(testCaller, "V1"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("SetMaintenance with assignment = %v, want ErrInvalidState", err)
	}
	checkInvariant(t, r, "V1")
}

func TestAssignEmptyTripRef(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}
	if err := r.AssignToTrip(testCaller, "V1", ""); !errors.Is(err, faults.ErrInvalidArgument) {
		t.Errorf("AssignToTrip with empty ref = %v, want ErrInvalidArgument", err)
	}
}

func TestMaintenanceCycle(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}

	if err := r.SetMaintenance(testCaller, "V1"); err != nil {
		t.Fatalf("SetMaintenance: %v", err)
	}
	checkInvariant(t, r, "V1")
	if r.IsAvailable("V1") {
		t.Error("vehicle in maintenance reported available")
	}
	if err := r.AssignToTrip(testCaller, "V1", "T1"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("AssignToTrip in MAINTENANCE = %v, want ErrInvalidState", err)
	}

	if err := r.FinishMaintenance(testCaller, "V1"); err != nil {
		t.Fatalf("FinishMaintenance: %v", err)
	}
	checkInvariant(t, r, "V1")
	if !r.IsAvailable("V1") {
		t.Error("vehicle not available after maintenance")
	}
	if err := r.FinishMaintenance(testCaller, "V1"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("second FinishMaintenance = %v, want ErrInvalidState", err)
	}
}

func TestRelease(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}
	if err := r.AssignToTrip(testCaller, "V1", "T1"); err != nil {
		t.Fatalf("AssignToTrip: %v", err)
	}

	if err := r.Release(testCaller, "V1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	checkInvariant(t, r, "V1")
	if !r.IsAvailable("V1") {
		t.Error("released vehicle not available")
	}

	// Only EXPECTING vehicles can be released.
	if err := r.Release(testCaller, "V1"); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("Release from PARKED = %v, want ErrInvalidState", err)
	}
}

func TestUnknownVehicle(t *testing.T) {
	r := newTestRegistry()

	if r.IsAvailable("ghost") {
		t.Error("unknown vehicle reported available")
	}
	if err := r.StartTrip(testCaller, "ghost"); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("StartTrip unknown vehicle = %v, want ErrNotFound", err)
	}
}

func TestUnauthorizedCaller(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterVehicle(testCaller, "V1", "P1", "cred"); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}

	if err := r.AssignToTrip("stranger", "V1", "T1"); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("AssignToTrip by stranger = %v, want ErrAccessDenied", err)
	}
	v, _ := r.GetState("V1")
	if v.OperatingState != StateParked {
		t.Errorf("state mutated by unauthorized call: %s", v.OperatingState)
	}
}
