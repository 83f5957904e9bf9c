package portcap

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"av-trip/pkg/credential"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

const testCaller = "orchestrator"

func newTestRegistry() *Registry {
	return NewRegistry(credential.AllowAll{}, events.Discard{}, logger.NewLogger("portcap-test"), testCaller)
}

func TestRegisterPort(t *testing.T) {
	r := newTestRegistry()

	if err := r.RegisterPort(testCaller, "P1", 3, 3, "cred"); err != nil {
		t.Fatalf("RegisterPort: %v", err)
	}

	state, err := r.GetState("P1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.FreeLandingSlots != 3 || state.FreeParkingSlots != 3 {
		t.Errorf("free counts = (%d,%d), want (3,3)", state.FreeLandingSlots, state.FreeParkingSlots)
	}

	if err := r.RegisterPort(testCaller, "P1", 2, 2, "cred"); !errors.Is(err, faults.ErrAlreadyExists) {
		t.Errorf("duplicate register = %v, want ErrAlreadyExists", err)
	}
}

func TestRegisterPortZeroCapacity(t *testing.T) {
	r := newTestRegistry()

	if err := r.RegisterPort(testCaller, "P0", 0, 0, "cred"); !errors.Is(err, faults.ErrInvalidArgument) {
		t.Errorf("zero-capacity register = %v, want ErrInvalidArgument", err)
	}
	if _, err := r.GetState("P0"); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("GetState after rejected register = %v, want ErrNotFound", err)
	}
}

func TestRegisterPortUnauthorized(t *testing.T) {
	r := newTestRegistry()

	if err := r.RegisterPort("stranger", "P1", 3, 3, "cred"); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("unauthorized register = %v, want ErrAccessDenied", err)
	}
}

func TestApplyDeltaRoundTrip(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterPort(testCaller, "P1", 3, 3, "cred"); err != nil {
		t.Fatalf("RegisterPort: %v", err)
	}

	if err := r.ApplyDelta(testCaller, "P1", "cred", 0, -3); err != nil {
		t.Fatalf("ApplyDelta(-3): %v", err)
	}
	if err := r.ApplyDelta(testCaller, "P1", "cred", 0, +3); err != nil {
		t.Fatalf("ApplyDelta(+3): %v", err)
	}

	state, _ := r.GetState("P1")
	if state.FreeLandingSlots != 3 || state.FreeParkingSlots != 3 {
		t.Errorf("free counts after round trip = (%d,%d), want (3,3)", state.FreeLandingSlots, state.FreeParkingSlots)
	}
}

func TestApplyDeltaAtomicity(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterPort(testCaller, "P1", 3, 3, "cred"); err != nil {
		t.Fatalf("RegisterPort: %v", err)
	}

	// Landing delta is valid, parking delta would overflow: neither may apply.
	err := r.ApplyDelta(testCaller, "P1", "cred", -1, +1)
	if !errors.Is(err, faults.ErrCapacityViolation) {
		t.Fatalf("ApplyDelta = %v, want ErrCapacityViolation", err)
	}

	state, _ := r.GetState("P1")
	if state.FreeLandingSlots != 3 || state.FreeParkingSlots != 3 {
		t.Errorf("free counts mutated on failed call: (%d,%d)", state.FreeLandingSlots, state.FreeParkingSlots)
	}
}

func TestApplyDeltaUnregistered(t *testing.T) {
	r := newTestRegistry()

	if err := r.ApplyDelta(testCaller, "nope", "cred", 0, 1); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("ApplyDelta on unregistered port = %v, want ErrNotFound", err)
	}
}

// TestApplyDeltaInvariant drives a port through random delta sequences and
// checks 0 <= free <= total after every accepted call.
func TestApplyDeltaInvariant(t *testing.T) {
	r := newTestRegistry()
	const totalLanding, totalParking = 5, 7
	if err := r.RegisterPort(testCaller, "P1", totalLanding, totalParking, "cred"); err != nil {
		t.Fatalf("RegisterPort: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		landingDelta := rng.Intn(7) - 3
		parkingDelta := rng.Intn(9) - 4

		err := r.ApplyDelta(testCaller, "P1", "cred", landingDelta, parkingDelta)
		if err != nil && !errors.Is(err, faults.ErrCapacityViolation) {
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}

		state, gerr := r.GetState("P1")
		if gerr != nil {
			t.Fatalf("GetState: %v", gerr)
		}
		if state.FreeLandingSlots < 0 || state.FreeLandingSlots > totalLanding {
			t.Fatalf("iteration %d: free landing %d out of [0,%d]", i, state.FreeLandingSlots, totalLanding)
		}
		if state.FreeParkingSlots < 0 || state.FreeParkingSlots > totalParking {
			t.Fatalf("iteration %d: free parking %d out of [0,%d]", i, state.FreeParkingSlots, totalParking)
		}
	}
}

func TestCheckLandingAvailability(t *testing.T) {
	r := newTestRegistry()

	if r.CheckLandingAvailability("unknown") {
		t.Error("availability true for unregistered port")
	}

	if err := r.RegisterPort(testCaller, "P1", 1, 1, "cred"); err != nil {
		t.Fatalf("RegisterPort: %v", err)
	}
	if !r.CheckLandingAvailability("P1") {
		t.Error("availability false with free slots of both kinds")
	}

	// Landing still requires a free parking slot for the arriving vehicle.
	if err := r.ApplyDelta(testCaller, "P1", "cred", 0, -1); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if r.CheckLandingAvailability("P1") {
		t.Error("availability true with zero free parking")
	}
}

func TestApplyDeltaRejectedCredential(t *testing.T) {
	verifier := credential.NewJWTVerifier("secret")
	r := NewRegistry(verifier, events.Discard{}, logger.NewLogger("portcap-test"), testCaller)

	good, err := verifier.Issue(CredentialSchema, CredentialSchemaVersion, nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := r.RegisterPort(testCaller, "P1", 2, 2, good); err != nil {
		t.Fatalf("RegisterPort: %v", err)
	}

	if err := r.ApplyDelta(testCaller, "P1", "garbage", 0, -1); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("ApplyDelta with bad credential = %v, want ErrAccessDenied", err)
	}
	state, _ := r.GetState("P1")
	if state.FreeParkingSlots != 2 {
		t.Errorf("free parking mutated by rejected call: %d", state.FreeParkingSlots)
	}
}
