package eligibility

import (
	"errors"
	"sync"
	"testing"
	"time"

	"av-trip/pkg/credential"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

const testIssuer = "issuer-1"

// captureSink records emitted change records.
type captureSink struct {
	mu      sync.Mutex
	records []events.ChangeRecord
}

func (s *captureSink) Emit(record events.ChangeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *captureSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestRegistry(sink events.Sink) *Registry {
	if sink == nil {
		sink = events.Discard{}
	}
	return NewRegistry(testIssuer, credential.AllowAll{Eligible: true}, credential.AllowAll{Eligible: true}, sink, logger.NewLogger("eligibility-test"))
}

func TestDefaultIneligible(t *testing.T) {
	r := newTestRegistry(nil)
	if r.IsEligible("nobody") {
		t.Error("unknown rider reported eligible")
	}
}

func TestSetEligibility(t *testing.T) {
	sink := &captureSink{}
	r := newTestRegistry(sink)

	if err := r.SetEligibility(testIssuer, "R1", true); err != nil {
		t.Fatalf("SetEligibility: %v", err)
	}
	if !r.IsEligible("R1") {
		t.Error("rider not eligible after set")
	}
	if sink.len() != 1 {
		t.Errorf("emitted %d records, want 1", sink.len())
	}

	// Last write wins.
	if err := r.SetEligibility(testIssuer, "R1", false); err != nil {
		t.Fatalf("SetEligibility(false): %v", err)
	}
	if r.IsEligible("R1") {
		t.Error("rider still eligible after revocation")
	}
}

func TestSetEligibilityUnauthorized(t *testing.T) {
	r := newTestRegistry(nil)

	if err := r.SetEligibility("impostor", "R1", true); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("SetEligibility by impostor = %v, want ErrAccessDenied", err)
	}
	if r.IsEligible("R1") {
		t.Error("unauthorized write took effect")
	}
}

func TestSetEligibilityEmptyRider(t *testing.T) {
	r := newTestRegistry(nil)

	if err := r.SetEligibility(testIssuer, "", true); !errors.Is(err, faults.ErrInvalidArgument) {
		t.Errorf("SetEligibility with empty rider = %v, want ErrInvalidArgument", err)
	}
}

func TestSetEligibilityFromCredential(t *testing.T) {
	verifier := credential.NewJWTVerifier("secret")
	r := NewRegistry(testIssuer, verifier, verifier, events.Discard{}, logger.NewLogger("eligibility-test"))

	eligible := true
	token, err := verifier.Issue(CredentialSchema, CredentialSchemaVersion, &eligible, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	verdict, err := r.SetEligibilityFromCredential(testIssuer, "R1", token)
	if err != nil {
		t.Fatalf("SetEligibilityFromCredential: %v", err)
	}
	if !verdict || !r.IsEligible("R1") {
		t.Error("credential verdict not stored")
	}

	// A tampered token must be rejected before any write.
	if _, err := r.SetEligibilityFromCredential(testIssuer, "R2", token+"x"); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("tampered credential = %v, want ErrAccessDenied", err)
	}
	if r.IsEligible("R2") {
		t.Error("rejected credential stored a verdict")
	}
}

func TestRotateIssuer(t *testing.T) {
	r := newTestRegistry(nil)

	if err := r.RotateIssuer("impostor", "issuer-2"); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("RotateIssuer by impostor = %v, want ErrAccessDenied", err)
	}

	if err := r.RotateIssuer(testIssuer, "issuer-2"); err != nil {
		t.Fatalf("RotateIssuer: %v", err)
	}

	// The old issuer is locked out, the new one works.
	if err := r.SetEligibility(testIssuer, "R1", true); !errors.Is(err, faults.ErrAccessDenied) {
		t.Errorf("old issuer write = %v, want ErrAccessDenied", err)
	}
	if err := r.SetEligibility("issuer-2", "R1", true); err != nil {
		t.Errorf("new issuer write: %v", err)
	}
}
