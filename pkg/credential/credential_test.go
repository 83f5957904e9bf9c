package credential

import (
	"testing"
	"time"
)

func TestVerify(t *testing.T) {
	v := NewJWTVerifier("secret")

	token, err := v.Issue("rider_credential", "1.0", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if !v.Verify(token, "rider_credential", "1.0") {
		t.Error("valid credential rejected")
	}
	if v.Verify(token, "port_credential", "1.0") {
		t.Error("credential accepted for wrong schema")
	}
	if v.Verify(token, "rider_credential", "2.0") {
		t.Error("credential accepted for wrong schema version")
	}
	if v.Verify(token+"x", "rider_credential", "1.0") {
		t.Error("tampered credential accepted")
	}
	if v.Verify("", "rider_credential", "1.0") {
		t.Error("empty credential accepted")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewJWTVerifier("secret-a")
	verifier := NewJWTVerifier("secret-b")

	token, err := issuer.Issue("rider_credential", "1.0", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if verifier.Verify(token, "rider_credential", "1.0") {
		t.Error("credential from foreign issuer accepted")
	}
}

func TestVerifyExpired(t *testing.T) {
	v := NewJWTVerifier("secret")

	token, err := v.Issue("rider_credential", "1.0", nil, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if v.Verify(token, "rider_credential", "1.0") {
		t.Error("expired credential accepted")
	}
}

func TestExtractEligibility(t *testing.T) {
	v := NewJWTVerifier("secret")

	eligible := true
	token, err := v.Issue("rider_credential", "1.0", &eligible, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	verdict, err := v.ExtractEligibility(token)
	if err != nil {
		t.Fatalf("ExtractEligibility: %v", err)
	}
	if !verdict {
		t.Error("eligibility verdict lost")
	}

	ineligible := false
	token, err = v.Issue("rider_credential", "1.0", &ineligible, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	verdict, err = v.ExtractEligibility(token)
	if err != nil {
		t.Fatalf("ExtractEligibility: %v", err)
	}
	if verdict {
		t.Error("negative verdict reported eligible")
	}
}

func TestExtractEligibilityMissingClaim(t *testing.T) {
	v := NewJWTVerifier("secret")

	token, err := v.Issue("rider_credential", "1.0", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.ExtractEligibility(token); err == nil {
		t.Error("credential without eligibility claim did not error")
	}
}
