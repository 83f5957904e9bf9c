package eligibility

import (
	"fmt"
	"sync"

	"av-trip/pkg/credential"
	"av-trip/pkg/events"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// Credential schema accepted on the credential-backed write path.
const (
	CredentialSchema        = "rider_credential"
	CredentialSchemaVersion = "1.0"
)

// Registry stores, per rider identity, whether the rider is currently
// permitted to travel. Only the issuer principal may write. Unknown riders
// default to ineligible; no history is retained, last write wins.
//
// All operations serialize on a single mutex, which is the per-call
// transaction boundary: each call observes fully-committed prior state.
type Registry struct {
	mu        sync.Mutex
	issuer    string
	verdicts  map[string]bool
	verifier  credential.Verifier
	extractor credential.EligibilityExtractor
	sink      events.Sink
	logger    logger.Logger
}

func NewRegistry(
	issuer string,
	verifier credential.Verifier,
	extractor credential.EligibilityExtractor,
	sink events.Sink,
	log logger.Logger,
) *Registry {
	return &Registry{
		issuer:    issuer,
		verdicts:  make(map[string]bool),
		verifier:  verifier,
		extractor: extractor,
		sink:      sink,
		logger:    log,
	}
}

// SetEligibility overwrites the stored verdict for a rider. Riders never
// seen before are created implicitly.
func (r *Registry) SetEligibility(caller, rider string, eligible bool) error {
	if rider == "" {
		return fmt.Errorf("rider identity is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.issuer {
		return fmt.Errorf("caller %q is not the issuer: %w", caller, faults.ErrAccessDenied)
	}

	previous := r.verdicts[rider]
	r.verdicts[rider] = eligible

	r.sink.Emit(events.Record("rider_eligibility", rider, verdictString(previous), verdictString(eligible)))
	r.logger.WithFields(logger.LogFields{
		"rider":    rider,
		"eligible": eligible,
	}).Info("eligibility_set", "Rider eligibility verdict stored")

	return nil
}

// SetEligibilityFromCredential verifies an issuer-signed rider credential,
// extracts the eligibility verdict it carries and stores it. Returns the
// stored verdict.
func (r *Registry) SetEligibilityFromCredential(caller, rider, credentialToken string) (bool, error) {
	if rider == "" || credentialToken == "" {
		return false, fmt.Errorf("rider or credential is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.issuer {
		return false, fmt.Errorf("caller %q is not the issuer: %w", caller, faults.ErrAccessDenied)
	}

	if !r.verifier.Verify(credentialToken, CredentialSchema, CredentialSchemaVersion) {
		return false, fmt.Errorf("credential rejected by verifier: %w", faults.ErrAccessDenied)
	}

	eligible, err := r.extractor.ExtractEligibility(credentialToken)
	if err != nil {
		return false, fmt.Errorf("extract eligibility: %w", err)
	}

	previous := r.verdicts[rider]
	r.verdicts[rider] = eligible

	r.sink.Emit(events.Record("rider_eligibility", rider, verdictString(previous), verdictString(eligible)))
	r.logger.WithFields(logger.LogFields{
		"rider":    rider,
		"eligible": eligible,
	}).Info("eligibility_set_from_credential", "Rider eligibility stored from credential")

	return eligible, nil
}

// IsEligible is a pure lookup. Unknown riders are ineligible.
func (r *Registry) IsEligible(rider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verdicts[rider]
}

// RotateIssuer replaces the issuer. Only the current issuer may rotate.
func (r *Registry) RotateIssuer(caller, newIssuer string) error {
	if newIssuer == "" {
		return fmt.Errorf("new issuer identity is empty: %w", faults.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.issuer {
		return fmt.Errorf("caller %q is not the issuer: %w", caller, faults.ErrAccessDenied)
	}

	previous := r.issuer
	r.issuer = newIssuer

	r.sink.Emit(events.Record("eligibility_issuer", newIssuer, previous, newIssuer))
	r.logger.WithFields(logger.LogFields{
		"previous_issuer": previous,
		"new_issuer":      newIssuer,
	}).Info("issuer_rotated", "Eligibility issuer replaced")

	return nil
}

func verdictString(eligible bool) string {
	if eligible {
		return "ELIGIBLE"
	}
	return "INELIGIBLE"
}
