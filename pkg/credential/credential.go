package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks an opaque credential token against an expected schema.
// The core treats a false verdict as a hard stop: the calling operation
// aborts with no mutation.
type Verifier interface {
	Verify(token, schemaName, schemaVersion string) bool
}

// EligibilityExtractor pulls a travel-eligibility verdict out of a rider
// credential. Only the rider-credential path uses it.
type EligibilityExtractor interface {
	ExtractEligibility(token string) (bool, error)
}

// Claims carried by a credential token.
type Claims struct {
	Schema        string `json:"schema"`
	SchemaVersion string `json:"schema_version"`
	Eligible      *bool  `json:"eligible,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies issuer-signed HS256 credential tokens.
type JWTVerifier struct {
	secretKey []byte
}

func NewJWTVerifier(secretKey string) *JWTVerifier {
	return &JWTVerifier{secretKey: []byte(secretKey)}
}

// Issue mints a credential token. Used by the issuer side and by tests;
// the core only ever verifies.
func (v *JWTVerifier) Issue(schemaName, schemaVersion string, eligible *bool, ttl time.Duration) (string, error) {
	claims := Claims{
		Schema:        schemaName,
		SchemaVersion: schemaVersion,
		Eligible:      eligible,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "av-trip-credentials",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}

func (v *JWTVerifier) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid credential")
	}
	return claims, nil
}

// Verify reports whether token is a valid credential for the given schema.
func (v *JWTVerifier) Verify(token, schemaName, schemaVersion string) bool {
	claims, err := v.parse(token)
	if err != nil {
		return false
	}
	return claims.Schema == schemaName && claims.SchemaVersion == schemaVersion
}

// ExtractEligibility returns the eligibility verdict carried by a rider
// credential. A credential without the claim is an error, not a false verdict.
func (v *JWTVerifier) ExtractEligibility(token string) (bool, error) {
	claims, err := v.parse(token)
	if err != nil {
		return false, err
	}
	if claims.Eligible == nil {
		return false, fmt.Errorf("credential carries no eligibility claim")
	}
	return *claims.Eligible, nil
}

// AllowAll is the documented always-allow test double. It must never be
// wired into a production build.
type AllowAll struct {
	Eligible bool
}

func (AllowAll) Verify(token, schemaName, schemaVersion string) bool { return true }

func (a AllowAll) ExtractEligibility(token string) (bool, error) { return a.Eligible, nil }
