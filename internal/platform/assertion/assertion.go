// Package assertion builds the short-lived signed access assertion attached to
// every outbound call to a practice endpoint.
package assertion

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gpbook/gpbook/internal/platform/apperr"
)

const (
	// Lifetime is how long an assertion stays valid after issue.
	Lifetime = 5 * time.Minute

	ReasonDirectCare   = "directcare"
	ScopePatientRead   = "patient/*.read"
	systemASID         = "https://fhir.nhs.uk/Id/accredited-system"
	systemODSCode      = "https://fhir.nhs.uk/Id/ods-organization-code"
	systemSDSUserID    = "https://fhir.nhs.uk/Id/sds-user-id"
	placeholderPattern = "demo-token-%s-%d"
)

// Identifier is a FHIR identifier embedded in the claim set.
type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Requester describes the local device, organization or practitioner making the call.
type Requester struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier"`
}

// Claims is the claim set carried by an assertion.
type Claims struct {
	jwt.RegisteredClaims
	ReasonForRequest       string    `json:"reason_for_request"`
	RequestedScope         string    `json:"requested_scope"`
	RequestingDevice       Requester `json:"requesting_device"`
	RequestingOrganization Requester `json:"requesting_organization"`
	RequestingPractitioner Requester `json:"requesting_practitioner"`
}

// Target identifies the practice system an assertion is for.
type Target struct {
	ASID     string
	Endpoint string
}

// Config holds the local identity and key material. A nil SigningKey with no
// KeyErr selects demo mode.
type Config struct {
	LocalASID    string
	LocalODSCode string
	LocalUserID  string
	SigningKey   *rsa.PrivateKey
	// KeyErr records a key that was configured but could not be parsed.
	KeyErr error
}

// Generator issues assertions. It is safe for concurrent use.
type Generator struct {
	cfg Config
	now func() time.Time
}

// NewGenerator creates a Generator for the given local identity.
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg, now: time.Now}
}

// Signing reports whether assertions are cryptographically signed.
func (g *Generator) Signing() bool {
	return g.cfg.SigningKey != nil || g.cfg.KeyErr != nil
}

// Generate returns a compact JWS for the target. Without a signing key it
// returns an unsigned placeholder that carries only a timestamp.
func (g *Generator) Generate(target Target) (string, error) {
	if g.cfg.KeyErr != nil {
		return "", apperr.Configuration("signing key is invalid", g.cfg.KeyErr)
	}
	now := g.now().UTC()
	if g.cfg.SigningKey == nil {
		return fmt.Sprintf(placeholderPattern, target.ASID, now.Unix()), nil
	}
	if target.Endpoint == "" {
		return "", apperr.Configuration("assertion audience is required", nil)
	}

	claims := g.claims(target, now)
	token := jwt.NewWithClaims(jwt.SigningMethodRS512, claims)
	signed, err := token.SignedString(g.cfg.SigningKey)
	if err != nil {
		return "", apperr.Configuration("sign assertion", err)
	}
	return signed, nil
}

func (g *Generator) claims(target Target, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.cfg.LocalASID,
			Subject:   g.cfg.LocalASID,
			Audience:  jwt.ClaimStrings{target.Endpoint},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
		},
		ReasonForRequest: ReasonDirectCare,
		RequestedScope:   ScopePatientRead,
		RequestingDevice: Requester{
			ResourceType: "Device",
			Identifier:   []Identifier{{System: systemASID, Value: g.cfg.LocalASID}},
		},
		RequestingOrganization: Requester{
			ResourceType: "Organization",
			Identifier:   []Identifier{{System: systemODSCode, Value: g.cfg.LocalODSCode}},
		},
		RequestingPractitioner: Requester{
			ResourceType: "Practitioner",
			ID:           g.cfg.LocalUserID,
			Identifier:   []Identifier{{System: systemSDSUserID, Value: g.cfg.LocalUserID}},
		},
	}
}

// ParsePrivateKey decodes a PEM encoded RSA private key (PKCS#1 or PKCS#8).
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, apperr.Configuration("parse signing key", err)
	}
	return key, nil
}
