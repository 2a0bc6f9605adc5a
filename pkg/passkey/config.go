// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of passkeyd.
//
// passkeyd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config configures the passkey service. Unlike a fixed-RPID deployment,
// the Relying Party ID is resolved per request from the validated origin;
// the configuration only pins the origin policy and the fallbacks.
type Config struct {
	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name"`

	// DefaultRPID is the Relying Party ID used when no hostname can be
	// derived from the validated origin.
	// Example: "example.com"
	DefaultRPID string `yaml:"default_rp_id" json:"default_rp_id"`

	// AllowedOrigins is the static allow-list of exact origins.
	// Example: []string{"https://example.com", "https://www.example.com"}
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// OriginSuffixes is an optional suffix-wildcard policy. An https origin
	// whose hostname ends with one of these suffixes is accepted even when
	// it is not in AllowedOrigins. Each entry must start with a dot.
	// Example: []string{".preview.example.com"}
	OriginSuffixes []string `yaml:"origin_suffixes" json:"origin_suffixes"`

	// ChallengeTTL bounds the lifetime of an outstanding challenge.
	// Zero disables expiry: a challenge stays live until it is consumed
	// or overwritten by the next options call.
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl"`

	// Timeout is the ceremony timeout hint sent to the client.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// UserVerification specifies the user verification requirement.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct", "enterprise"
	// Default: "none"
	AttestationPreference string `yaml:"attestation" json:"attestation"`

	// ResidentKeyRequirement specifies whether to require resident keys (passkeys).
	// Options: "required", "preferred", "discouraged"
	// Default: "required"
	ResidentKeyRequirement string `yaml:"resident_key" json:"resident_key"`

	// Debug enables debug logging in the underlying WebAuthn library.
	Debug bool `yaml:"debug" json:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.AllowedOrigins) == 0 && len(c.OriginSuffixes) == 0 {
		return fmt.Errorf("at least one allowed origin or origin suffix is required")
	}

	for _, origin := range c.AllowedOrigins {
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid allowed origin: %q", origin)
		}
	}

	for _, suffix := range c.OriginSuffixes {
		if !strings.HasPrefix(suffix, ".") {
			return fmt.Errorf("origin suffix must start with a dot: %q", suffix)
		}
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	switch c.ResidentKeyRequirement {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKeyRequirement)
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if c.ResidentKeyRequirement == "" {
		c.ResidentKeyRequirement = "required"
	}
}

// webAuthnConfig builds a go-webauthn configuration bound to a resolved
// RPID and validated origin. The instance is request-scoped because the
// RPID varies with the caller's origin.
func (c *Config) webAuthnConfig(rpID, origin string) *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:          rpID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     []string{origin},
		Debug:         c.Debug,
	}

	// The library only enforces expiry when a ceremony deadline is
	// configured; the challenge slot itself has no TTL unless set.
	timeout := webauthn.TimeoutConfig{
		Enforce:    c.ChallengeTTL > 0,
		Timeout:    c.Timeout,
		TimeoutUVD: c.Timeout,
	}
	if c.ChallengeTTL > 0 {
		timeout.Timeout = c.ChallengeTTL
		timeout.TimeoutUVD = c.ChallengeTTL
	}
	cfg.Timeouts = webauthn.TimeoutsConfig{
		Login:        timeout,
		Registration: timeout,
	}

	switch c.AttestationPreference {
	case "none":
		cfg.AttestationPreference = protocol.PreferNoAttestation
	case "indirect":
		cfg.AttestationPreference = protocol.PreferIndirectAttestation
	case "direct":
		cfg.AttestationPreference = protocol.PreferDirectAttestation
	case "enterprise":
		cfg.AttestationPreference = protocol.PreferEnterpriseAttestation
	}

	cfg.AuthenticatorSelection = protocol.AuthenticatorSelection{}

	switch c.UserVerification {
	case "required":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationRequired
	case "preferred":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationPreferred
	case "discouraged":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationDiscouraged
	}

	switch c.ResidentKeyRequirement {
	case "required":
		cfg.AuthenticatorSelection.ResidentKey = protocol.ResidentKeyRequirementRequired
	case "preferred":
		cfg.AuthenticatorSelection.ResidentKey = protocol.ResidentKeyRequirementPreferred
	case "discouraged":
		cfg.AuthenticatorSelection.ResidentKey = protocol.ResidentKeyRequirementDiscouraged
	}

	return cfg
}
