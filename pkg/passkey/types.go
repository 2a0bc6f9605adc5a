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
	"bytes"
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// DeviceType classifies a credential by sync eligibility.
type DeviceType string

const (
	// DeviceTypeSingleDevice marks a credential bound to one authenticator.
	DeviceTypeSingleDevice DeviceType = "single-device"

	// DeviceTypeMultiDevice marks a credential eligible for multi-device
	// sync (a passkey in the narrow sense).
	DeviceTypeMultiDevice DeviceType = "multi-device"
)

// CeremonyKind tags the two ceremony flavors.
type CeremonyKind string

const (
	// CeremonyRegistration is a credential creation ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication is an assertion ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Credential is a public-key credential enrolled for an account.
// No two credentials of the same account share an ID; re-enrolling the
// same authenticator replaces its record rather than duplicating it.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// PublicKey is the credential's verification key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type,omitempty"`

	// Transports lists the transport hints reported at enrollment.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// SignCount is the signature counter for clone detection. It only
	// ever increases; assertions that do not strictly increase it are
	// rejected.
	SignCount uint32 `json:"sign_count"`

	// DeviceType records whether the credential is sync eligible.
	DeviceType DeviceType `json:"device_type"`

	// BackedUp indicates the credential is currently backed up.
	BackedUp bool `json:"backed_up"`

	// OwnerHandle is the user handle the credential was enrolled under,
	// fixed at enrollment.
	OwnerHandle []byte `json:"owner_handle"`

	// Flags records user presence/verification from the enrollment ceremony.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`
}

// EncodedID returns the credential ID in base64url without padding, the
// encoding WebAuthn uses on the wire.
func (c *Credential) EncodedID() string {
	return base64.RawURLEncoding.EncodeToString(c.ID)
}

// toWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) toWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.DeviceType == DeviceTypeMultiDevice,
			BackupState:    c.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// credentialFromWebAuthn builds a Credential from a verified ceremony
// result. The owner handle is fixed here and never changes afterwards.
func credentialFromWebAuthn(ownerHandle []byte, wc *webauthn.Credential, now time.Time) *Credential {
	deviceType := DeviceTypeSingleDevice
	if wc.Flags.BackupEligible {
		deviceType = DeviceTypeMultiDevice
	}
	return &Credential{
		ID:              wc.ID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      wc.Transport,
		SignCount:       wc.Authenticator.SignCount,
		DeviceType:      deviceType,
		BackedUp:        wc.Flags.BackupState,
		OwnerHandle:     ownerHandle,
		Flags: CredentialFlags{
			UserPresent:  wc.Flags.UserPresent,
			UserVerified: wc.Flags.UserVerified,
		},
		AAGUID:    wc.Authenticator.AAGUID,
		CreatedAt: now.UTC(),
	}
}

// ChallengeRecord is the single outstanding challenge slot of an account.
// It is created or overwritten at the start of every options call and
// consumed exactly once by the matching verify call.
type ChallengeRecord struct {
	// Ceremony tags which verify operation may consume this challenge.
	Ceremony CeremonyKind `json:"ceremony"`

	// Session is the library session data the verify step needs.
	Session webauthn.SessionData `json:"session"`

	// IssuedAt is when the challenge was issued.
	IssuedAt time.Time `json:"issued_at"`
}

// AccountDocument is the one versioned document stored per account. It
// carries the credential list, the challenge slot, and the cached display
// name; all mutations go through a compare-and-set on the version.
type AccountDocument struct {
	// AccountID is the canonical account identifier.
	AccountID string `json:"account_id"`

	// DisplayName caches the name presented in ceremony options.
	DisplayName string `json:"display_name,omitempty"`

	// Challenge is the outstanding challenge, nil when no ceremony is in
	// flight.
	Challenge *ChallengeRecord `json:"challenge,omitempty"`

	// Credentials is the account's enrolled credential set, unique by ID.
	Credentials []*Credential `json:"credentials,omitempty"`
}

// FindCredential returns the credential with the given ID, or nil.
func (d *AccountDocument) FindCredential(id []byte) *Credential {
	for _, cred := range d.Credentials {
		if bytes.Equal(cred.ID, id) {
			return cred
		}
	}
	return nil
}

// UpsertCredential adds the credential, replacing any existing record
// with the same ID (last write wins).
func (d *AccountDocument) UpsertCredential(cred *Credential) {
	for i, existing := range d.Credentials {
		if bytes.Equal(existing.ID, cred.ID) {
			d.Credentials[i] = cred
			return
		}
	}
	d.Credentials = append(d.Credentials, cred)
}

// Clone returns a deep copy so stores can hand out documents without
// aliasing their internal state.
func (d *AccountDocument) Clone() AccountDocument {
	out := AccountDocument{
		AccountID:   d.AccountID,
		DisplayName: d.DisplayName,
	}
	if d.Challenge != nil {
		challenge := *d.Challenge
		out.Challenge = &challenge
	}
	if len(d.Credentials) > 0 {
		out.Credentials = make([]*Credential, len(d.Credentials))
		for i, cred := range d.Credentials {
			copied := *cred
			out.Credentials[i] = &copied
		}
	}
	return out
}

// ceremonyUser adapts an account document to the go-webauthn user
// contract for the duration of one ceremony.
type ceremonyUser struct {
	id          []byte
	name        string
	displayName string
	credentials []*Credential
}

func newCeremonyUser(accountID, displayName string, creds []*Credential) *ceremonyUser {
	if displayName == "" {
		displayName = accountID
	}
	return &ceremonyUser{
		id:          []byte(accountID),
		name:        accountID,
		displayName: displayName,
		credentials: creds,
	}
}

// WebAuthnID returns the user handle.
func (u *ceremonyUser) WebAuthnID() []byte {
	return u.id
}

// WebAuthnName returns the account identifier.
func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

// WebAuthnDisplayName returns the display name shown by authenticators.
func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.displayName
}

// WebAuthnCredentials returns the enrolled credentials.
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.credentials))
	for i, c := range u.credentials {
		creds[i] = c.toWebAuthn()
	}
	return creds
}
