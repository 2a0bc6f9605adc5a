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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a platform authenticator for tests. It
// produces parsed attestation and assertion responses that pass the
// ceremony library's cryptographic checks, with a controllable signature
// counter for exercising clone detection.
//
// Challenges are accepted in the base64url form the ceremony session
// stores them in.
type MockAuthenticator struct {
	// AAGUID is the authenticator's model identifier (16 bytes).
	AAGUID []byte

	// CredentialID identifies the credential minted by this authenticator.
	CredentialID []byte

	// SignCount is the current signature counter.
	SignCount uint32

	// UserPresent and UserVerified control the UP and UV flags.
	UserPresent  bool
	UserVerified bool

	privateKey *ecdsa.PrivateKey
	rpIDHash   []byte
}

// MockAuthenticatorOption configures a MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithCredentialID sets a fixed credential ID.
func WithCredentialID(id []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = id
	}
}

// WithSignCount seeds the signature counter.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithUserVerified controls the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// NewMockAuthenticator creates a mock authenticator bound to the given
// relying party ID.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		CredentialID: credID,
		SignCount:    0,
		UserPresent:  true,
		UserVerified: true,
		privateKey:   privateKey,
		rpIDHash:     rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// SetSignCount forces the signature counter to a specific value. Tests
// use this to replay stale counters.
func (m *MockAuthenticator) SetSignCount(count uint32) {
	m.SignCount = count
}

// cosePublicKey returns the public key in COSE EC2 form.
func (m *MockAuthenticator) cosePublicKey() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]any{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),
		-3: pubKey.Y.Bytes(),
	}

	return webauthncbor.Marshal(coseKey)
}

// CreateRegistrationResponse produces a parsed attestation response for
// the given ceremony challenge and origin, using the "none" attestation
// format.
func (m *MockAuthenticator) CreateRegistrationResponse(challenge, origin string) (*protocol.ParsedCredentialCreationData, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	attestationObject := map[string]any{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]any{},
	}
	attestationObjectBytes, err := webauthncbor.Marshal(attestationObject)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := m.cosePublicKey()
	if err != nil {
		return nil, err
	}

	parsedAttObj := protocol.AttestationObject{
		Format:       "none",
		AttStatement: map[string]any{},
		AuthData: protocol.AuthenticatorData{
			RPIDHash: m.rpIDHash,
			Flags:    m.buildFlags(true),
			Counter:  m.SignCount,
			AttData: protocol.AttestedCredentialData{
				AAGUID:              m.AAGUID,
				CredentialID:        m.CredentialID,
				CredentialPublicKey: pubKeyBytes,
			},
		},
	}

	credID := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialCreationData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credID,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAttestationResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.create",
				Challenge: challenge,
				Origin:    origin,
			},
			AttestationObject: parsedAttObj,
			Transports:        []protocol.AuthenticatorTransport{protocol.Internal},
		},
		Raw: protocol.CredentialCreationResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credID,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AttestationResponse: protocol.AuthenticatorAttestationResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AttestationObject: attestationObjectBytes,
				Transports:        []string{"internal"},
			},
		},
	}, nil
}

// CreateAuthenticationResponse produces a parsed assertion response.
// The signature counter is incremented first, matching authenticator
// behavior. userHandle should be the account's opaque handle.
func (m *MockAuthenticator) CreateAuthenticationResponse(challenge string, userHandle []byte, origin string) (*protocol.ParsedCredentialAssertionData, error) {
	m.SignCount++

	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	signedData := append(authData, clientDataHash[:]...)
	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}

	credID := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialAssertionData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credID,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAssertionResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.get",
				Challenge: challenge,
				Origin:    origin,
			},
			AuthenticatorData: protocol.AuthenticatorData{
				RPIDHash: m.rpIDHash,
				Flags:    m.buildFlags(false),
				Counter:  m.SignCount,
			},
			Signature:  signature,
			UserHandle: userHandle,
		},
		Raw: protocol.CredentialAssertionResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credID,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AssertionResponse: protocol.AuthenticatorAssertionResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AuthenticatorData: authData,
				Signature:         signature,
				UserHandle:        userHandle,
			},
		},
	}, nil
}

func (m *MockAuthenticator) buildFlags(includeCredential bool) protocol.AuthenticatorFlags {
	var flags byte
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if includeCredential {
		flags |= 0x40 // AT
	}
	return protocol.AuthenticatorFlags(flags)
}

// buildAuthenticatorData serializes the authenticator data structure,
// including attested credential data when minting a new credential.
func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(m.rpIDHash)
	buf.WriteByte(byte(m.buildFlags(includeCredential)))

	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if includeCredential {
		buf.Write(m.AAGUID)

		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)
		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.cosePublicKey()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

func (m *MockAuthenticator) buildClientDataJSON(challenge, origin, ceremonyType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: challenge,
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

// sign produces an ASN.1 DER encoded ECDSA signature over data.
func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, m.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	return derSignature(r, s), nil
}

// derSignature encodes r and s as an ASN.1 SEQUENCE of two INTEGERs.
func derSignature(r, s *big.Int) []byte {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	if len(rBytes) > 0 && rBytes[0] >= 0x80 {
		rBytes = append([]byte{0x00}, rBytes...)
	}
	if len(sBytes) > 0 && sBytes[0] >= 0x80 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	seqLen := 2 + len(rBytes) + 2 + len(sBytes)

	sig := make([]byte, 0, 2+seqLen)
	sig = append(sig, 0x30, byte(seqLen))
	sig = append(sig, 0x02, byte(len(rBytes)))
	sig = append(sig, rBytes...)
	sig = append(sig, 0x02, byte(len(sBytes)))
	sig = append(sig, sBytes...)
	return sig
}
