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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/sethvargo/go-retry"
)

const (
	casMaxRetries uint64 = 4
	casBaseDelay         = 5 * time.Millisecond
)

// Service is the ceremony orchestrator: the five-operation state machine
// over the per-account challenge slot and credential set. All operations
// fail fast and terminally per request; none retry internally beyond
// compare-and-set version conflicts.
type Service struct {
	config     *Config
	store      DocumentStore
	identity   IdentityBridge
	logger     *slog.Logger
	now        func() time.Time
	configured bool
}

// ServiceParams contains dependencies for creating a ceremony service.
type ServiceParams struct {
	// Config is the passkey configuration (required).
	Config *Config

	// Store is the per-account document persistence layer (required).
	Store DocumentStore

	// Identity is the bridge to the account/identity system (required).
	Identity IdentityBridge

	// Logger is an optional structured logger; defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a new ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if params.Identity == nil {
		return nil, fmt.Errorf("identity bridge is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:     params.Config,
		store:      params.Store,
		identity:   params.Identity,
		logger:     logger,
		now:        time.Now,
		configured: true,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// RegistrationOptions starts a registration ceremony for the account.
// Existing credential ids become the exclusion list so the same
// authenticator cannot be enrolled twice. Any ceremony already in flight
// for the account is implicitly cancelled by overwriting its challenge.
func (s *Service) RegistrationOptions(ctx context.Context, origin RequestOrigin, accountID, displayName string) (creation *protocol.CredentialCreation, err error) {
	start := s.now()
	defer func() { recordCeremony(OpRegistrationOptions, start, err) }()
	if !s.configured {
		return nil, ErrNotConfigured
	}

	wa, err := webauthn.New(s.config.webAuthnConfig(origin.RPID, origin.Origin))
	if err != nil {
		return nil, WrapError("configure relying party", err)
	}

	doc, _, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, WrapError("get account document", err)
	}

	if displayName == "" {
		displayName = doc.DisplayName
	}
	user := newCeremonyUser(accountID, displayName, doc.Credentials)

	var opts []webauthn.RegistrationOption
	if len(doc.Credentials) > 0 {
		exclusions := make([]protocol.CredentialDescriptor, len(doc.Credentials))
		for i, cred := range doc.Credentials {
			exclusions[i] = protocol.CredentialDescriptor{
				Type:         protocol.PublicKeyCredentialType,
				CredentialID: cred.ID,
				Transport:    cred.Transports,
			}
		}
		opts = append(opts, webauthn.WithExclusions(exclusions))
	}

	creation, session, err := wa.BeginRegistration(user, opts...)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	if err := s.issueChallenge(ctx, accountID, CeremonyRegistration, displayName, session); err != nil {
		return nil, err
	}

	s.logger.Debug("registration options issued",
		"account", accountID,
		"rp_id", origin.RPID,
		"exclusions", len(doc.Credentials))
	return creation, nil
}

// VerifyRegistration completes a registration ceremony. The outstanding
// challenge is consumed whether or not verification succeeds; on success
// the new credential is upserted, replacing any record with the same id.
func (s *Service) VerifyRegistration(ctx context.Context, origin RequestOrigin, accountID string, response *protocol.ParsedCredentialCreationData) (cred *Credential, err error) {
	start := s.now()
	defer func() { recordCeremony(OpRegistrationVerify, start, err) }()
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, NewError("verify registration", ErrInvalidRequest)
	}

	wa, err := webauthn.New(s.config.webAuthnConfig(origin.RPID, origin.Origin))
	if err != nil {
		return nil, WrapError("configure relying party", err)
	}

	record, doc, err := s.consumeChallenge(ctx, accountID, CeremonyRegistration)
	if err != nil {
		return nil, err
	}

	user := newCeremonyUser(accountID, doc.DisplayName, doc.Credentials)
	verified, err := wa.CreateCredential(user, record.Session, response)
	if err != nil {
		s.logger.Debug("registration verification failed", "account", accountID, "error", err)
		return nil, NewError("verify registration", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	cred = credentialFromWebAuthn(user.WebAuthnID(), verified, s.now())
	err = s.withCAS(ctx, accountID, func(doc *AccountDocument) error {
		doc.UpsertCredential(cred)
		return nil
	})
	if err != nil {
		return nil, WrapError("store credential", err)
	}

	s.logger.Info("passkey registered",
		"account", accountID,
		"credential", cred.EncodedID(),
		"device_type", string(cred.DeviceType))
	return cred, nil
}

// AuthenticationOptions starts an authentication ceremony. Accounts with
// no enrolled credentials fail with ErrNotEnrolled so the client can fall
// back to another login method.
func (s *Service) AuthenticationOptions(ctx context.Context, origin RequestOrigin, accountID string) (assertion *protocol.CredentialAssertion, err error) {
	start := s.now()
	defer func() { recordCeremony(OpAuthenticationOptions, start, err) }()
	if !s.configured {
		return nil, ErrNotConfigured
	}

	doc, _, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, WrapError("get account document", err)
	}
	if len(doc.Credentials) == 0 {
		return nil, NewError("authentication options", ErrNotEnrolled)
	}

	wa, err := webauthn.New(s.config.webAuthnConfig(origin.RPID, origin.Origin))
	if err != nil {
		return nil, WrapError("configure relying party", err)
	}

	user := newCeremonyUser(accountID, doc.DisplayName, doc.Credentials)
	assertion, session, err := wa.BeginLogin(user)
	if err != nil {
		return nil, WrapError("begin login", err)
	}

	if err := s.issueChallenge(ctx, accountID, CeremonyAuthentication, "", session); err != nil {
		return nil, err
	}

	s.logger.Debug("authentication options issued",
		"account", accountID,
		"rp_id", origin.RPID,
		"allowed", len(doc.Credentials))
	return assertion, nil
}

// VerifyAuthentication completes an authentication ceremony. The challenge
// is consumed regardless of outcome. The presented signature counter must
// strictly exceed the stored counter; the counter update re-validates
// monotonicity under compare-and-set so two racing verifies can never both
// be accepted. On success the identity bridge mints exactly one token.
func (s *Service) VerifyAuthentication(ctx context.Context, origin RequestOrigin, accountID string, response *protocol.ParsedCredentialAssertionData) (token string, err error) {
	start := s.now()
	defer func() { recordCeremony(OpAuthenticationVerify, start, err) }()
	if !s.configured {
		return "", ErrNotConfigured
	}
	if response == nil {
		return "", NewError("verify authentication", ErrInvalidRequest)
	}

	wa, err := webauthn.New(s.config.webAuthnConfig(origin.RPID, origin.Origin))
	if err != nil {
		return "", WrapError("configure relying party", err)
	}

	record, doc, err := s.consumeChallenge(ctx, accountID, CeremonyAuthentication)
	if err != nil {
		return "", err
	}

	stored := doc.FindCredential(response.RawID)
	if stored == nil {
		return "", NewError("verify authentication", ErrCredentialNotFound)
	}

	user := newCeremonyUser(accountID, doc.DisplayName, doc.Credentials)
	verified, err := wa.ValidateLogin(user, record.Session, response)
	if err != nil {
		s.logger.Debug("authentication verification failed", "account", accountID, "error", err)
		return "", NewError("verify authentication", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	newCount := verified.Authenticator.SignCount
	if verified.Authenticator.CloneWarning || newCount <= stored.SignCount {
		s.logger.Warn("assertion counter did not advance",
			"account", accountID,
			"credential", stored.EncodedID(),
			"stored", stored.SignCount,
			"presented", newCount)
		return "", NewError("verify authentication", ErrClonedAuthenticator)
	}

	now := s.now().UTC()
	err = s.withCAS(ctx, accountID, func(doc *AccountDocument) error {
		cred := doc.FindCredential(response.RawID)
		if cred == nil {
			return ErrCredentialNotFound
		}
		// Re-checked after every re-read: if a concurrent verify committed
		// first, this counter no longer advances and the attempt fails.
		if cred.SignCount >= newCount {
			return ErrClonedAuthenticator
		}
		cred.SignCount = newCount
		cred.BackedUp = verified.Flags.BackupState
		cred.LastUsedAt = now
		return nil
	})
	if err != nil {
		return "", WrapError("verify authentication", err)
	}

	token, err = s.identity.IssueToken(ctx, accountID)
	if err != nil {
		return "", WrapError("issue token", err)
	}

	s.logger.Info("passkey authenticated",
		"account", accountID,
		"credential", stored.EncodedID(),
		"sign_count", newCount)
	return token, nil
}

// HasPasskeys reports whether the account has any enrolled credentials.
// It is a pure read: no auth, no side effects, and only a boolean leaves.
func (s *Service) HasPasskeys(ctx context.Context, accountID string) (enrolled bool, err error) {
	start := s.now()
	defer func() { recordCeremony(OpHasPasskeys, start, err) }()
	if !s.configured {
		return false, ErrNotConfigured
	}

	doc, _, err := s.store.Get(ctx, accountID)
	if err != nil {
		return false, WrapError("get account document", err)
	}
	return len(doc.Credentials) > 0, nil
}

// Credentials returns the account's enrolled credentials.
func (s *Service) Credentials(ctx context.Context, accountID string) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	doc, _, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, WrapError("get account document", err)
	}
	return doc.Credentials, nil
}

// issueChallenge overwrites the account's challenge slot. Overwriting an
// existing challenge is the implicit cancellation of any ceremony already
// in flight for the account: single writer wins, the later challenge is
// the only one a verify can consume.
func (s *Service) issueChallenge(ctx context.Context, accountID string, kind CeremonyKind, displayName string, session *webauthn.SessionData) error {
	if session == nil {
		return NewError("issue challenge", fmt.Errorf("session data is required"))
	}
	err := s.withCAS(ctx, accountID, func(doc *AccountDocument) error {
		doc.AccountID = accountID
		if displayName != "" {
			doc.DisplayName = displayName
		}
		doc.Challenge = &ChallengeRecord{
			Ceremony: kind,
			Session:  *session,
			IssuedAt: s.now().UTC(),
		}
		return nil
	})
	return WrapError("issue challenge", err)
}

// consumeChallenge atomically takes and clears the account's challenge.
// The slot is cleared before any verification happens, so a failed verify
// still burns the challenge. Kind mismatches and expired challenges fail
// the same way an absent challenge does, after clearing.
func (s *Service) consumeChallenge(ctx context.Context, accountID string, kind CeremonyKind) (ChallengeRecord, AccountDocument, error) {
	var record ChallengeRecord
	var after AccountDocument

	err := s.withCAS(ctx, accountID, func(doc *AccountDocument) error {
		if doc.Challenge == nil {
			return ErrMissingChallenge
		}
		record = *doc.Challenge
		doc.Challenge = nil
		after = *doc
		return nil
	})
	if err != nil {
		return ChallengeRecord{}, AccountDocument{}, WrapError("consume challenge", err)
	}

	if record.Ceremony != kind {
		return ChallengeRecord{}, AccountDocument{}, NewError("consume challenge", ErrMissingChallenge)
	}
	if ttl := s.config.ChallengeTTL; ttl > 0 && s.now().After(record.IssuedAt.Add(ttl)) {
		return ChallengeRecord{}, AccountDocument{}, NewError("consume challenge", ErrMissingChallenge)
	}
	return record, after, nil
}

// withCAS applies a mutation to the account document under optimistic
// concurrency, re-reading and retrying on version conflicts.
func (s *Service) withCAS(ctx context.Context, accountID string, mutate func(doc *AccountDocument) error) error {
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewExponential(casBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc, version, err := s.store.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if err := mutate(&doc); err != nil {
			return err
		}
		if err := s.store.CompareAndSet(ctx, accountID, doc, version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}
