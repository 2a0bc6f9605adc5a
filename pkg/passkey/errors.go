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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrOriginNotAllowed is returned when the request origin is absent
	// or not covered by the allow-list or wildcard policy.
	ErrOriginNotAllowed = errors.New("origin not allowed")

	// ErrRPIDNotConfigured is returned when no Relying Party ID can be
	// derived for a request.
	ErrRPIDNotConfigured = errors.New("relying party id not configured")

	// ErrAccountNotFound is returned when an identifier does not resolve
	// to an existing account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotEnrolled is returned when an account has no registered
	// credentials and therefore cannot authenticate with a passkey.
	ErrNotEnrolled = errors.New("no passkeys enrolled")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrMissingChallenge is returned when a verify operation finds no
	// outstanding challenge for the account.
	ErrMissingChallenge = errors.New("no outstanding challenge")

	// ErrVerificationFailed is returned when ceremony verification fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrClonedAuthenticator is returned when an assertion's signature
	// counter does not strictly increase the stored counter.
	ErrClonedAuthenticator = errors.New("cloned authenticator detected")

	// ErrInvalidRequest is returned when the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrVersionConflict is returned by DocumentStore.CompareAndSet when
	// the stored document version no longer matches the expected version.
	ErrVersionConflict = errors.New("document version conflict")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and error.
func NewError(op string, err error) error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsAccountNotFound returns true if the error indicates an account was not found.
func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsMissingChallenge returns true if the error indicates no challenge was outstanding.
func IsMissingChallenge(err error) bool {
	return errors.Is(err, ErrMissingChallenge)
}

// IsVerificationFailed returns true if the error indicates ceremony
// verification failed, including clone detection.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed) || errors.Is(err, ErrClonedAuthenticator)
}

// IsOriginNotAllowed returns true if the error indicates the origin was rejected.
func IsOriginNotAllowed(err error) bool {
	return errors.Is(err, ErrOriginNotAllowed)
}
