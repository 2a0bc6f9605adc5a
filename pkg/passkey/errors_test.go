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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := NewError("consume challenge", ErrMissingChallenge)
	assert.Equal(t, "consume challenge: no outstanding challenge", err.Error())

	bare := &Error{Err: ErrMissingChallenge}
	assert.Equal(t, "no outstanding challenge", bare.Error())
}

func TestError_Unwrap(t *testing.T) {
	err := NewError("verify authentication", ErrClonedAuthenticator)
	assert.ErrorIs(t, err, ErrClonedAuthenticator)
	assert.Equal(t, ErrClonedAuthenticator, errors.Unwrap(err))
}

func TestWrapError_Nil(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
	assert.Error(t, WrapError("op", ErrAccountNotFound))
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"account not found", NewError("resolve", ErrAccountNotFound), IsAccountNotFound, true},
		{"credential not found", NewError("verify", ErrCredentialNotFound), IsCredentialNotFound, true},
		{"missing challenge", NewError("consume", ErrMissingChallenge), IsMissingChallenge, true},
		{"verification failed", NewError("verify", ErrVerificationFailed), IsVerificationFailed, true},
		{"wrapped verification failure", NewError("verify", fmt.Errorf("%w: bad signature", ErrVerificationFailed)), IsVerificationFailed, true},
		{"clone detection is a verification failure", NewError("verify", ErrClonedAuthenticator), IsVerificationFailed, true},
		{"origin not allowed", NewError("resolve", ErrOriginNotAllowed), IsOriginNotAllowed, true},
		{"unrelated error", errors.New("boom"), IsVerificationFailed, false},
		{"nil error", nil, IsMissingChallenge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}
