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

package http

import "encoding/json"

// Operation names accepted in the request envelope.
const (
	OpRegOptions   = "reg-options"
	OpRegVerify    = "reg-verify"
	OpAuthnOptions = "authn-options"
	OpAuthnVerify  = "authn-verify"
	OpHasPasskeys  = "has-passkeys"
)

// Error codes returned in the body of non-2xx responses.
const (
	CodeInvalidRequest      = "invalid-request"
	CodeMissingChallenge    = "missing-challenge"
	CodeAuthRequired        = "auth-required"
	CodeForbidden           = "forbidden"
	CodeNoPasskeysEnrolled  = "no-passkeys-enrolled"
	CodeCredentialNotFound  = "credential-not-found"
	CodeVerificationFailed  = "verification-failed"
	CodeRPIDNotConfigured   = "rp-id-not-configured"
	CodeOriginNotAllowed    = "origin-not-allowed"
	CodeRateLimited         = "rate-limited"
	CodeInternal            = "internal"
)

// ceremonyRequest is the envelope shared by every operation. The
// response field is kept raw so each operation can parse it with the
// decoder appropriate to its ceremony.
type ceremonyRequest struct {
	Operation string          `json:"operation"`
	UID       string          `json:"uid"`
	Username  string          `json:"username,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// VerifyResponse is returned by reg-verify and authn-verify. Token is
// populated only for authn-verify.
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Token    string `json:"token,omitempty"`
}

// EnrolledResponse is returned by has-passkeys.
type EnrolledResponse struct {
	Enrolled bool `json:"enrolled"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
