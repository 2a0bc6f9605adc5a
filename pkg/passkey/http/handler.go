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

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/passkeyd/pkg/passkey"
)

// Handler serves the ceremony endpoint. All operations share one POST
// route; OPTIONS preflights are answered directly.
type Handler struct {
	service  *passkey.Service
	resolver *passkey.OriginResolver
	bridge   passkey.IdentityBridge
	limiter  *rateLimiter
	logger   *slog.Logger
}

// NewHandler creates a ceremony handler. The bridge is used to resolve
// the uid field to an account id and to verify bearer tokens on
// registration operations.
func NewHandler(service *passkey.Service, resolver *passkey.OriginResolver, bridge passkey.IdentityBridge) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		bridge:   bridge,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithRateLimit enables per-account rate limiting. Requests beyond the
// configured rate receive 429 with code "rate-limited".
func (h *Handler) WithRateLimit(perSecond float64, burst int) *Handler {
	h.limiter = newRateLimiter(perSecond, burst)
	return h
}

// Ceremony handles POST /ceremony
//
// The Origin header is validated before the body is read. Registration
// operations require an Authorization bearer whose subject matches the
// account resolved from the uid field.
func (h *Handler) Ceremony(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.preflight(w, r)
		return
	}
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}

	origin, err := h.resolver.Resolve(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin.Origin)

	var req ceremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if req.UID == "" {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "uid is required")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.UID) {
		h.writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests")
		return
	}

	switch req.Operation {
	case OpRegOptions:
		h.regOptions(w, r, origin, req)
	case OpRegVerify:
		h.regVerify(w, r, origin, req)
	case OpAuthnOptions:
		h.authnOptions(w, r, origin, req)
	case OpAuthnVerify:
		h.authnVerify(w, r, origin, req)
	case OpHasPasskeys:
		h.hasPasskeys(w, r, req)
	default:
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "unknown operation")
	}
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !h.resolver.Allowed(origin) {
		h.writeError(w, http.StatusForbidden, CodeOriginNotAllowed, "origin not allowed")
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) regOptions(w http.ResponseWriter, r *http.Request, origin passkey.RequestOrigin, req ceremonyRequest) {
	accountID, ok := h.authorizeAccount(w, r, req.UID)
	if !ok {
		return
	}

	options, err := h.service.RegistrationOptions(r.Context(), origin, accountID, req.Username)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

func (h *Handler) regVerify(w http.ResponseWriter, r *http.Request, origin passkey.RequestOrigin, req ceremonyRequest) {
	accountID, ok := h.authorizeAccount(w, r, req.UID)
	if !ok {
		return
	}

	if len(req.Response) == 0 {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "response is required")
		return
	}
	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid attestation response")
		return
	}

	if _, err := h.service.VerifyRegistration(r.Context(), origin, accountID, response); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyResponse{Verified: true})
}

func (h *Handler) authnOptions(w http.ResponseWriter, r *http.Request, origin passkey.RequestOrigin, req ceremonyRequest) {
	accountID, err := h.bridge.ResolveAccountID(r.Context(), req.UID)
	if err != nil {
		if passkey.IsAccountNotFound(err) {
			h.writeError(w, http.StatusNotFound, CodeNoPasskeysEnrolled, "no passkeys enrolled")
			return
		}
		h.handleServiceError(w, err)
		return
	}

	options, err := h.service.AuthenticationOptions(r.Context(), origin, accountID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

func (h *Handler) authnVerify(w http.ResponseWriter, r *http.Request, origin passkey.RequestOrigin, req ceremonyRequest) {
	accountID, err := h.bridge.ResolveAccountID(r.Context(), req.UID)
	if err != nil {
		if passkey.IsAccountNotFound(err) {
			h.writeError(w, http.StatusNotFound, CodeNoPasskeysEnrolled, "no passkeys enrolled")
			return
		}
		h.handleServiceError(w, err)
		return
	}

	if len(req.Response) == 0 {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "response is required")
		return
	}
	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid assertion response")
		return
	}

	token, err := h.service.VerifyAuthentication(r.Context(), origin, accountID, response)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyResponse{Verified: true, Token: token})
}

func (h *Handler) hasPasskeys(w http.ResponseWriter, r *http.Request, req ceremonyRequest) {
	accountID, err := h.bridge.ResolveAccountID(r.Context(), req.UID)
	if err != nil {
		if passkey.IsAccountNotFound(err) {
			h.writeJSON(w, http.StatusOK, EnrolledResponse{Enrolled: false})
			return
		}
		h.handleServiceError(w, err)
		return
	}

	enrolled, err := h.service.HasPasskeys(r.Context(), accountID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, EnrolledResponse{Enrolled: enrolled})
}

// authorizeAccount resolves uid to an account id and requires a bearer
// token whose subject matches it. Used by the registration operations,
// which write state on behalf of an already authenticated account.
func (h *Handler) authorizeAccount(w http.ResponseWriter, r *http.Request, uid string) (string, bool) {
	subject, err := h.bearerSubject(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "valid bearer token required")
		return "", false
	}

	accountID, err := h.bridge.ResolveAccountID(r.Context(), uid)
	if err != nil {
		if passkey.IsAccountNotFound(err) {
			h.writeError(w, http.StatusForbidden, CodeForbidden, "account mismatch")
			return "", false
		}
		h.handleServiceError(w, err)
		return "", false
	}
	if subject != accountID {
		h.writeError(w, http.StatusForbidden, CodeForbidden, "account mismatch")
		return "", false
	}
	return accountID, true
}

func (h *Handler) bearerSubject(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", errors.New("missing bearer token")
	}
	return h.bridge.VerifyToken(r.Context(), auth[len(prefix):])
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrOriginNotAllowed):
		h.writeError(w, http.StatusForbidden, CodeOriginNotAllowed, "origin not allowed")
	case errors.Is(err, passkey.ErrRPIDNotConfigured):
		h.writeError(w, http.StatusInternalServerError, CodeRPIDNotConfigured, "relying party ID not configured")
	case errors.Is(err, passkey.ErrMissingChallenge):
		h.writeError(w, http.StatusBadRequest, CodeMissingChallenge, "no pending challenge")
	case errors.Is(err, passkey.ErrNotEnrolled):
		h.writeError(w, http.StatusNotFound, CodeNoPasskeysEnrolled, "no passkeys enrolled")
	case errors.Is(err, passkey.ErrCredentialNotFound):
		h.writeError(w, http.StatusNotFound, CodeCredentialNotFound, "credential not found")
	case passkey.IsVerificationFailed(err):
		h.writeError(w, http.StatusBadRequest, CodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, CodeNoPasskeysEnrolled, "no passkeys enrolled")
	case errors.Is(err, passkey.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	default:
		h.logger.Error("ceremony request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
