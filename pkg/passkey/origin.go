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
	"net"
	"net/http"
	"net/url"
	"strings"
)

// RequestOrigin is the result of validating a request's origin: the
// origin the ceremony must bind to and the Relying Party ID derived
// from it. It is only safe to trust the client-supplied Origin header
// for RPID derivation because Resolve checks it against the allow-list
// first; that ordering must be preserved.
type RequestOrigin struct {
	// Origin is the validated origin, exactly as the client sent it.
	Origin string

	// RPID is the Relying Party ID the ceremony binds credentials to.
	RPID string
}

// OriginResolver validates request origins against the configured
// allow-list and wildcard suffix policy, and derives the RPID.
type OriginResolver struct {
	config *Config
}

// NewOriginResolver creates a resolver for the given configuration.
func NewOriginResolver(config *Config) *OriginResolver {
	return &OriginResolver{config: config}
}

// Resolve validates the Origin header of the request and derives the
// RPID. It returns ErrOriginNotAllowed when the header is absent or not
// covered by the policy, and ErrRPIDNotConfigured when no RPID can be
// derived at all. Resolve has no side effects; callers must reject the
// request before touching any stored state.
func (r *OriginResolver) Resolve(req *http.Request) (RequestOrigin, error) {
	origin := strings.TrimSpace(req.Header.Get("Origin"))
	if origin == "" {
		return RequestOrigin{}, NewError("resolve origin", ErrOriginNotAllowed)
	}

	if !r.Allowed(origin) {
		return RequestOrigin{}, NewError("resolve origin", ErrOriginNotAllowed)
	}

	rpID := originHostname(origin)
	if rpID == "" {
		rpID = r.config.DefaultRPID
	}
	if rpID == "" {
		rpID = forwardedHostname(req)
	}
	if rpID == "" {
		return RequestOrigin{}, NewError("resolve origin", ErrRPIDNotConfigured)
	}

	return RequestOrigin{Origin: origin, RPID: rpID}, nil
}

// Allowed reports whether the origin passes the allow-list or the
// wildcard suffix policy.
func (r *OriginResolver) Allowed(origin string) bool {
	for _, allowed := range r.config.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}

	if len(r.config.OriginSuffixes) == 0 {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, suffix := range r.config.OriginSuffixes {
		if strings.HasSuffix(host, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// originHostname extracts the hostname of an origin, or "" when the
// origin has none (for example the opaque origin "null").
func originHostname(origin string) string {
	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// forwardedHostname derives a hostname from the forwarded host or the
// request host, with any port stripped.
func forwardedHostname(req *http.Request) string {
	host := strings.TrimSpace(req.Header.Get("X-Forwarded-Host"))
	if idx := strings.IndexByte(host, ','); idx >= 0 {
		host = strings.TrimSpace(host[:idx])
	}
	if host == "" {
		host = req.Host
	}
	if host == "" {
		return ""
	}
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		return strings.ToLower(hostname)
	}
	return strings.ToLower(host)
}
