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

// Package http exposes the ceremony orchestrator over a single JSON
// endpoint.
//
// All five operations arrive as POST bodies of the form
//
//	{"operation": "...", "uid": "...", "username": "...", "response": {...}}
//
// and are dispatched as a tagged union into typed requests. OPTIONS
// preflight requests return 204. The Origin header is validated before
// any request state is read or written; registration operations
// additionally require an Authorization bearer whose subject matches the
// resolved account id.
//
// Mounting on a chi router:
//
//	handler := passkeyhttp.NewHandler(svc, resolver, bridge)
//	r.Route("/api/passkeys", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
package http
