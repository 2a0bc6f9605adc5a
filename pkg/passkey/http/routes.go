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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the ceremony route on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc, resolver, bridge)
//	r.Route("/api/passkeys", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/ceremony", h.Ceremony)
	r.Options("/ceremony", h.Ceremony)
}

// MountStdlib mounts the ceremony route on a stdlib http.ServeMux.
// The prefix should not include a trailing slash.
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/ceremony", h.Ceremony)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the route entries for manual mounting on frameworks
// not directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/ceremony", Handler: h.Ceremony},
		{Method: "OPTIONS", Path: "/ceremony", Handler: h.Ceremony},
	}
}
