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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		origin     string
		forwarded  string
		host       string
		wantOrigin string
		wantRPID   string
		wantErr    error
	}{
		{
			name: "exact allow-list match",
			config: Config{
				AllowedOrigins: []string{"https://example.com"},
			},
			origin:     "https://example.com",
			wantOrigin: "https://example.com",
			wantRPID:   "example.com",
		},
		{
			name: "allow-list match is case insensitive",
			config: Config{
				AllowedOrigins: []string{"https://example.com"},
			},
			origin:     "https://EXAMPLE.com",
			wantOrigin: "https://EXAMPLE.com",
			wantRPID:   "example.com",
		},
		{
			name: "missing origin header",
			config: Config{
				AllowedOrigins: []string{"https://example.com"},
			},
			origin:  "",
			wantErr: ErrOriginNotAllowed,
		},
		{
			name: "unlisted origin",
			config: Config{
				AllowedOrigins: []string{"https://example.com"},
			},
			origin:  "https://evil.test",
			wantErr: ErrOriginNotAllowed,
		},
		{
			name: "wildcard suffix match",
			config: Config{
				OriginSuffixes: []string{".preview.example.com"},
			},
			origin:     "https://pr-42.preview.example.com",
			wantOrigin: "https://pr-42.preview.example.com",
			wantRPID:   "pr-42.preview.example.com",
		},
		{
			name: "wildcard requires https",
			config: Config{
				OriginSuffixes: []string{".preview.example.com"},
			},
			origin:  "http://pr-42.preview.example.com",
			wantErr: ErrOriginNotAllowed,
		},
		{
			name: "exact allow-list entry may be http",
			config: Config{
				AllowedOrigins: []string{"http://localhost:3000"},
				DefaultRPID:    "localhost",
			},
			origin:     "http://localhost:3000",
			wantOrigin: "http://localhost:3000",
			wantRPID:   "localhost",
		},
		{
			name: "opaque origin falls back to default rpid",
			config: Config{
				AllowedOrigins: []string{"null"},
				DefaultRPID:    "example.com",
			},
			origin:     "null",
			wantOrigin: "null",
			wantRPID:   "example.com",
		},
		{
			name: "opaque origin falls back to forwarded host",
			config: Config{
				AllowedOrigins: []string{"null"},
			},
			origin:     "null",
			forwarded:  "rp.example.com:8443, proxy.internal",
			wantOrigin: "null",
			wantRPID:   "rp.example.com",
		},
		{
			name: "opaque origin falls back to request host",
			config: Config{
				AllowedOrigins: []string{"null"},
			},
			origin:     "null",
			host:       "rp.example.com:8443",
			wantOrigin: "null",
			wantRPID:   "rp.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewOriginResolver(&tt.config)

			req := httptest.NewRequest("POST", "/ceremony", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Host", tt.forwarded)
			}

			got, err := resolver.Resolve(req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrigin, got.Origin)
			assert.Equal(t, tt.wantRPID, got.RPID)
		})
	}
}

func TestOriginResolver_Allowed(t *testing.T) {
	resolver := NewOriginResolver(&Config{
		AllowedOrigins: []string{"https://example.com"},
		OriginSuffixes: []string{".apps.example.com"},
	})

	assert.True(t, resolver.Allowed("https://example.com"))
	assert.True(t, resolver.Allowed("https://demo.apps.example.com"))
	assert.False(t, resolver.Allowed("http://demo.apps.example.com"))
	assert.False(t, resolver.Allowed("https://example.com.evil.test"))
	assert.False(t, resolver.Allowed(""))
}
