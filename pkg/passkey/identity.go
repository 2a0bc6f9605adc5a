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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig configures the default JWT identity bridge.
type TokenConfig struct {
	// Secret is the HMAC signing secret (required).
	Secret []byte

	// Issuer is the JWT issuer claim (default: "passkeyd").
	Issuer string

	// Audience is the JWT audience claim (default: "passkeyd").
	Audience string

	// TTL is how long tokens are valid (default: 1 hour).
	TTL time.Duration
}

// JWTIdentityBridge is the default IdentityBridge. It mints and verifies
// HS256 JWTs and resolves emails through a Directory. Deployments with a
// separate identity service implement IdentityBridge against it instead.
type JWTIdentityBridge struct {
	directory Directory
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTIdentityBridge creates a bridge with the given configuration.
// The directory may be nil, in which case email identifiers always fail
// with ErrAccountNotFound.
func NewJWTIdentityBridge(config *TokenConfig, directory Directory) (*JWTIdentityBridge, error) {
	if config == nil {
		return nil, fmt.Errorf("token config is required")
	}
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "passkeyd"
	}
	audience := config.Audience
	if audience == "" {
		audience = "passkeyd"
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = time.Hour
	}

	return &JWTIdentityBridge{
		directory: directory,
		secret:    config.Secret,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// ResolveAccountID maps an identifier to a canonical account id. An
// identifier containing no "@" is treated as an account id already.
func (b *JWTIdentityBridge) ResolveAccountID(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", NewError("resolve account", ErrInvalidRequest)
	}
	if !strings.Contains(identifier, "@") {
		return identifier, nil
	}
	if b.directory == nil {
		return "", NewError("resolve account", ErrAccountNotFound)
	}
	accountID, err := b.directory.AccountIDByEmail(ctx, strings.ToLower(identifier))
	if err != nil {
		return "", WrapError("resolve account", err)
	}
	return accountID, nil
}

// IssueToken mints a bearer token for the account.
func (b *JWTIdentityBridge) IssueToken(ctx context.Context, accountID string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", NewError("issue token", ErrInvalidRequest)
	}

	now := b.now().UTC()
	claims := jwt.MapClaims{
		"iss": b.issuer,
		"aud": b.audience,
		"sub": accountID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(b.ttl).Unix(),
		"jti": uuid.NewString(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", WrapError("issue token", err)
	}
	return token, nil
}

// VerifyToken validates a bearer token and returns its subject.
func (b *JWTIdentityBridge) VerifyToken(ctx context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return b.secret, nil
	},
		jwt.WithIssuer(b.issuer),
		jwt.WithAudience(b.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return b.now().UTC() }),
	)
	if err != nil {
		return "", WrapError("verify token", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", NewError("verify token", fmt.Errorf("token has no subject"))
	}
	return subject, nil
}

// MemoryDirectory is an in-memory Directory for development and testing.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]string
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byEmail: make(map[string]string)}
}

// Add registers an email to account id mapping.
func (d *MemoryDirectory) Add(email, accountID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[strings.ToLower(email)] = accountID
}

// AccountIDByEmail returns the account id for an email.
func (d *MemoryDirectory) AccountIDByEmail(ctx context.Context, email string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	accountID, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return "", ErrAccountNotFound
	}
	return accountID, nil
}
