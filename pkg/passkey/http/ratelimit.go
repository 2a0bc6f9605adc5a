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
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleEvict is how long an account limiter may sit unused before an
// Allow call may prune it.
const idleEvict = 10 * time.Minute

type accountLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per account. Idle buckets are
// pruned opportunistically on Allow, so there is no background
// goroutine to manage.
type rateLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	accounts map[string]*accountLimiter
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		accounts: make(map[string]*accountLimiter),
	}
}

// Allow reports whether a request for the given account may proceed.
func (rl *rateLimiter) Allow(accountID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	al, ok := rl.accounts[accountID]
	if !ok {
		rl.prune(now)
		al = &accountLimiter{limiter: rate.NewLimiter(rl.perSec, rl.burst)}
		rl.accounts[accountID] = al
	}
	al.lastSeen = now
	return al.limiter.Allow()
}

// prune drops buckets that have been idle longer than idleEvict.
// Caller must hold mu.
func (rl *rateLimiter) prune(now time.Time) {
	for id, al := range rl.accounts {
		if now.Sub(al.lastSeen) > idleEvict {
			delete(rl.accounts, id)
		}
	}
}
