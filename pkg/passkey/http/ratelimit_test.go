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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstExhaustion(t *testing.T) {
	rl := newRateLimiter(0.01, 2)

	assert.True(t, rl.Allow("acct-1"))
	assert.True(t, rl.Allow("acct-1"))
	assert.False(t, rl.Allow("acct-1"))
}

func TestRateLimiter_AccountsIndependent(t *testing.T) {
	rl := newRateLimiter(0.01, 1)

	assert.True(t, rl.Allow("acct-1"))
	assert.False(t, rl.Allow("acct-1"))

	// A different account has its own bucket.
	assert.True(t, rl.Allow("acct-2"))
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	rl := newRateLimiter(1, 1)

	rl.Allow("acct-1")
	rl.Allow("acct-2")
	assert.Len(t, rl.accounts, 2)

	rl.mu.Lock()
	rl.accounts["acct-1"].lastSeen = time.Now().Add(-idleEvict - time.Minute)
	rl.mu.Unlock()

	// Creating a new bucket triggers the prune pass.
	rl.Allow("acct-3")
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.accounts, "acct-1")
	assert.Contains(t, rl.accounts, "acct-2")
	assert.Contains(t, rl.accounts, "acct-3")
}
