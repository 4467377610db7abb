package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newLoginRateLimiter()

	// Under the threshold, requests should not be blocked.
	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("acct-1")
		blocked, _ := rl.check("acct-1")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestRateLimiter_BlocksAfterThreshold(t *testing.T) {
	rl := newLoginRateLimiter()

	// Reach and exceed the threshold.
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("acct-1")
	}

	blocked, retryAfter := rl.check("acct-1")
	require.True(t, blocked, "should block after maxFailures")
	assert.Greater(t, retryAfter, time.Duration(0), "retry-after should be positive")
}

func TestRateLimiter_ExponentialBackoff(t *testing.T) {
	rl := newLoginRateLimiter()

	// Hit the threshold.
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("acct-1")
	}
	_, first := rl.check("acct-1")

	// One more failure should double the lockout.
	rl.recordFailure("acct-1")
	_, second := rl.check("acct-1")
	assert.Greater(t, second, first, "lockout should increase with more failures")
}

func TestRateLimiter_MaxLockoutCap(t *testing.T) {
	rl := newLoginRateLimiter()

	// Add many failures to hit the cap.
	for i := 0; i < maxFailures+20; i++ {
		rl.recordFailure("acct-1")
	}

	_, retryAfter := rl.check("acct-1")
	assert.LessOrEqual(t, retryAfter, maxLockout+time.Second, "lockout should not exceed maxLockout")
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl := newLoginRateLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("acct-1")
	}
	blocked, _ := rl.check("acct-1")
	require.True(t, blocked)

	// A successful login should clear the state.
	rl.recordSuccess("acct-1")

	blocked, _ = rl.check("acct-1")
	assert.False(t, blocked, "should not block after successful login")
}

func TestRateLimiter_IsolatesAccounts(t *testing.T) {
	rl := newLoginRateLimiter()

	// Lock out acct-1.
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("acct-1")
	}
	blocked, _ := rl.check("acct-1")
	require.True(t, blocked)

	// acct-2 should be unaffected.
	blocked, _ = rl.check("acct-2")
	assert.False(t, blocked, "rate limit for one account should not affect another")
}

func TestRateLimiter_UnknownAccountNotBlocked(t *testing.T) {
	rl := newLoginRateLimiter()

	blocked, _ := rl.check("unknown")
	assert.False(t, blocked)
}

func TestRateLimiter_CheckExpiresStaleRecord(t *testing.T) {
	rl := newLoginRateLimiter()

	rl.mu.Lock()
	rl.attempts["old"] = &attemptRecord{
		failures:    maxFailures + 1,
		lastFailure: time.Now().Add(-2 * attemptExpiry),
		lockedUntil: time.Now().Add(-attemptExpiry),
	}
	rl.mu.Unlock()

	blocked, _ := rl.check("old")
	assert.False(t, blocked, "expired record should not block")

	rl.mu.Lock()
	_, exists := rl.attempts["old"]
	rl.mu.Unlock()
	assert.False(t, exists, "check should reclaim the expired record")
}

func TestRateLimiter_SweepRemovesExpired(t *testing.T) {
	rl := newLoginRateLimiter()

	// Stale records for accounts that are never checked again only go away
	// via the sweep.
	rl.mu.Lock()
	for _, id := range []string{"old-1", "old-2", "old-3"} {
		rl.attempts[id] = &attemptRecord{
			failures:    maxFailures + 1,
			lastFailure: time.Now().Add(-2 * attemptExpiry),
			lockedUntil: time.Now().Add(-attemptExpiry),
		}
	}
	rl.attempts["fresh"] = &attemptRecord{
		failures:    1,
		lastFailure: time.Now(),
	}
	rl.mu.Unlock()

	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.attempts, 1, "sweep should remove all expired records")
	_, exists := rl.attempts["fresh"]
	assert.True(t, exists, "sweep should keep live records")
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 90*time.Second)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestRetryAfterString_MinimumOneSecond(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(200*time.Millisecond))
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "5", retryAfterString(5*time.Second))
}
