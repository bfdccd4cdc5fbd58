package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})

	require.NoError(t, b.Allow())
	b.Failure()
	b.Failure()
	assert.Equal(t, BreakerClosed, b.State())

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2})

	b.Failure()
	b.Success()
	b.Failure()

	// Two non-consecutive failures must not open the circuit
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	b.Failure()
	require.Equal(t, BreakerOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	time.Sleep(20 * time.Millisecond)

	// Cooldown elapsed, probe request allowed
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Millisecond})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.Success()
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.Success()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_FailureInHalfOpenReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, BreakerHalfOpen, b.State())

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})

	b.Failure()
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(99).String())
}
