package mfa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrune(t *testing.T) {
	h := newHarness(t)
	h.enrollEmailOtp(t, alice)
	h.optIn(t, alice)

	_, err := h.challenges.CreateLoginChallenge(ctx, alice, ContextConsumer)
	require.NoError(t, err)

	// the enrollment and login challenges both expire after 5 minutes
	h.clock.Advance(24 * time.Hour)
	n, err := h.prune.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	h.clock.Advance(10 * time.Minute)
	n, err = h.prune.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = h.prune.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPruneConfigured(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Challenge.PruneAfterDays = 3 })
	h.enrollEmailOtp(t, alice)

	h.clock.Advance(2 * 24 * time.Hour)
	n, err := h.prune.PruneConfigured(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	h.clock.Advance(24*time.Hour + 10*time.Minute)
	n, err = h.prune.PruneConfigured(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPruneRunStopsWithContext(t *testing.T) {
	h := newHarness(t)
	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := h.prune.Run(runCtx, 10*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
