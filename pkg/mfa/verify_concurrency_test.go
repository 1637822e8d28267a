package mfa

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentVerifyMemory(t *testing.T) {
	testConcurrentVerify(t, func(t *testing.T) Repository { return NewMemoryRepository() })
}

func TestConcurrentVerifyFile(t *testing.T) {
	testConcurrentVerify(t, func(t *testing.T) Repository {
		repo, err := NewFileRepository(t.TempDir())
		require.NoError(t, err)
		return repo
	})
}

// testConcurrentVerify races verifications of one email OTP login challenge.
func testConcurrentVerify(t *testing.T, newRepo func(t *testing.T) Repository) {
	start := func(t *testing.T) (*harness, string, string) {
		t.Helper()
		h := newHarnessOn(t, newRepo(t))
		h.enrollEmailOtp(t, alice)
		h.optIn(t, alice)

		payload, err := h.challenges.CreateLoginChallenge(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		return h, payload["challenge_token"].(string), h.sender.last(t).code
	}

	t.Run("wrong codes stop at the attempt ceiling", func(t *testing.T) {
		h, token, code := start(t)
		maxAttempts := h.challengeByToken(t, token).MaxAttempts
		require.Equal(t, h.cfg.EmailOtp.MaxAttempts, maxAttempts)

		n := maxAttempts + 7
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.challenges.VerifyLoginChallenge(ctx, ContextConsumer, token, wrongCode(code))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		invalid, exhausted := 0, 0
		for err := range errs {
			switch {
			case errors.Is(err, ErrInvalidCode):
				invalid++
			case errors.Is(err, ErrAttemptsExhausted):
				exhausted++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, maxAttempts, invalid)
		assert.Equal(t, n-maxAttempts, exhausted)

		c := h.challengeByToken(t, token)
		assert.Equal(t, maxAttempts, c.Attempts)
		assert.NotNil(t, c.InvalidatedAt)
		assert.Nil(t, c.CompletedAt)

		_, err := h.challenges.VerifyLoginChallenge(ctx, ContextConsumer, token, code)
		assert.True(t, errors.Is(err, ErrAttemptsExhausted))
	})

	t.Run("a correct code completes once", func(t *testing.T) {
		h, token, code := start(t)

		const n = 2
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.challenges.VerifyLoginChallenge(ctx, ContextConsumer, token, code)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errors.Is(err, ErrChallengeNotFound), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		verified := 0
		for _, name := range h.events.names() {
			if name == EventChallengeVerified {
				verified++
			}
		}
		assert.Equal(t, 1, verified)

		c := h.challengeByToken(t, token)
		assert.NotNil(t, c.CompletedAt)
		assert.Zero(t, c.Attempts)
	})
}
