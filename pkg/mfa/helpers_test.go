package mfa

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
	"github.com/ninjaportal/portal-mfa/pkg/secretbox"
	"github.com/ninjaportal/portal-mfa/pkg/tokenhash"
	"github.com/ninjaportal/portal-mfa/pkg/totp"
)

var ctx = context.Background()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubDirectory struct {
	actors    map[ActorRef]Actor
	passwords map[ActorRef]string
}

func newStubDirectory(actors ...Actor) *stubDirectory {
	d := &stubDirectory{actors: map[ActorRef]Actor{}, passwords: map[ActorRef]string{}}
	for _, a := range actors {
		d.actors[a.Ref()] = a
		d.passwords[a.Ref()] = "secret-password"
	}
	return d
}

func (d *stubDirectory) FindActor(ctx context.Context, ref ActorRef) (*Actor, error) {
	a, ok := d.actors[ref]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (d *stubDirectory) FindActorByEmail(ctx context.Context, context, email string) (*Actor, error) {
	for _, a := range d.actors {
		if a.Type == context && a.Email == email {
			return &a, nil
		}
	}
	return nil, nil
}

func (d *stubDirectory) VerifyPassword(ctx context.Context, actor Actor, password string) (bool, error) {
	return d.passwords[actor.Ref()] == password, nil
}

type stubIssuer struct {
	issued []Actor
}

func (i *stubIssuer) IssueTokens(ctx context.Context, actor Actor, context string) (Payload, error) {
	i.issued = append(i.issued, actor)
	return Payload{"token_type": "Bearer", "access_token": "access-" + actor.ID}, nil
}

type sentCode struct {
	email   string
	code    string
	ttl     time.Duration
	purpose string
}

type captureSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *captureSender) SendCode(ctx context.Context, email, code string, ttl time.Duration, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentCode{email: email, code: code, ttl: ttl, purpose: purpose})
	return nil
}

func (s *captureSender) last(t *testing.T) sentCode {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no code was sent")
	return s.sent[len(s.sent)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) HandleEvent(ctx context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventName())
	}
	return out
}

type harness struct {
	cfg        Config
	clock      *fakeClock
	repo       Repository
	directory  *stubDirectory
	issuer     *stubIssuer
	sender     *captureSender
	events     *eventLog
	challenges *ChallengeService
	profiles   *ProfileService
	factors    *FactorService
	flow       *AuthFlow
	prune      *PruneService
}

var (
	alice = Actor{Type: ContextConsumer, ID: "1", Email: "alice@example.com"}
	bob   = Actor{Type: ContextConsumer, ID: "2", Email: "bob@example.com"}
	root  = Actor{Type: ContextAdmin, ID: "1", Email: "root@example.com"}
)

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	return newHarnessOn(t, NewMemoryRepository(), mutate...)
}

func newHarnessOn(t *testing.T, repo Repository, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		cfg:       cfg,
		clock:     newFakeClock(),
		repo:      repo,
		directory: newStubDirectory(alice, bob, root),
		issuer:    &stubIssuer{},
		sender:    &captureSender{},
		events:    &eventLog{},
	}

	box, err := secretbox.New("test-application-key")
	require.NoError(t, err)

	opts := []Option{
		WithConfig(cfg),
		WithClock(h.clock.Now),
		WithEvents(NewDispatcher(h.events)),
	}
	drivers := NewRegistry(
		NewAuthenticatorDriver(box, opts...),
		NewEmailOtpDriver(h.sender, opts...),
	)
	h.challenges = NewChallengeService(h.repo, drivers, h.directory, h.issuer, opts...)
	h.profiles = NewProfileService(h.repo, opts...)
	h.factors = NewFactorService(h.repo, drivers, h.challenges, h.profiles, opts...)
	h.flow = NewAuthFlow(h.directory, h.directory, h.issuer, h.profiles, h.challenges, opts...)
	h.prune = NewPruneService(h.repo, opts...)
	return h
}

// enrollAuthenticator runs setup and confirmation and returns the secret.
// The clock is moved to the next time step so the confirmation code is
// not reused by the caller.
func (h *harness) enrollAuthenticator(t *testing.T, actor Actor) string {
	t.Helper()

	res, err := h.factors.BeginAuthenticatorEnrollment(ctx, actor, actor.Type, "")
	require.NoError(t, err)
	secret := res["setup"].(Payload)["secret"].(string)

	_, err = h.factors.ConfirmAuthenticatorEnrollment(ctx, actor, actor.Type, h.totpCode(t, secret))
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	return secret
}

func (h *harness) enrollEmailOtp(t *testing.T, actor Actor) {
	t.Helper()

	res, err := h.factors.BeginEmailOtpEnrollment(ctx, actor, actor.Type)
	require.NoError(t, err)
	token := res["challenge"].(Payload)["challenge_token"].(string)

	_, err = h.factors.ConfirmEmailOtpEnrollment(ctx, actor, actor.Type, token, h.sender.last(t).code)
	require.NoError(t, err)
}

func (h *harness) optIn(t *testing.T, actor Actor) {
	t.Helper()
	enabled := true
	_, err := h.profiles.UpdateSettings(ctx, actor, actor.Type, SettingsUpdate{IsEnabled: &enabled})
	require.NoError(t, err)
}

func (h *harness) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.CodeAt(secret, totp.Counter(h.clock.Now(), h.cfg.Authenticator.Period), h.cfg.Authenticator.Digits)
	require.NoError(t, err)
	return code
}

func (h *harness) challengeByToken(t *testing.T, token string) *Challenge {
	t.Helper()
	c, err := h.repo.FindChallengeByTokenHash(ctx, tokenhash.Hash(token))
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

// wrongCode returns a well-formed code that differs from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func requireMessage(t *testing.T, err error, field, message string) {
	t.Helper()
	var e *mfaerrors.Error
	require.True(t, errors.As(err, &e), "expected coded error, got %v", err)
	require.Equal(t, field, e.Field)
	require.Equal(t, message, e.Message)
}
