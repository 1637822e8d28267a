package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) Record(ctx context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func TestAuditAuthMiddleware(t *testing.T) {
	sink := &memorySink{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMiddleware(Config{Sink: sink, Now: func() time.Time { return now }})

	tokenAuth := jwtauth.New("HS256", []byte("audit-test-secret"), nil)
	_, token, err := tokenAuth.Encode(map[string]interface{}{
		"sub":        "42",
		"actor_type": "admin",
		"ctx":        "admin",
	})
	require.NoError(t, err)

	handler := jwtauth.Verifier(tokenAuth)(m.AuditAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})))

	req := httptest.NewRequest(http.MethodPost, "/admin/me/mfa/authenticator/confirm", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, "portal-mfa", e.Source)
	assert.Equal(t, "admin:42", e.Actor)
	assert.Equal(t, "admin", e.Context)
	assert.Equal(t, http.MethodPost, e.Method)
	assert.Equal(t, "/admin/me/mfa/authenticator/confirm", e.URI)
	assert.Equal(t, http.StatusUnprocessableEntity, e.Status)
	assert.Equal(t, now, e.Timestamp)
	assert.Empty(t, e.Message)
}

func TestAuditWithoutToken(t *testing.T) {
	sink := &memorySink{}
	m := NewMiddleware(Config{Sink: sink})

	handler := m.AuditAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me/mfa", nil))

	require.Len(t, sink.events, 1)
	assert.Equal(t, "No jwt token", sink.events[0].Message)
	assert.Equal(t, http.StatusOK, sink.events[0].Status)
	assert.Empty(t, sink.events[0].Actor)
}
