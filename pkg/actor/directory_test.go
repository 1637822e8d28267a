package actor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()
	require.NoError(t, d.Add(Record{Type: "consumer", ID: "1", Email: " Dev@Example.com", PasswordHash: hash(t, "hunter2")}))
	require.NoError(t, d.Add(Record{Type: "ADMIN", ID: "1", Email: "dev@example.com", PasswordHash: hash(t, "root-pass")}))
	assert.Error(t, d.Add(Record{Type: "consumer"}))

	consumer, err := d.FindActorByEmail(ctx, "consumer", "dev@example.com")
	require.NoError(t, err)
	require.NotNil(t, consumer)
	assert.Equal(t, mfa.Actor{Type: mfa.ContextConsumer, ID: "1", Email: "dev@example.com"}, *consumer)

	admin, err := d.FindActorByEmail(ctx, "admin", "DEV@example.com")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, mfa.ContextAdmin, admin.Type)

	missing, err := d.FindActorByEmail(ctx, "consumer", "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byRef, err := d.FindActor(ctx, mfa.ActorRef{Type: mfa.ContextAdmin, ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", byRef.Email)

	ok, err := d.VerifyPassword(ctx, *consumer, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.VerifyPassword(ctx, *consumer, "root-pass")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.VerifyPassword(ctx, mfa.Actor{Type: mfa.ContextConsumer, ID: "404"}, "portal-mfa-dummy-password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	records := []Record{
		{Type: "consumer", ID: "10", Email: "a@example.com", PasswordHash: hash(t, "pw")},
		{Type: "admin", ID: "20", Email: "b@example.com", PasswordHash: hash(t, "pw")},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "actors.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	d, err := LoadFile(path)
	require.NoError(t, err)

	a, err := d.FindActor(context.Background(), mfa.ActorRef{Type: mfa.ContextAdmin, ID: "20"})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "b@example.com", a.Email)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)

	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret")))
}

func TestCountAndSaveFile(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add(Record{Type: "consumer", ID: "2", Email: "b@example.com"}))
	require.NoError(t, d.Add(Record{Type: "consumer", ID: "1", Email: "a@example.com"}))
	require.NoError(t, d.Add(Record{Type: "admin", ID: "9", Email: "root@example.com"}))

	assert.Equal(t, 2, d.Count("consumer"))
	assert.Equal(t, 1, d.Count("admin"))

	path := filepath.Join(t.TempDir(), "nested", "actors.json")
	require.NoError(t, d.SaveFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)
	assert.Equal(t, "admin", records[0].Type)
	assert.Equal(t, "1", records[1].ID)
	assert.Equal(t, "2", records[2].ID)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count("consumer"))
}

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword(20)
	require.NoError(t, err)
	assert.Len(t, p, 20)

	short, err := GeneratePassword(3)
	require.NoError(t, err)
	assert.Len(t, short, 8)

	other, err := GeneratePassword(20)
	require.NoError(t, err)
	assert.NotEqual(t, p, other)
}
