// Package actor is a small account store backing the MFA login flow: it
// resolves consumers and admins by reference or email and checks their
// bcrypt password hashes.
package actor

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

// Record is a stored account.
type Record struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// dummyHash keeps unknown-account checks as slow as real ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("portal-mfa-dummy-password"), bcrypt.MinCost)

// Directory implements mfa.ActorDirectory and mfa.PasswordVerifier in memory.
type Directory struct {
	mu      sync.RWMutex
	records map[mfa.ActorRef]Record
}

var (
	_ mfa.ActorDirectory   = (*Directory)(nil)
	_ mfa.PasswordVerifier = (*Directory)(nil)
)

func NewDirectory() *Directory {
	return &Directory{records: make(map[mfa.ActorRef]Record)}
}

// LoadFile reads a JSON array of records.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actors file: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actors file: %w", err)
	}

	d := NewDirectory()
	for _, r := range records {
		if err := d.Add(r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add stores or replaces a record. The actor type is normalised to a context.
func (d *Directory) Add(r Record) error {
	if r.ID == "" {
		return errors.New("actor id is required")
	}
	r.Type = mfa.NormalizeContext(r.Type)
	r.Email = utils.NormalizeEmail(r.Email)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[mfa.ActorRef{Type: r.Type, ID: r.ID}] = r
	return nil
}

func (d *Directory) FindActor(ctx context.Context, ref mfa.ActorRef) (*mfa.Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.records[ref]
	if !ok {
		return nil, nil
	}
	return toActor(r), nil
}

func (d *Directory) FindActorByEmail(ctx context.Context, context, email string) (*mfa.Actor, error) {
	context = mfa.NormalizeContext(context)
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.records {
		if r.Type == context && r.Email == email {
			return toActor(r), nil
		}
	}
	return nil, nil
}

func (d *Directory) VerifyPassword(ctx context.Context, actor mfa.Actor, password string) (bool, error) {
	d.mu.RLock()
	r, ok := d.records[actor.Ref()]
	d.mu.RUnlock()

	hash := dummyHash
	if ok && r.PasswordHash != "" {
		hash = []byte(r.PasswordHash)
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Count returns how many records belong to context.
func (d *Directory) Count(context string) int {
	context = mfa.NormalizeContext(context)

	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, r := range d.records {
		if r.Type == context {
			n++
		}
	}
	return n
}

// SaveFile writes every record to path as a JSON array, replacing the file
// atomically.
func (d *Directory) SaveFile(path string) error {
	d.mu.RLock()
	records := make([]Record, 0, len(d.records))
	for _, r := range d.records {
		records = append(records, r)
	}
	d.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Type != records[j].Type {
			return records[i].Type < records[j].Type
		}
		return records[i].ID < records[j].ID
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal actors: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create actors directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write actors file: %w", err)
	}
	return os.Rename(tmp, path)
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$%^&*-_=+"

// GeneratePassword returns a random password of length characters.
func GeneratePassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}
	limit := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}

// HashPassword returns a bcrypt hash suitable for Record.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func toActor(r Record) *mfa.Actor {
	return &mfa.Actor{Type: r.Type, ID: r.ID, Email: r.Email}
}
