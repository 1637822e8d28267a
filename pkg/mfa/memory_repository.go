package mfa

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process memory. It backs tests and
// single-node deployments and is the storage engine of FileRepository.
type MemoryRepository struct {
	mutex      sync.RWMutex
	profiles   map[ActorRef]Profile
	factors    map[uuid.UUID]Factor
	challenges map[uuid.UUID]Challenge

	// persist runs under the write lock after every mutation. A failed
	// persist rolls the mutation back.
	persist func() error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles:   make(map[ActorRef]Profile),
		factors:    make(map[uuid.UUID]Factor),
		challenges: make(map[uuid.UUID]Challenge),
	}
}

func (r *MemoryRepository) commit() error {
	if r.persist == nil {
		return nil
	}
	if err := r.persist(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// FindProfile retrieves the profile of an actor
func (r *MemoryRepository) FindProfile(ctx context.Context, actor ActorRef) (*Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.profiles[actor]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

func (r *MemoryRepository) FirstOrCreateProfile(ctx context.Context, actor ActorRef, now time.Time) (*Profile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if p, ok := r.profiles[actor]; ok {
		return cloneProfile(p), nil
	}
	p := Profile{
		ID:        uuid.New(),
		Actor:     actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.profiles[actor] = p
	if err := r.commit(); err != nil {
		delete(r.profiles, actor)
		return nil, err
	}
	return cloneProfile(p), nil
}

func (r *MemoryRepository) SaveProfile(ctx context.Context, profile *Profile) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if existing, ok := r.profiles[profile.Actor]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	}
	prev, had := r.profiles[profile.Actor]
	r.profiles[profile.Actor] = *cloneProfile(*profile)
	if err := r.commit(); err != nil {
		if had {
			r.profiles[profile.Actor] = prev
		} else {
			delete(r.profiles, profile.Actor)
		}
		return err
	}
	return nil
}

// ListFactors retrieves all factors of an actor, primary first
func (r *MemoryRepository) ListFactors(ctx context.Context, actor ActorRef) ([]Factor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var factors []Factor
	for _, f := range r.factors {
		if f.Actor == actor {
			factors = append(factors, *cloneFactor(f))
		}
	}
	sortFactors(factors)
	return factors, nil
}

func (r *MemoryRepository) FindFactor(ctx context.Context, actor ActorRef, driver string) (*Factor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, f := range r.factors {
		if f.Actor == actor && f.Driver == driver {
			return cloneFactor(f), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindFactorByID(ctx context.Context, id uuid.UUID) (*Factor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	f, ok := r.factors[id]
	if !ok {
		return nil, nil
	}
	return cloneFactor(f), nil
}

func (r *MemoryRepository) SaveFactor(ctx context.Context, factor *Factor) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, f := range r.factors {
		if f.Actor != factor.Actor || f.Driver != factor.Driver {
			continue
		}
		if factor.ID != uuid.Nil && factor.ID != id {
			return fmt.Errorf("factor %s already exists for %s", factor.Driver, factor.Actor)
		}
		factor.ID = id
		factor.CreatedAt = f.CreatedAt
	}
	if factor.ID == uuid.Nil {
		factor.ID = uuid.New()
	}
	prev, had := r.factors[factor.ID]
	r.factors[factor.ID] = *cloneFactor(*factor)
	if err := r.commit(); err != nil {
		if had {
			r.factors[factor.ID] = prev
		} else {
			delete(r.factors, factor.ID)
		}
		return err
	}
	return nil
}

func (r *MemoryRepository) ClearPrimary(ctx context.Context, actor ActorRef) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev := maps.Clone(r.factors)
	for id, f := range r.factors {
		if f.Actor == actor && f.IsPrimary {
			f.IsPrimary = false
			r.factors[id] = f
		}
	}
	if err := r.commit(); err != nil {
		r.factors = prev
		return err
	}
	return nil
}

func (r *MemoryRepository) CreateChallenge(ctx context.Context, challenge *Challenge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, c := range r.challenges {
		if c.TokenHash == challenge.TokenHash {
			return fmt.Errorf("challenge token hash already exists")
		}
	}
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	r.challenges[challenge.ID] = *cloneChallenge(*challenge)
	if err := r.commit(); err != nil {
		delete(r.challenges, challenge.ID)
		return err
	}
	return nil
}

func (r *MemoryRepository) FindChallengeByID(ctx context.Context, id uuid.UUID) (*Challenge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, nil
	}
	return cloneChallenge(c), nil
}

func (r *MemoryRepository) FindChallengeByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, c := range r.challenges {
		if c.TokenHash == tokenHash {
			return cloneChallenge(c), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindPendingChallenge(ctx context.Context, tokenHash, context, purpose string, now time.Time) (*Challenge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, c := range r.challenges {
		if c.TokenHash == tokenHash && c.Context == context && c.Purpose == purpose && c.IsPending(now) {
			return cloneChallenge(c), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) SaveChallenge(ctx context.Context, challenge *Challenge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, ok := r.challenges[challenge.ID]
	if !ok {
		return ErrChallengeNotFound
	}
	next := *cloneChallenge(*challenge)
	// terminal timestamps are never cleared
	if stored.CompletedAt != nil {
		next.CompletedAt = stored.CompletedAt
	}
	if stored.InvalidatedAt != nil {
		next.InvalidatedAt = stored.InvalidatedAt
	}
	r.challenges[challenge.ID] = next
	if err := r.commit(); err != nil {
		r.challenges[challenge.ID] = stored
		return err
	}
	return nil
}

func (r *MemoryRepository) InvalidateOpenChallenges(ctx context.Context, actor ActorRef, driver, purpose string, now time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev := maps.Clone(r.challenges)
	var n int64
	for id, c := range r.challenges {
		if c.Actor != actor || c.Driver != driver || c.Purpose != purpose {
			continue
		}
		if c.CompletedAt != nil || c.InvalidatedAt != nil {
			continue
		}
		at := now
		c.InvalidatedAt = &at
		c.UpdatedAt = now
		r.challenges[id] = c
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := r.commit(); err != nil {
		r.challenges = prev
		return 0, err
	}
	return n, nil
}

func (r *MemoryRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, now time.Time) (*Challenge, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, ok := r.challenges[id]
	if !ok || !prev.IsPending(now) {
		return nil, ErrChallengeNotFound
	}
	c := prev
	c.Attempts++
	if c.Attempts >= c.MaxAttempts {
		at := now
		c.InvalidatedAt = &at
	}
	c.UpdatedAt = now
	r.challenges[id] = c
	if err := r.commit(); err != nil {
		r.challenges[id] = prev
		return nil, err
	}
	return cloneChallenge(c), nil
}

func (r *MemoryRepository) CompleteChallenge(ctx context.Context, id uuid.UUID, now time.Time) (*Challenge, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, ok := r.challenges[id]
	if !ok || !prev.IsPending(now) {
		return nil, ErrChallengeNotFound
	}
	c := prev
	at := now
	c.CompletedAt = &at
	c.UpdatedAt = now
	r.challenges[id] = c
	if err := r.commit(); err != nil {
		r.challenges[id] = prev
		return nil, err
	}
	return cloneChallenge(c), nil
}

func (r *MemoryRepository) PruneChallenges(ctx context.Context, before time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev := maps.Clone(r.challenges)
	var n int64
	for id, c := range r.challenges {
		if c.ExpiresAt.Before(before) {
			delete(r.challenges, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := r.commit(); err != nil {
		r.challenges = prev
		return 0, err
	}
	return n, nil
}

func sortFactors(factors []Factor) {
	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].IsPrimary != factors[j].IsPrimary {
			return factors[i].IsPrimary
		}
		return factors[i].Driver < factors[j].Driver
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneProfile(p Profile) *Profile {
	if p.PreferredDriver != nil {
		v := *p.PreferredDriver
		p.PreferredDriver = &v
	}
	p.Settings = maps.Clone(p.Settings)
	return &p
}

func cloneFactor(f Factor) *Factor {
	if f.LastCounter != nil {
		v := *f.LastCounter
		f.LastCounter = &v
	}
	f.VerifiedAt = cloneTime(f.VerifiedAt)
	f.LastUsedAt = cloneTime(f.LastUsedAt)
	return &f
}

func cloneChallenge(c Challenge) *Challenge {
	c.LastSentAt = cloneTime(c.LastSentAt)
	c.CompletedAt = cloneTime(c.CompletedAt)
	c.InvalidatedAt = cloneTime(c.InvalidatedAt)
	c.Payload = maps.Clone(c.Payload)
	c.Meta = maps.Clone(c.Meta)
	return &c
}
