package goGuard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process AccountStore for tests, tools and single-node
// deployments. Records are deep-copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// WithClock sets the clock used for UpdatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

// FindByEmail returns a copy of the account registered under email.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id].Clone(), nil
}

// FindByID returns a copy of the account with id.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

// Create stores a copy of user. The email must not be in use.
func (s *MemoryStore) Create(ctx context.Context, user *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil || user.ID == "" || user.Email == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return ErrAccountExists
	}
	if _, ok := s.byID[user.ID]; ok {
		return ErrAccountExists
	}
	s.byID[user.ID] = user.Clone()
	s.byEmail[user.Email] = user.ID
	return nil
}

// Update applies patch to the account under the store lock, after checking
// its precondition.
func (s *MemoryStore) Update(ctx context.Context, id string, patch UserPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	if !patch.Precondition.Matches(u) {
		return ErrPatchConflict
	}
	patch.Apply(u, s.now())
	return nil
}

// List returns up to limit accounts ordered by creation time, then id.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ConsumeBackupCode removes hash from the account's backup codes and reports
// whether it was present.
func (s *MemoryStore) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return false, ErrUserNotFound
	}
	for i, h := range u.MFABackupCodes {
		if h == hash {
			u.MFABackupCodes = append(u.MFABackupCodes[:i:i], u.MFABackupCodes[i+1:]...)
			u.UpdatedAt = s.now()
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
