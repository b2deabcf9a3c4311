package identity

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Phone == user.Phone {
			return ErrUserExists
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Phone == phone {
			return clone(user), nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return clone(user), nil
}

func (r *memoryRepository) UpdateDevice(_ context.Context, id, deviceID string) error {
	return r.mutate(id, func(u *User) { u.DeviceID = deviceID })
}

func (r *memoryRepository) SetVerificationCode(_ context.Context, id string, hash []byte, expiresAt time.Time) error {
	return r.mutate(id, func(u *User) {
		u.CodeHash = slices.Clone(hash)
		u.CodeExpiresAt = expiresAt.UTC()
	})
}

func (r *memoryRepository) MarkVerified(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(u *User) {
		u.Verified = true
		u.VerifiedAt = at.UTC()
		u.CodeHash = nil
		u.CodeExpiresAt = time.Time{}
	})
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return r.mutate(id, func(u *User) { u.TokenVersion = version })
}

func (r *memoryRepository) mutate(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	r.users[id] = user
	return nil
}

func clone(u User) User {
	u.PINHash = slices.Clone(u.PINHash)
	u.CodeHash = slices.Clone(u.CodeHash)
	return u
}
