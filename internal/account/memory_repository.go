package account

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.AccountNumber == acct.AccountNumber {
			return ErrDuplicateAccountNumber
		}
		if existing.Status == StatusActive && existing.Email == acct.Email {
			return ErrEmailTaken
		}
	}
	r.accounts[acct.ID] = acct
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (r *memoryRepository) GetByNumber(_ context.Context, number string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if acct.AccountNumber == number {
			return acct, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if acct.Status == StatusActive && acct.Email == email {
			return acct, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) List(_ context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, acct := range r.accounts {
		if acct.Status == StatusActive {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AccountNumber < out[j].AccountNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepository) UpdateProfile(_ context.Context, id, name, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok || acct.Status != StatusActive {
		return ErrNotFound
	}
	for otherID, other := range r.accounts {
		if otherID != id && other.Status == StatusActive && other.Email == email {
			return ErrEmailTaken
		}
	}
	acct.Name, acct.Email, acct.UpdatedAt = name, email, at
	r.accounts[id] = acct
	return nil
}

func (r *memoryRepository) UpdatePassword(_ context.Context, id string, hash []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok || acct.Status != StatusActive {
		return ErrNotFound
	}
	acct.PasswordHash, acct.UpdatedAt = hash, at
	r.accounts[id] = acct
	return nil
}

func (r *memoryRepository) Close(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok || acct.Status != StatusActive {
		return ErrNotFound
	}
	acct.Status, acct.UpdatedAt = StatusClosed, at
	r.accounts[id] = acct
	return nil
}
