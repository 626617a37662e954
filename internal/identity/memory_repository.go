package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.Mutex
	byID    map[string]Identity
	byPhone map[string]string
}

// NewMemoryRepository builds an in-memory identity store for tests and local runs.
//
// Atomic holds one lock for the whole unit of work and stages writes until fn
// returns nil, so a failed unit leaves nothing behind.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]Identity), byPhone: make(map[string]string)}
}

func (r *memoryRepository) Create(ctx context.Context, identity Identity) error {
	return r.Atomic(ctx, func(ctx context.Context, tx Repository) error {
		return tx.Create(ctx, identity)
	})
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

func (r *memoryRepository) Update(ctx context.Context, identity Identity) error {
	return r.Atomic(ctx, func(ctx context.Context, tx Repository) error {
		return tx.Update(ctx, identity)
	})
}

func (r *memoryRepository) CountByRole(_ context.Context, role Role) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, identity := range r.byID {
		if identity.Role == role {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{repo: r, staged: make(map[string]Identity)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, identity := range tx.staged {
		r.byID[id] = identity
		r.byPhone[identity.Phone] = id
	}
	return nil
}

// memoryTx reads through staged writes; the parent lock is held by Atomic.
type memoryTx struct {
	repo   *memoryRepository
	staged map[string]Identity
}

func (t *memoryTx) lookupID(id string) (Identity, bool) {
	if identity, ok := t.staged[id]; ok {
		return identity, true
	}
	identity, ok := t.repo.byID[id]
	return identity, ok
}

func (t *memoryTx) Create(_ context.Context, identity Identity) error {
	if identity.ID == "" {
		return ErrInvalidInput
	}
	if _, ok := t.lookupID(identity.ID); ok {
		return ErrConflict
	}
	for _, staged := range t.staged {
		if staged.Phone == identity.Phone {
			return ErrConflict
		}
	}
	if _, ok := t.repo.byPhone[identity.Phone]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now
	t.staged[identity.ID] = identity
	return nil
}

func (t *memoryTx) FindByPhone(_ context.Context, phone string) (Identity, error) {
	for _, staged := range t.staged {
		if staged.Phone == phone {
			return staged, nil
		}
	}
	id, ok := t.repo.byPhone[phone]
	if !ok {
		return Identity{}, ErrNotFound
	}
	identity, _ := t.lookupID(id)
	return identity, nil
}

func (t *memoryTx) FindByID(_ context.Context, id string) (Identity, error) {
	identity, ok := t.lookupID(id)
	if !ok {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

func (t *memoryTx) Update(_ context.Context, identity Identity) error {
	current, ok := t.lookupID(identity.ID)
	if !ok {
		return ErrNotFound
	}
	identity.Phone = current.Phone
	identity.CreatedAt = current.CreatedAt
	identity.UpdatedAt = time.Now().UTC()
	t.staged[identity.ID] = identity
	return nil
}

func (t *memoryTx) CountByRole(_ context.Context, role Role) (int, error) {
	count := 0
	for id, identity := range t.repo.byID {
		if staged, ok := t.staged[id]; ok {
			identity = staged
		}
		if identity.Role == role {
			count++
		}
	}
	for id, staged := range t.staged {
		if _, ok := t.repo.byID[id]; !ok && staged.Role == role {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return fn(ctx, t)
}
