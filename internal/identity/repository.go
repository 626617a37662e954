package identity

import (
	"context"
	"errors"
)

// defaultAttempts bounds how often Atomic replays a unit of work after a conflict.
const defaultAttempts = 3

// Repository persists identities.
//
// Atomic runs fn against a view bound to a single transaction. The view is
// itself a Repository; calling Atomic on it runs fn inline. Every
// read-check-write sequence of the onboarding flow goes through Atomic.
type Repository interface {
	Create(ctx context.Context, identity Identity) error
	FindByPhone(ctx context.Context, phone string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	Update(ctx context.Context, identity Identity) error
	CountByRole(ctx context.Context, role Role) (int, error)
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// retryOnConflict replays fn while it fails with ErrConflict.
func retryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
