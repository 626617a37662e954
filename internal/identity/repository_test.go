package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_txlock=immediate")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := NewSQLiteRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": newSQLiteRepo(t),
	}
}

func TestRepositoryCreateAndFind(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := New(uuid.NewString(), "+15550001", "123456")
			if err := repo.Create(ctx, created); err != nil {
				t.Fatalf("create: %v", err)
			}

			byPhone, err := repo.FindByPhone(ctx, created.Phone)
			if err != nil {
				t.Fatalf("find by phone: %v", err)
			}
			if byPhone.ID != created.ID || byPhone.Step != StepAwaitingOTP || byPhone.Role != RoleUser {
				t.Fatalf("unexpected identity %+v", byPhone)
			}
			if byPhone.CreatedAt.IsZero() || byPhone.UpdatedAt.IsZero() {
				t.Fatalf("expected store-managed timestamps")
			}

			byID, err := repo.FindByID(ctx, created.ID)
			if err != nil {
				t.Fatalf("find by id: %v", err)
			}
			if byID.Code != "123456" {
				t.Fatalf("expected code to round-trip, got %q", byID.Code)
			}

			if _, err := repo.FindByPhone(ctx, "+19999999"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRepositoryRejectsDuplicatePhone(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Create(ctx, New(uuid.NewString(), "+15550002", "1")); err != nil {
				t.Fatalf("create: %v", err)
			}
			err := repo.Create(ctx, New(uuid.NewString(), "+15550002", "2"))
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestRepositoryUpdateAndCount(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				identity := New(uuid.NewString(), fmt.Sprintf("+1555100%d", i), "0000")
				identity.Role = RoleAdmin
				identity.Step = StepComplete
				if err := repo.Create(ctx, identity); err != nil {
					t.Fatalf("create: %v", err)
				}
			}
			student := New(uuid.NewString(), "+15552000", "0000")
			if err := repo.Create(ctx, student); err != nil {
				t.Fatalf("create: %v", err)
			}
			student.Role = RoleStudent
			student.Username = "A"
			student.Lastname = "B"
			student.IsVerified = true
			student.Step = StepComplete
			if err := repo.Update(ctx, student); err != nil {
				t.Fatalf("update: %v", err)
			}

			admins, err := repo.CountByRole(ctx, RoleAdmin)
			if err != nil || admins != 3 {
				t.Fatalf("expected 3 admins, got %d (%v)", admins, err)
			}
			students, err := repo.CountByRole(ctx, RoleStudent)
			if err != nil || students != 1 {
				t.Fatalf("expected 1 student, got %d (%v)", students, err)
			}

			stored, err := repo.FindByID(ctx, student.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if stored.Username != "A" || stored.Lastname != "B" || !stored.IsVerified || stored.Step != StepComplete {
				t.Fatalf("update not persisted: %+v", stored)
			}

			if err := repo.Update(ctx, New(uuid.NewString(), "+10000000", "")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on missing update, got %v", err)
			}
		})
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := errors.New("boom")
			err := repo.Atomic(ctx, func(ctx context.Context, tx Repository) error {
				if err := tx.Create(ctx, New(uuid.NewString(), "+15553000", "1")); err != nil {
					return err
				}
				if _, err := tx.FindByPhone(ctx, "+15553000"); err != nil {
					return fmt.Errorf("read own write: %w", err)
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected boom, got %v", err)
			}
			if _, err := repo.FindByPhone(ctx, "+15553000"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected rolled back create, got %v", err)
			}
		})
	}
}

func TestAtomicSerializesFirstWriters(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- repo.Atomic(ctx, func(ctx context.Context, tx Repository) error {
						existing, err := tx.FindByPhone(ctx, "+15554000")
						if errors.Is(err, ErrNotFound) {
							return tx.Create(ctx, New(uuid.NewString(), "+15554000", "1"))
						}
						if err != nil {
							return err
						}
						existing.Code = "2"
						return tx.Update(ctx, existing)
					})
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("atomic: %v", err)
				}
			}
			total, err := repo.CountByRole(ctx, RoleUser)
			if err != nil || total != 1 {
				t.Fatalf("expected exactly one identity, got %d (%v)", total, err)
			}
		})
	}
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := retryOnConflict(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return ErrConflict
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d calls", err, calls)
	}

	calls = 0
	err = retryOnConflict(context.Background(), 2, func() error {
		calls++
		return ErrConflict
	})
	if !errors.Is(err, ErrConflict) || calls != 2 {
		t.Fatalf("expected ErrConflict after 2 calls, got %v after %d", err, calls)
	}
}
