package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const identityColumns = `id, phone, username, lastname, role, code, is_verified, step, created_at, updated_at`

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgStore holds the queries shared by the pool-backed repository and its
// transaction views.
type pgStore struct {
	q pgQuerier
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pgStore
	db       *pgxpool.Pool
	attempts int
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pgStore: pgStore{q: db}, db: db, attempts: defaultAttempts}
}

// EnsureSchema applies the bundled Postgres migrations.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	return applyMigrations(ctx, postgresDialect, func(ctx context.Context, stmt string) error {
		_, err := r.db.Exec(ctx, stmt)
		return err
	})
}

// Atomic runs fn inside a SERIALIZABLE transaction. Unique violations and
// serialization failures surface as ErrConflict and replay fn from scratch,
// so a concurrent first login for the same phone ends up updating the row
// the winner created.
func (r *PostgresRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return retryOnConflict(ctx, r.attempts, func() error {
		tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx) // nolint:errcheck

		if err := fn(ctx, &pgTx{pgStore: pgStore{q: tx}}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return mapPgError(err)
		}
		return nil
	})
}

type pgTx struct {
	pgStore
}

func (t *pgTx) Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return fn(ctx, t)
}

// Create inserts a new identity.
func (s pgStore) Create(ctx context.Context, identity Identity) error {
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return fmt.Errorf("%w: identity id: %v", ErrInvalidInput, err)
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	_, err = s.q.Exec(ctx, `INSERT INTO identities (`+identityColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, identity.Phone, identity.Username, identity.Lastname, string(identity.Role),
		identity.Code, identity.IsVerified, int(identity.Step), identity.CreatedAt.UTC(), now)
	return mapPgError(err)
}

// FindByPhone fetches an identity by phone number.
func (s pgStore) FindByPhone(ctx context.Context, phone string) (Identity, error) {
	row := s.q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone = $1`, phone)
	return scanPgIdentity(row)
}

// FindByID fetches an identity by its identifier.
func (s pgStore) FindByID(ctx context.Context, id string) (Identity, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, ErrNotFound
	}
	row := s.q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, parsed)
	return scanPgIdentity(row)
}

// Update stores every mutable field of the identity.
func (s pgStore) Update(ctx context.Context, identity Identity) error {
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := s.q.Exec(ctx, `UPDATE identities
        SET username = $1, lastname = $2, role = $3, code = $4, is_verified = $5, step = $6, updated_at = $7
        WHERE id = $8`,
		identity.Username, identity.Lastname, string(identity.Role), identity.Code,
		identity.IsVerified, int(identity.Step), time.Now().UTC(), id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole returns how many identities currently hold role.
func (s pgStore) CountByRole(ctx context.Context, role Role) (int, error) {
	var count int64
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM identities WHERE role = $1`, string(role)).Scan(&count); err != nil {
		return 0, mapPgError(err)
	}
	return int(count), nil
}

func scanPgIdentity(row pgx.Row) (Identity, error) {
	var (
		id        uuid.UUID
		role      string
		step      int
		identity  Identity
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &identity.Phone, &identity.Username, &identity.Lastname, &role,
		&identity.Code, &identity.IsVerified, &step, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, mapPgError(err)
	}
	identity.ID = id.String()
	identity.Role = Role(role)
	identity.Step = Step(step)
	identity.CreatedAt = createdAt.UTC()
	identity.UpdatedAt = updatedAt.UTC()
	return identity, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
