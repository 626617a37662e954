package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteStore struct {
	q sqlQuerier
}

// SQLiteRepository implements Repository over a single SQLite file.
//
// The handle is expected to hold one connection with immediate transactions
// (see infra.NewSQLite), which serializes writers the way row locks would.
type SQLiteRepository struct {
	sqliteStore
	db       *sql.DB
	attempts int
}

// NewSQLiteRepository wraps an open SQLite handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{sqliteStore: sqliteStore{q: db}, db: db, attempts: defaultAttempts}
}

// Migrate applies the bundled SQLite schema.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, sqliteDialect, func(ctx context.Context, stmt string) error {
		_, err := r.db.ExecContext(ctx, stmt)
		return err
	})
}

// Atomic runs fn inside one SQLite transaction.
func (r *SQLiteRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return retryOnConflict(ctx, r.attempts, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return mapSQLiteError(err)
		}
		defer tx.Rollback() // nolint:errcheck

		if err := fn(ctx, &sqliteTx{sqliteStore: sqliteStore{q: tx}}); err != nil {
			return err
		}
		return mapSQLiteError(tx.Commit())
	})
}

type sqliteTx struct {
	sqliteStore
}

func (t *sqliteTx) Atomic(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return fn(ctx, t)
}

func (s sqliteStore) Create(ctx context.Context, identity Identity) error {
	if strings.TrimSpace(identity.ID) == "" {
		return fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO identities (`+identityColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ID, identity.Phone, identity.Username, identity.Lastname, string(identity.Role),
		identity.Code, identity.IsVerified, int(identity.Step), toMillis(identity.CreatedAt), toMillis(now))
	return mapSQLiteError(err)
}

func (s sqliteStore) FindByPhone(ctx context.Context, phone string) (Identity, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone = ?`, phone)
	return scanSQLiteIdentity(row)
}

func (s sqliteStore) FindByID(ctx context.Context, id string) (Identity, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	return scanSQLiteIdentity(row)
}

func (s sqliteStore) Update(ctx context.Context, identity Identity) error {
	res, err := s.q.ExecContext(ctx, `UPDATE identities
        SET username = ?, lastname = ?, role = ?, code = ?, is_verified = ?, step = ?, updated_at = ?
        WHERE id = ?`,
		identity.Username, identity.Lastname, string(identity.Role), identity.Code,
		identity.IsVerified, int(identity.Step), toMillis(time.Now()), identity.ID)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s sqliteStore) CountByRole(ctx context.Context, role Role) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities WHERE role = ?`, string(role)).Scan(&count); err != nil {
		return 0, mapSQLiteError(err)
	}
	return count, nil
}

func scanSQLiteIdentity(row *sql.Row) (Identity, error) {
	var (
		identity  Identity
		role      string
		step      int
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&identity.ID, &identity.Phone, &identity.Username, &identity.Lastname, &role,
		&identity.Code, &identity.IsVerified, &step, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, mapSQLiteError(err)
	}
	identity.Role = Role(role)
	identity.Step = Step(step)
	identity.CreatedAt = fromMillis(createdAt)
	identity.UpdatedAt = fromMillis(updatedAt)
	return identity, nil
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			if strings.Contains(sqliteErr.Error(), "UNIQUE") {
				return fmt.Errorf("%w: %s", ErrConflict, sqliteErr.Error())
			}
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s", ErrConflict, sqliteErr.Error())
		}
	}
	return err
}
