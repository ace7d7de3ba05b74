package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/goSession/internal/dbx"
	"github.com/MrEthical07/goSession/session/migrations"
)

const pgUniqueViolation = "23505"

const selectRecordColumns = `id, user_id, family_id, token_hash, expires_at, is_active, created_at, revoked_at, revoked_reason`

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded refresh_tokens migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// OpenPostgres opens a database/sql handle through the pgx stdlib driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	Now func() time.Time
}

// PostgresStore is a Store over the refresh_tokens table. Rotation runs in a
// single transaction; the conditional UPDATE serializes concurrent rotations
// of the same row.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore binds a store to db. Call Migrate first.
func NewPostgresStore(db *sql.DB, cfg PostgresConfig) *PostgresStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PostgresStore{db: db, now: cfg.Now}
}

func dbError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrDuplicateRecord) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateRecord
	}
	return fmt.Errorf("%w: db error: %v", ErrStoreUnavailable, err)
}

func insertRecord(ctx context.Context, q dbx.DBTX, rec NewRecord, now time.Time) (Record, error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`
	if _, err := q.ExecContext(ctx, query, rec.ID, rec.UserID, rec.FamilyID, rec.TokenHash, rec.ExpiresAt, now); err != nil {
		return Record{}, dbError(err)
	}
	return Record{
		ID:        rec.ID,
		UserID:    rec.UserID,
		FamilyID:  rec.FamilyID,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: now,
		Active:    true,
	}, nil
}

// CreateRecord inserts a new active record.
func (s *PostgresStore) CreateRecord(ctx context.Context, rec NewRecord) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return insertRecord(ctx, s.db, rec, s.now())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec           Record
		revokedAt     sql.NullTime
		revokedReason sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.FamilyID,
		&rec.TokenHash,
		&rec.ExpiresAt,
		&rec.Active,
		&rec.CreatedAt,
		&revokedAt,
		&revokedReason,
	)
	if err != nil {
		return Record{}, err
	}
	if revokedAt.Valid {
		rec.RevokedAt = revokedAt.Time
	}
	rec.RevokedReason = revokedReason.String
	return rec, nil
}

// FindAnyByHash returns the record for tokenHash whether active or not.
func (s *PostgresStore) FindAnyByHash(ctx context.Context, tokenHash string) (Record, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, dbError(err)
	}
	return rec, nil
}

// FindActiveByHash returns the record only when it is active and unexpired.
func (s *PostgresStore) FindActiveByHash(ctx context.Context, tokenHash string) (Record, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM refresh_tokens
		WHERE token_hash = $1 AND is_active AND expires_at > $2`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, tokenHash, s.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, dbError(err)
	}
	return rec, nil
}

// DeactivateRecord marks one record inactive; repeated calls are no-ops.
func (s *PostgresStore) DeactivateRecord(ctx context.Context, id, reason string) error {
	query := `
		UPDATE refresh_tokens
		SET is_active = FALSE, revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND is_active
	`
	if _, err := s.db.ExecContext(ctx, query, id, s.now(), reason); err != nil {
		return dbError(err)
	}
	return nil
}

// RevokeFamily deactivates every active record of familyID.
//
// It holds the family advisory lock, so a rotation that committed a new
// record just before is visible here and a rotation still waiting for the
// lock finds its old record inactive.
func (s *PostgresStore) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = FALSE, revoked_at = $2, revoked_reason = $3
		WHERE family_id = $1 AND is_active
	`
	return s.lockedRevoke(ctx, dbx.LockFamily, familyID, query, reason)
}

// RevokeAllForUser deactivates every active record of userID under the user
// advisory lock.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = FALSE, revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND is_active
	`
	return s.lockedRevoke(ctx, dbx.LockUser, userID, query, reason)
}

func (s *PostgresStore) lockedRevoke(ctx context.Context, class dbx.LockClass, key, query, reason string) (int, error) {
	var n int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.XactLock(ctx, tx, class, key); err != nil {
			return err
		}
		var err error
		n, err = execCount(ctx, tx, query, key, s.now(), reason)
		return err
	})
	if err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

func execCount(ctx context.Context, db dbx.DBTX, query string, args ...any) (int, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err)
	}
	return int(n), nil
}

// RotateRecord deactivates oldID and inserts next in one transaction.
//
// The user and family advisory locks are taken first, in that order, which
// serializes the rotation against RevokeAllForUser, RevokeFamily and other
// rotations of the family. The conditional UPDATE then claims the old row; a
// loser sees it inactive and gets ErrRecordInactive.
func (s *PostgresStore) RotateRecord(ctx context.Context, oldID string, next NewRecord) (Record, error) {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	now := s.now()

	var created Record
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.XactLock(ctx, tx, dbx.LockUser, next.UserID); err != nil {
			return dbError(err)
		}
		if err := dbx.XactLock(ctx, tx, dbx.LockFamily, next.FamilyID); err != nil {
			return dbError(err)
		}

		claim := `
			UPDATE refresh_tokens
			SET is_active = FALSE, revoked_at = $2, revoked_reason = $3
			WHERE id = $1 AND is_active AND expires_at > $2
		`
		res, err := tx.ExecContext(ctx, claim, oldID, now, ReasonRotated)
		if err != nil {
			return dbError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dbError(err)
		}
		if n == 0 {
			return classifyUnclaimed(ctx, tx, oldID)
		}

		created, err = insertRecord(ctx, tx, next, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrRecordInactive) ||
			errors.Is(err, ErrRecordExpired) || errors.Is(err, ErrDuplicateRecord) ||
			errors.Is(err, ErrStoreUnavailable) {
			return Record{}, err
		}
		return Record{}, dbError(err)
	}
	return created, nil
}

func classifyUnclaimed(ctx context.Context, tx dbx.DBTX, id string) error {
	var active bool
	err := tx.QueryRowContext(ctx, `SELECT is_active FROM refresh_tokens WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		return dbError(err)
	}
	if !active {
		return ErrRecordInactive
	}
	return ErrRecordExpired
}

// ListActiveForUser returns usable records of userID, newest first.
func (s *PostgresStore) ListActiveForUser(ctx context.Context, userID string) ([]Record, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM refresh_tokens
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID, s.now())
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, dbError(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbError(err)
	}
	return nil
}
