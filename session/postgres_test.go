package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/internal/dbx"
)

var recordColumns = []string{"id", "user_id", "family_id", "token_hash", "expires_at", "is_active", "created_at", "revoked_at", "revoked_reason"}

func newPostgresWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewPostgresStore(db, PostgresConfig{Now: func() time.Time { return now }}), mock, now
}

func expectLock(mock sqlmock.Sqlmock, class dbx.LockClass, key string) {
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, hashtext\(\$2\)\)`).
		WithArgs(int64(class), key).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestPostgresCreateRecord(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)
	exp := now.Add(time.Hour)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("r-1", "u-1", "fam-1", "hash-1", exp, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.CreateRecord(context.Background(), NewRecord{ID: "r-1", UserID: "u-1", FamilyID: "fam-1", TokenHash: "hash-1", ExpiresAt: exp})
	require.NoError(t, err)
	require.True(t, rec.Active)
	require.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateRecordDuplicate(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := store.CreateRecord(context.Background(), NewRecord{UserID: "u-1", FamilyID: "fam-1", TokenHash: "hash-1", ExpiresAt: now.Add(time.Hour)})
	require.ErrorIs(t, err, ErrDuplicateRecord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindAnyByHash(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)

	rows := sqlmock.NewRows(recordColumns).
		AddRow("r-1", "u-1", "fam-1", "hash-1", now.Add(time.Hour), false, now, now, ReasonRotated)
	mock.ExpectQuery(`SELECT .* FROM refresh_tokens WHERE token_hash = \$1$`).
		WithArgs("hash-1").
		WillReturnRows(rows)

	rec, err := store.FindAnyByHash(context.Background(), "hash-1")
	require.NoError(t, err)
	require.Equal(t, "fam-1", rec.FamilyID)
	require.False(t, rec.Active)
	require.Equal(t, ReasonRotated, rec.RevokedReason)
	require.Equal(t, now, rec.RevokedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindNotFoundAndUnavailable(t *testing.T) {
	store, mock, _ := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM refresh_tokens WHERE token_hash = \$1 AND is_active AND expires_at > \$2`).
		WithArgs("hash-1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM refresh_tokens WHERE token_hash = \$1$`).
		WithArgs("hash-2").
		WillReturnError(errors.New("connection reset"))

	_, err := store.FindActiveByHash(context.Background(), "hash-1")
	require.ErrorIs(t, err, ErrRecordNotFound)

	_, err = store.FindAnyByHash(context.Background(), "hash-2")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateCommits(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)
	exp := now.Add(time.Hour)

	mock.ExpectBegin()
	expectLock(mock, dbx.LockUser, "u-1")
	expectLock(mock, dbx.LockFamily, "fam-1")
	mock.ExpectExec(`UPDATE refresh_tokens SET is_active = FALSE, revoked_at = \$2, revoked_reason = \$3 WHERE id = \$1 AND is_active AND expires_at > \$2`).
		WithArgs("r-1", now, ReasonRotated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("r-2", "u-1", "fam-1", "hash-2", exp, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := store.RotateRecord(context.Background(), "r-1", NewRecord{ID: "r-2", UserID: "u-1", FamilyID: "fam-1", TokenHash: "hash-2", ExpiresAt: exp})
	require.NoError(t, err)
	require.Equal(t, "r-2", rec.ID)
	require.Equal(t, "fam-1", rec.FamilyID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateLostRace(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		lookErr error
		want    error
	}{
		{name: "inactive", rows: sqlmock.NewRows([]string{"is_active"}).AddRow(false), want: ErrRecordInactive},
		{name: "expired", rows: sqlmock.NewRows([]string{"is_active"}).AddRow(true), want: ErrRecordExpired},
		{name: "missing", lookErr: sql.ErrNoRows, want: ErrRecordNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, now := newPostgresWithMock(t)

			mock.ExpectBegin()
			expectLock(mock, dbx.LockUser, "u-1")
			expectLock(mock, dbx.LockFamily, "fam-1")
			mock.ExpectExec(`UPDATE refresh_tokens SET is_active = FALSE`).
				WithArgs("r-1", now, ReasonRotated).
				WillReturnResult(sqlmock.NewResult(0, 0))
			q := mock.ExpectQuery(`SELECT is_active FROM refresh_tokens WHERE id = \$1`).WithArgs("r-1")
			if tc.lookErr != nil {
				q.WillReturnError(tc.lookErr)
			} else {
				q.WillReturnRows(tc.rows)
			}
			mock.ExpectRollback()

			_, err := store.RotateRecord(context.Background(), "r-1", NewRecord{UserID: "u-1", FamilyID: "fam-1", TokenHash: "hash-2", ExpiresAt: now.Add(time.Hour)})
			require.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRotateBeginFails(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := store.RotateRecord(context.Background(), "r-1", NewRecord{UserID: "u-1", FamilyID: "fam-1", TokenHash: "hash-2", ExpiresAt: now.Add(time.Hour)})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevocations(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE refresh_tokens SET is_active = FALSE, revoked_at = \$2, revoked_reason = \$3 WHERE id = \$1 AND is_active$`).
		WithArgs("r-1", now, ReasonLogout).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	expectLock(mock, dbx.LockFamily, "fam-1")
	mock.ExpectExec(`WHERE family_id = \$1 AND is_active`).
		WithArgs("fam-1", now, ReasonReuseDetected).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	expectLock(mock, dbx.LockUser, "u-1")
	mock.ExpectExec(`WHERE user_id = \$1 AND is_active`).
		WithArgs("u-1", now, ReasonLogoutAll).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, store.DeactivateRecord(ctx, "r-1", ReasonLogout))

	n, err := store.RevokeFamily(ctx, "fam-1", ReasonReuseDetected)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = store.RevokeAllForUser(ctx, "u-1", ReasonLogoutAll)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevokeFamilyLockFailure(t *testing.T) {
	store, mock, _ := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	n, err := store.RevokeFamily(context.Background(), "fam-1", ReasonReuseDetected)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListActiveForUser(t *testing.T) {
	store, mock, now := newPostgresWithMock(t)

	rows := sqlmock.NewRows(recordColumns).
		AddRow("r-2", "u-1", "fam-2", "hash-2", now.Add(time.Hour), true, now, nil, nil).
		AddRow("r-1", "u-1", "fam-1", "hash-1", now.Add(time.Hour), true, now.Add(-time.Minute), nil, nil)
	mock.ExpectQuery(`WHERE user_id = \$1 AND is_active AND expires_at > \$2 ORDER BY created_at DESC`).
		WithArgs("u-1", now).
		WillReturnRows(rows)

	recs, err := store.ListActiveForUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "r-2", recs[0].ID)
	require.True(t, recs[1].RevokedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUsesEmbeddedDir(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	called := false
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}

	require.NoError(t, Migrate(context.Background(), db))
	require.True(t, called)
}
