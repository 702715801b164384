package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const recordColumns = `id, user_id, device_id, secret_hash, created_at, expires_at, used, used_at, revoked, revoked_at, parent_hash`

const (
	findRecordQuery = `SELECT ` + recordColumns + ` FROM refresh_tokens
		WHERE user_id = $1 AND device_id = $2 AND secret_hash = $3`

	insertRecordQuery = `INSERT INTO refresh_tokens (` + recordColumns + `)
		VALUES (:id, :user_id, :device_id, :secret_hash, :created_at, :expires_at, :used, :used_at, :revoked, :revoked_at, :parent_hash)`

	// lineageLockQuery serializes successor inserts against RevokeDevice for
	// one device. It is released at commit.
	lineageLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	parentRevokedQuery = `SELECT revoked FROM refresh_tokens
		WHERE user_id = $1 AND device_id = $2 AND secret_hash = $3`

	markUsedQuery = `UPDATE refresh_tokens SET used = TRUE, used_at = $4
		WHERE user_id = $1 AND device_id = $2 AND secret_hash = $3 AND used = FALSE AND revoked = FALSE`

	recordStateQuery = `SELECT used, revoked FROM refresh_tokens
		WHERE user_id = $1 AND device_id = $2 AND secret_hash = $3`

	revokeDeviceQuery = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $3
		WHERE user_id = $1 AND device_id = $2 AND revoked = FALSE`

	listDeviceQuery = `SELECT ` + recordColumns + ` FROM refresh_tokens
		WHERE user_id = $1 AND device_id = $2 ORDER BY created_at`
)

// PostgresStore keeps records in the refresh_tokens table created by the
// service migrations.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore returns a PostgresStore over db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, userID, deviceID, secretHash string) (*Record, error) {
	var rec Record
	if err := s.db.GetContext(ctx, &rec, findRecordQuery, userID, deviceID, secretHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if err := rec.validate(); err != nil {
		return err
	}
	ensureID(rec)

	if rec.ParentHash == "" {
		return insertRecord(ctx, s.db, rec)
	}

	return s.inLineage(ctx, rec.UserID, rec.DeviceID, func(tx *sqlx.Tx) error {
		var revoked bool
		if err := tx.GetContext(ctx, &revoked, parentRevokedQuery, rec.UserID, rec.DeviceID, rec.ParentHash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrParentRevoked
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if revoked {
			return ErrParentRevoked
		}
		return insertRecord(ctx, tx, rec)
	})
}

func insertRecord(ctx context.Context, db sqlx.ExtContext, rec *Record) error {
	if _, err := sqlx.NamedExecContext(ctx, db, insertRecordQuery, rec); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// inLineage runs fn in a transaction holding the device's advisory lock.
// Any error from fn rolls the transaction back and is returned unchanged.
func (s *PostgresStore) inLineage(ctx context.Context, userID, deviceID string, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, lineageLockQuery, userID+":"+deviceID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MarkUsed issues the conditional UPDATE. When no row changed it reads the
// row state once to report why.
func (s *PostgresStore) MarkUsed(ctx context.Context, userID, deviceID, secretHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, markUsedQuery, userID, deviceID, secretHash, at.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 1 {
		return nil
	}

	var state struct {
		Used    bool `db:"used"`
		Revoked bool `db:"revoked"`
	}
	if err := s.db.GetContext(ctx, &state, recordStateQuery, userID, deviceID, secretHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch {
	case state.Revoked:
		return ErrRevoked
	case state.Used:
		return ErrAlreadyUsed
	default:
		return fmt.Errorf("%w: conditional update affected %d rows", ErrStoreUnavailable, n)
	}
}

// RevokeDevice takes the lineage lock first so its UPDATE snapshot includes
// any successor committed by a concurrent Insert.
func (s *PostgresStore) RevokeDevice(ctx context.Context, userID, deviceID string, at time.Time) (int, error) {
	var n int64
	err := s.inLineage(ctx, userID, deviceID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, revokeDeviceQuery, userID, deviceID, at.UTC())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) ListDevice(ctx context.Context, userID, deviceID string) ([]Record, error) {
	out := []Record{}
	if err := s.db.SelectContext(ctx, &out, listDeviceQuery, userID, deviceID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
