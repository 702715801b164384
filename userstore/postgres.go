package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MrEthical07/tokenguard"
)

const uniqueViolation = "23505"

// ErrUnavailable wraps database failures other than a missing row.
var ErrUnavailable = errors.New("user store unavailable")

const (
	userColumns = `id, email, role, password_hash`

	userByIDQuery    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	userByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	insertUserQuery  = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4)`
)

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	Role         string `db:"role"`
	PasswordHash string `db:"password_hash"`
}

func (r userRow) record() tokenguard.UserRecord {
	return tokenguard.UserRecord{
		UserID:       r.ID,
		Email:        r.Email,
		Role:         r.Role,
		PasswordHash: r.PasswordHash,
	}
}

// Postgres reads the users table created by the service migrations.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres returns a Postgres provider over db.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Create inserts a user with a fresh uuid.
func (p *Postgres) Create(ctx context.Context, email, passwordHash, role string) (tokenguard.UserRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return tokenguard.UserRecord{}, errors.New("email is required")
	}
	row := userRow{ID: uuid.NewString(), Email: email, Role: role, PasswordHash: passwordHash}
	if _, err := p.db.ExecContext(ctx, insertUserQuery, row.ID, row.Email, row.Role, row.PasswordHash); err != nil {
		if isUniqueViolation(err) {
			return tokenguard.UserRecord{}, ErrDuplicateEmail
		}
		return tokenguard.UserRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return row.record(), nil
}

func (p *Postgres) GetUserByID(ctx context.Context, userID string) (tokenguard.UserRecord, error) {
	return p.get(ctx, userByIDQuery, userID)
}

func (p *Postgres) GetUserByIdentifier(ctx context.Context, identifier string) (tokenguard.UserRecord, error) {
	return p.get(ctx, userByEmailQuery, normalizeEmail(identifier))
}

func (p *Postgres) get(ctx context.Context, query, arg string) (tokenguard.UserRecord, error) {
	var row userRow
	if err := p.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokenguard.UserRecord{}, tokenguard.ErrUserNotFound
		}
		return tokenguard.UserRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return row.record(), nil
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
