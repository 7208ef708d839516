package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	ConfirmEmail(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error
	ExtendSession(ctx context.Context, id string, expiresAt time.Time) error
	RevokeSession(ctx context.Context, id string, at time.Time) error
	ListLiveSessions(ctx context.Context, userID uuid.UUID) ([]string, error)
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, email_confirmed_at, last_sign_in_at, created_at, updated_at`

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM auth_accounts WHERE email = $1`, normalizeEmail(email))
}

// FindByID fetches an account by ID.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM auth_accounts WHERE id = $1`, id)
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, query, arg).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.EmailConfirmedAt, &a.LastSignInAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return a, err
}

// CreateAccount inserts a new account. Duplicate emails yield ErrEmailAlreadyExists.
func (r *PGRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `INSERT INTO auth_accounts (id, email, password_hash, email_confirmed_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		a.ID, a.Email, a.PasswordHash, a.EmailConfirmedAt, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrEmailAlreadyExists
		}
		return Account{}, err
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return a, nil
}

// DeleteAccount removes an account.
func (r *PGRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_accounts WHERE id = $1`, id)
	return err
}

// ConfirmEmail stamps email_confirmed_at once.
func (r *PGRepository) ConfirmEmail(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_accounts SET email_confirmed_at = COALESCE(email_confirmed_at, $1), updated_at = $1 WHERE id = $2`, at.UTC(), id)
	return err
}

// UpdatePassword replaces the password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE auth_accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchSignIn records the last successful sign-in.
func (r *PGRepository) TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_accounts SET last_sign_in_at = $1 WHERE id = $2`, at.UTC(), id)
	return err
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO auth_sessions (id, user_id, created_at, expires_at, ip, user_agent) VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))`,
		id, userID, expiresAt.UTC(), ip, ua)
	return err
}

// ExtendSession moves the expiry of a live session after a refresh.
func (r *PGRepository) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_sessions SET expires_at = $1 WHERE id = $2 AND revoked_at IS NULL`, expiresAt.UTC(), id)
	return err
}

// RevokeSession marks a session record as revoked.
func (r *PGRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, at.UTC(), id)
	return err
}

// ListLiveSessions returns unrevoked, unexpired session ids of a user.
func (r *PGRepository) ListLiveSessions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM auth_sessions WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeExpiredSessions deletes session records that ended before the cutoff.
func (r *PGRepository) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1 OR revoked_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
