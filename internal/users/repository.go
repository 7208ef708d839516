package users

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/shared"
)

const profileColumns = `id, email, name, role, COALESCE(department, ''), COALESCE(position, ''), COALESCE(phone, ''), COALESCE(avatar, ''), is_active, last_login_at, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a profile by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, shared.ErrNotFound
	}
	return p, err
}

// Create inserts a new profile.
func (r *Repository) Create(ctx context.Context, p Profile) (Profile, error) {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (id, email, name, role, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		p.ID, p.Email, p.Name, string(p.Role), p.IsActive, now)
	if err != nil {
		return Profile{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

// Update writes the self-editable fields and returns the fresh row.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (Profile, error) {
	row := r.pool.QueryRow(ctx, `UPDATE profiles SET name = $1, department = NULLIF($2, ''), position = NULLIF($3, ''), phone = NULLIF($4, ''), updated_at = NOW() WHERE id = $5 RETURNING `+profileColumns,
		upd.Name, upd.Department, upd.Position, upd.Phone, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, shared.ErrNotFound
	}
	return p, err
}

// List returns profiles matching filter with the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Profile, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where += ` AND role = $` + strconv.Itoa(len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR email ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + profileColumns + ` FROM profiles` + where + ` ORDER BY name ASC`
	if filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, filter.Limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// SetRole changes a user's role.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role authz.Role) error {
	return r.execOne(ctx, `UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2`, string(role), id)
}

// SetActive activates or deactivates a user.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.execOne(ctx, `UPDATE profiles SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
}

// TouchLastLogin stamps the last login time.
func (r *Repository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.execOne(ctx, `UPDATE profiles SET last_login_at = $1 WHERE id = $2`, at.UTC(), id)
}

// Delete removes a profile. Only used to roll back a failed sign-up.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	return err
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p    Profile
		role string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &p.Department, &p.Position, &p.Phone, &p.Avatar, &p.IsActive, &p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	p.Role = authz.Role(role)
	return p, nil
}

var _ RepositoryPort = (*Repository)(nil)
