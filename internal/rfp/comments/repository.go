package comments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Repository persists comments.
type Repository interface {
	ListByTarget(ctx context.Context, target TargetType, targetID uuid.UUID) ([]Comment, error)
	Get(ctx context.Context, id uuid.UUID) (Comment, error)
	Create(ctx context.Context, c NewComment) (Comment, error)
	Update(ctx context.Context, id uuid.UUID, content string, typ Type) (Comment, error)
	SetResolved(ctx context.Context, id uuid.UUID, resolved bool) (Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const commentColumns = `c.id, c.target_type, c.target_id, c.content, c.type, c.author_id, COALESCE(p.name, ''), COALESCE(p.avatar, ''),
	c.parent_id, c.is_resolved, c.created_at, c.updated_at`

const commentFrom = ` FROM comments c LEFT JOIN profiles p ON p.id = c.author_id`

func (r *repository) ListByTarget(ctx context.Context, target TargetType, targetID uuid.UUID) ([]Comment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+commentColumns+commentFrom+` WHERE c.target_type = $1 AND c.target_id = $2 ORDER BY c.created_at ASC`,
		string(target), targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Comment, error) {
	c, err := scanComment(r.db.QueryRow(ctx, `SELECT `+commentColumns+commentFrom+` WHERE c.id = $1`, id))
	return c, shared.MapDBError(err)
}

func (r *repository) Create(ctx context.Context, n NewComment) (Comment, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `INSERT INTO comments (target_type, target_id, content, type, author_id, parent_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(n.TargetType), n.TargetID, n.Content, string(n.Type), n.AuthorID, n.ParentID).Scan(&id)
	if err != nil {
		return Comment{}, shared.MapDBError(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, content string, typ Type) (Comment, error) {
	return r.execAndGet(ctx, id, `UPDATE comments SET content = $1, type = $2, updated_at = NOW() WHERE id = $3`, content, string(typ), id)
}

func (r *repository) SetResolved(ctx context.Context, id uuid.UUID, resolved bool) (Comment, error) {
	return r.execAndGet(ctx, id, `UPDATE comments SET is_resolved = $1, updated_at = NOW() WHERE id = $2`, resolved, id)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return internalShared.ErrNotFound
	}
	return nil
}

func (r *repository) execAndGet(ctx context.Context, id uuid.UUID, query string, args ...any) (Comment, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return Comment{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return Comment{}, internalShared.ErrNotFound
	}
	return r.Get(ctx, id)
}

func scanComment(row pgx.Row) (Comment, error) {
	var (
		c            Comment
		target, kind string
	)
	err := row.Scan(&c.ID, &target, &c.TargetID, &c.Content, &kind, &c.AuthorID, &c.AuthorName, &c.AuthorAvatar,
		&c.ParentID, &c.IsResolved, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	c.TargetType = TargetType(target)
	c.Type = Type(kind)
	return c, nil
}
