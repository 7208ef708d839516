package sections

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/platform/db"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Repository persists proposal sections.
type Repository interface {
	ListByProposal(ctx context.Context, proposalID uuid.UUID, filter Filter) ([]Section, error)
	GetByType(ctx context.Context, proposalID uuid.UUID, t Type) (*Section, error)
	Get(ctx context.Context, id uuid.UUID) (Section, error)
	Create(ctx context.Context, proposalID uuid.UUID, in Input, createdBy uuid.UUID) (Section, error)
	Update(ctx context.Context, id uuid.UUID, in Input, status Status) (Section, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (Section, error)
	Reorder(ctx context.Context, proposalID uuid.UUID, ids []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrStaleStatus reports that the section changed state concurrently.
var ErrStaleStatus = fmt.Errorf("%w: section status changed, reload and try again", internalShared.ErrConflict)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const sectionColumns = `id, proposal_id, type, title, sort_order, content, is_ai_generated, COALESCE(ai_prompt, ''),
	status, created_by, created_at, updated_at`

func (r *repository) ListByProposal(ctx context.Context, proposalID uuid.UUID, filter Filter) ([]Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM proposal_sections WHERE proposal_id = $1`
	if filter.AIGenerated {
		query += ` AND is_ai_generated`
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY sort_order ASC, created_at ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByType returns nil when the proposal has no section of type t.
func (r *repository) GetByType(ctx context.Context, proposalID uuid.UUID, t Type) (*Section, error) {
	s, err := scanSection(r.pool.QueryRow(ctx, `SELECT `+sectionColumns+` FROM proposal_sections
		WHERE proposal_id = $1 AND type = $2`, proposalID, string(t)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Section, error) {
	s, err := scanSection(r.pool.QueryRow(ctx, `SELECT `+sectionColumns+` FROM proposal_sections WHERE id = $1`, id))
	return s, shared.MapDBError(err)
}

// Create appends the section after the proposal's last one, locking the
// proposal row so concurrent inserts get distinct positions.
func (r *repository) Create(ctx context.Context, proposalID uuid.UUID, in Input, createdBy uuid.UUID) (Section, error) {
	var created Section
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM proposals WHERE id = $1 FOR UPDATE`, proposalID).Scan(&locked); err != nil {
			return shared.MapDBError(err)
		}
		row := tx.QueryRow(ctx, `INSERT INTO proposal_sections (proposal_id, type, title, content, is_ai_generated, ai_prompt, status, created_by, sort_order)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8,
				(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM proposal_sections WHERE proposal_id = $1))
			RETURNING `+sectionColumns,
			proposalID, string(in.Type), in.Title, in.Content, in.IsAIGenerated, in.AIPrompt, string(StatusDraft), createdBy)
		var err error
		created, err = scanSection(row)
		return shared.MapDBError(err)
	})
	return created, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, in Input, status Status) (Section, error) {
	row := r.pool.QueryRow(ctx, `UPDATE proposal_sections SET type = $1, title = $2, content = $3, is_ai_generated = $4,
		ai_prompt = NULLIF($5, ''), status = $6, updated_at = NOW()
		WHERE id = $7 RETURNING `+sectionColumns,
		string(in.Type), in.Title, in.Content, in.IsAIGenerated, in.AIPrompt, string(status), id)
	s, err := scanSection(row)
	return s, shared.MapDBError(err)
}

// SetStatus moves the section only while it is still in from.
func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (Section, error) {
	row := r.pool.QueryRow(ctx, `UPDATE proposal_sections SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 RETURNING `+sectionColumns, string(to), id, string(from))
	s, err := scanSection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.Get(ctx, id); err != nil {
			return Section{}, err
		}
		return Section{}, ErrStaleStatus
	}
	return s, shared.MapDBError(err)
}

// Reorder assigns positions 0..n-1 following ids, which must name exactly
// the proposal's sections.
func (r *repository) Reorder(ctx context.Context, proposalID uuid.UUID, ids []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM proposal_sections WHERE proposal_id = $1`, proposalID).Scan(&count); err != nil {
			return err
		}
		if count != len(ids) {
			return fmt.Errorf("%w: order lists %d of %d sections", internalShared.ErrValidation, len(ids), count)
		}
		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE proposal_sections SET sort_order = $1, updated_at = NOW() WHERE id = $2 AND proposal_id = $3`, i, id, proposalID)
		}
		results := tx.SendBatch(ctx, batch)
		for range ids {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return err
			}
			if tag.RowsAffected() != 1 {
				_ = results.Close()
				return fmt.Errorf("%w: section does not belong to this proposal", internalShared.ErrValidation)
			}
		}
		return results.Close()
	})
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM proposal_sections WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return internalShared.ErrNotFound
	}
	return nil
}

func scanSection(row pgx.Row) (Section, error) {
	var (
		s            Section
		kind, status string
	)
	err := row.Scan(&s.ID, &s.ProposalID, &kind, &s.Title, &s.Order, &s.Content, &s.IsAIGenerated, &s.AIPrompt,
		&status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Section{}, err
	}
	s.Type = Type(kind)
	s.Status = Status(status)
	return s, nil
}
