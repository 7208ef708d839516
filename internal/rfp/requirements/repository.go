package requirements

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/platform/db"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Repository persists requirements.
type Repository interface {
	ListByRFP(ctx context.Context, rfpID uuid.UUID, filter Filter) ([]Requirement, error)
	Get(ctx context.Context, id uuid.UUID) (Requirement, error)
	Create(ctx context.Context, rfpID uuid.UUID, in Input) (Requirement, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (Requirement, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reorder(ctx context.Context, rfpID uuid.UUID, ids []uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const requirementColumns = `id, rfp_id, category, priority, title, description, COALESCE(acceptance_criteria, ''),
	COALESCE(complexity, ''), estimated_hours::float8, COALESCE(suggested_solution, ''), sort_order, created_at, updated_at`

func (r *repository) ListByRFP(ctx context.Context, rfpID uuid.UUID, filter Filter) ([]Requirement, error) {
	var args shared.Args
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE rfp_id = ` + args.Add(rfpID)
	if filter.Category != "" {
		query += ` AND category = ` + args.Add(string(filter.Category))
	}
	if filter.Priority != "" {
		query += ` AND priority = ` + args.Add(string(filter.Priority))
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY sort_order ASC, created_at ASC`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Requirement
	for rows.Next() {
		item, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Requirement, error) {
	item, err := scanRequirement(r.pool.QueryRow(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE id = $1`, id))
	return item, shared.MapDBError(err)
}

// Create appends the requirement after the RFP's last one. The RFP row is
// locked so concurrent inserts get distinct positions.
func (r *repository) Create(ctx context.Context, rfpID uuid.UUID, in Input) (Requirement, error) {
	var created Requirement
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM rfps WHERE id = $1 FOR UPDATE`, rfpID).Scan(&locked); err != nil {
			return shared.MapDBError(err)
		}
		row := tx.QueryRow(ctx, `INSERT INTO requirements (rfp_id, category, priority, title, description, acceptance_criteria, complexity, estimated_hours, suggested_solution, sort_order)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, NULLIF($9, ''),
				(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM requirements WHERE rfp_id = $1))
			RETURNING `+requirementColumns,
			rfpID, string(in.Category), string(in.Priority), in.Title, in.Description, in.AcceptanceCriteria, string(in.Complexity), in.EstimatedHours, in.SuggestedSolution)
		var err error
		created, err = scanRequirement(row)
		return shared.MapDBError(err)
	})
	return created, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, in Input) (Requirement, error) {
	row := r.pool.QueryRow(ctx, `UPDATE requirements SET category = $1, priority = $2, title = $3, description = $4,
		acceptance_criteria = NULLIF($5, ''), complexity = NULLIF($6, ''), estimated_hours = $7, suggested_solution = NULLIF($8, ''), updated_at = NOW()
		WHERE id = $9 RETURNING `+requirementColumns,
		string(in.Category), string(in.Priority), in.Title, in.Description, in.AcceptanceCriteria, string(in.Complexity), in.EstimatedHours, in.SuggestedSolution, id)
	item, err := scanRequirement(row)
	return item, shared.MapDBError(err)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM requirements WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return internalShared.ErrNotFound
	}
	return nil
}

// Reorder assigns positions 0..n-1 following ids, which must name exactly
// the RFP's requirements.
func (r *repository) Reorder(ctx context.Context, rfpID uuid.UUID, ids []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM requirements WHERE rfp_id = $1`, rfpID).Scan(&count); err != nil {
			return err
		}
		if count != len(ids) {
			return fmt.Errorf("%w: order lists %d of %d requirements", internalShared.ErrValidation, len(ids), count)
		}
		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE requirements SET sort_order = $1, updated_at = NOW() WHERE id = $2 AND rfp_id = $3`, i, id, rfpID)
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
				return fmt.Errorf("%w: requirement does not belong to this RFP", internalShared.ErrValidation)
			}
		}
		return results.Close()
	})
}

func scanRequirement(row pgx.Row) (Requirement, error) {
	var (
		item                           Requirement
		category, priority, complexity string
	)
	err := row.Scan(&item.ID, &item.RFPID, &category, &priority, &item.Title, &item.Description, &item.AcceptanceCriteria,
		&complexity, &item.EstimatedHours, &item.SuggestedSolution, &item.Order, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Requirement{}, err
	}
	item.Category = Category(category)
	item.Priority = Priority(priority)
	item.Complexity = Complexity(complexity)
	return item, nil
}
