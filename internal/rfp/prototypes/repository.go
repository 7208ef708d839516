package prototypes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/platform/db"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Repository persists UI prototypes.
type Repository interface {
	List(ctx context.Context, page shared.ListFilters, filter Filter) ([]Prototype, int, error)
	ListByProposal(ctx context.Context, proposalID uuid.UUID, filter Filter) ([]Prototype, error)
	Get(ctx context.Context, id uuid.UUID) (Prototype, error)
	Create(ctx context.Context, proposalID uuid.UUID, in Input, createdBy uuid.UUID) (Prototype, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (Prototype, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (Prototype, error)
	Reorder(ctx context.Context, proposalID uuid.UUID, ids []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrStaleStatus reports that the prototype changed state concurrently.
var ErrStaleStatus = fmt.Errorf("%w: prototype status changed, reload and try again", internalShared.ErrConflict)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const prototypeColumns = `u.id, u.proposal_id, p.title, u.name, u.type, u.sort_order, u.status, COALESCE(u.description, ''),
	COALESCE(u.image_url, ''), COALESCE(u.figma_url, ''), COALESCE(u.html_code, ''), u.is_ai_generated,
	COALESCE(u.ai_prompt, ''), COALESCE(u.generated_from, ''), u.created_by, COALESCE(c.name, ''), u.created_at, u.updated_at`

const prototypeFrom = ` FROM ui_prototypes u
	JOIN proposals p ON p.id = u.proposal_id
	LEFT JOIN profiles c ON c.id = u.created_by`

func filterConds(args *shared.Args, filter Filter) []string {
	var conds []string
	if filter.Type != "" {
		conds = append(conds, `u.type = `+args.Add(string(filter.Type)))
	}
	if filter.Status != "" {
		conds = append(conds, `u.status = `+args.Add(string(filter.Status)))
	}
	if filter.AIGenerated {
		conds = append(conds, `u.is_ai_generated`)
	}
	return conds
}

func (r *repository) List(ctx context.Context, page shared.ListFilters, filter Filter) ([]Prototype, int, error) {
	var args shared.Args
	conds := filterConds(&args, filter)
	if page.Search != "" {
		p := args.Add(page.SearchPattern())
		conds = append(conds, `(u.name ILIKE `+p+` OR p.title ILIKE `+p+`)`)
	}
	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+prototypeFrom+where, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + prototypeColumns + prototypeFrom + where +
		` ORDER BY ` + sortOrder(page.SortBy, page.Direction()) +
		` LIMIT ` + args.Add(page.Limit) + ` OFFSET ` + args.Add(page.Offset())
	items, err := r.query(ctx, query, args.Values()...)
	return items, total, err
}

func (r *repository) ListByProposal(ctx context.Context, proposalID uuid.UUID, filter Filter) ([]Prototype, error) {
	var args shared.Args
	conds := append([]string{`u.proposal_id = ` + args.Add(proposalID)}, filterConds(&args, filter)...)
	return r.query(ctx, `SELECT `+prototypeColumns+prototypeFrom+` WHERE `+strings.Join(conds, ` AND `)+
		` ORDER BY u.sort_order ASC, u.created_at ASC`, args.Values()...)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Prototype, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Prototype
	for rows.Next() {
		p, err := scanPrototype(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Prototype, error) {
	p, err := scanPrototype(r.pool.QueryRow(ctx, `SELECT `+prototypeColumns+prototypeFrom+` WHERE u.id = $1`, id))
	return p, shared.MapDBError(err)
}

// Create appends the prototype after the proposal's last one.
func (r *repository) Create(ctx context.Context, proposalID uuid.UUID, in Input, createdBy uuid.UUID) (Prototype, error) {
	var id uuid.UUID
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM proposals WHERE id = $1 FOR UPDATE`, proposalID).Scan(&locked); err != nil {
			return shared.MapDBError(err)
		}
		err := tx.QueryRow(ctx, `INSERT INTO ui_prototypes (proposal_id, name, type, status, description, image_url, figma_url,
			html_code, is_ai_generated, ai_prompt, generated_from, created_by, sort_order)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), NULLIF($11, ''), $12,
				(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM ui_prototypes WHERE proposal_id = $1))
			RETURNING id`,
			proposalID, in.Name, string(in.Type), string(StatusDraft), in.Description, in.ImageURL, in.FigmaURL,
			in.HTMLCode, in.IsAIGenerated, in.AIPrompt, in.GeneratedFrom, createdBy).Scan(&id)
		return shared.MapDBError(err)
	})
	if err != nil {
		return Prototype{}, err
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, in Input) (Prototype, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE ui_prototypes SET name = $1, type = $2, description = NULLIF($3, ''),
		image_url = NULLIF($4, ''), figma_url = NULLIF($5, ''), html_code = NULLIF($6, ''), is_ai_generated = $7,
		ai_prompt = NULLIF($8, ''), generated_from = NULLIF($9, ''), updated_at = NOW()
		WHERE id = $10`,
		in.Name, string(in.Type), in.Description, in.ImageURL, in.FigmaURL, in.HTMLCode, in.IsAIGenerated,
		in.AIPrompt, in.GeneratedFrom, id)
	if err != nil {
		return Prototype{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return Prototype{}, internalShared.ErrNotFound
	}
	return r.Get(ctx, id)
}

// SetStatus moves the prototype only while it is still in from.
func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (Prototype, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE ui_prototypes SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return Prototype{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return Prototype{}, err
		}
		return Prototype{}, ErrStaleStatus
	}
	return r.Get(ctx, id)
}

// Reorder assigns positions 0..n-1 following ids, which must name exactly
// the proposal's prototypes.
func (r *repository) Reorder(ctx context.Context, proposalID uuid.UUID, ids []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM ui_prototypes WHERE proposal_id = $1`, proposalID).Scan(&count); err != nil {
			return err
		}
		if count != len(ids) {
			return fmt.Errorf("%w: order lists %d of %d prototypes", internalShared.ErrValidation, len(ids), count)
		}
		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE ui_prototypes SET sort_order = $1, updated_at = NOW() WHERE id = $2 AND proposal_id = $3`, i, id, proposalID)
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
				return errors.New("prototype does not belong to this proposal")
			}
		}
		return results.Close()
	})
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ui_prototypes WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return internalShared.ErrNotFound
	}
	return nil
}

func scanPrototype(row pgx.Row) (Prototype, error) {
	var (
		p            Prototype
		kind, status string
	)
	err := row.Scan(&p.ID, &p.ProposalID, &p.ProposalTitle, &p.Name, &kind, &p.Order, &status, &p.Description,
		&p.ImageURL, &p.FigmaURL, &p.HTMLCode, &p.IsAIGenerated,
		&p.AIPrompt, &p.GeneratedFrom, &p.CreatedBy, &p.CreatorName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Prototype{}, err
	}
	p.Type = Type(kind)
	p.Status = Status(status)
	return p, nil
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "name":
		return "u.name " + dir
	case "proposal":
		return "p.title " + dir + ", u.sort_order ASC"
	case "status":
		return "u.status " + dir + ", u.updated_at DESC"
	default:
		return "u.updated_at " + dir
	}
}
