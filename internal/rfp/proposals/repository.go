package proposals

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
)

// Repository persists proposals and their reviewers.
type Repository interface {
	List(ctx context.Context, page shared.ListFilters, statuses []Status) ([]Proposal, int, error)
	Get(ctx context.Context, id uuid.UUID) (Proposal, error)
	Create(ctx context.Context, in Input, createdBy uuid.UUID) (Proposal, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (Proposal, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status, stamps Stamps) (Proposal, error)
	Reviewers(ctx context.Context, id uuid.UUID) ([]Reviewer, error)
	AddReviewer(ctx context.Context, id, reviewerID uuid.UUID) error
	RemoveReviewer(ctx context.Context, id, reviewerID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const proposalColumns = `p.id, p.rfp_id, r.title, c.name, p.title, p.status, p.version, p.assignee_id, COALESCE(a.name, ''),
	COALESCE(p.executive_summary, ''), p.total_price::float8, p.estimated_duration, p.start_date, p.end_date, p.win_probability,
	p.delivered_at, p.result_date, p.approved_by, p.approved_at, p.created_by, p.created_at, p.updated_at`

const proposalFrom = ` FROM proposals p
	JOIN rfps r ON r.id = p.rfp_id
	JOIN clients c ON c.id = r.client_id
	LEFT JOIN profiles a ON a.id = p.assignee_id`

func (r *repository) List(ctx context.Context, page shared.ListFilters, statuses []Status) ([]Proposal, int, error) {
	var args shared.Args
	var conds []string
	if page.Search != "" {
		p := args.Add(page.SearchPattern())
		conds = append(conds, `(p.title ILIKE `+p+` OR r.title ILIKE `+p+` OR c.name ILIKE `+p+`)`)
	}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		conds = append(conds, `p.status = ANY(`+args.Add(values)+`)`)
	}
	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+proposalFrom+where, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + proposalColumns + proposalFrom + where +
		` ORDER BY ` + sortOrder(page.SortBy, page.Direction()) +
		` LIMIT ` + args.Add(page.Limit) + ` OFFSET ` + args.Add(page.Offset())
	rows, err := r.db.Query(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Proposal, error) {
	p, err := scanProposal(r.db.QueryRow(ctx, `SELECT `+proposalColumns+proposalFrom+` WHERE p.id = $1`, id))
	return p, shared.MapDBError(err)
}

func (r *repository) Create(ctx context.Context, in Input, createdBy uuid.UUID) (Proposal, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `INSERT INTO proposals (rfp_id, title, version, assignee_id, executive_summary, total_price,
		estimated_duration, start_date, end_date, win_probability, status, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		in.RFPID, in.Title, in.Version, in.AssigneeID, in.ExecutiveSummary, in.TotalPrice, in.EstimatedDuration,
		in.StartDate, in.EndDate, in.WinProbability, string(StatusDrafting), createdBy).Scan(&id)
	if err != nil {
		return Proposal{}, shared.MapDBError(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, in Input) (Proposal, error) {
	tag, err := r.db.Exec(ctx, `UPDATE proposals SET title = $1, version = $2, assignee_id = $3, executive_summary = NULLIF($4, ''),
		total_price = $5, estimated_duration = $6, start_date = $7, end_date = $8, win_probability = $9, updated_at = NOW()
		WHERE id = $10`,
		in.Title, in.Version, in.AssigneeID, in.ExecutiveSummary, in.TotalPrice, in.EstimatedDuration,
		in.StartDate, in.EndDate, in.WinProbability, id)
	if err != nil {
		return Proposal{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return Proposal{}, shared.MapDBError(pgx.ErrNoRows)
	}
	return r.Get(ctx, id)
}

// SetStatus moves the proposal only while it is still in from, so two
// concurrent transitions cannot both succeed.
func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to Status, stamps Stamps) (Proposal, error) {
	tag, err := r.db.Exec(ctx, `UPDATE proposals SET status = $1,
		delivered_at = COALESCE($2, delivered_at), result_date = COALESCE($3, result_date),
		approved_by = COALESCE($4, approved_by), approved_at = COALESCE($5, approved_at), updated_at = NOW()
		WHERE id = $6 AND status = $7`,
		string(to), stamps.DeliveredAt, stamps.ResultDate, stamps.ApprovedBy, stamps.ApprovedAt, id, string(from))
	if err != nil {
		return Proposal{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return Proposal{}, err
		}
		return Proposal{}, ErrStaleStatus
	}
	return r.Get(ctx, id)
}

func (r *repository) Reviewers(ctx context.Context, id uuid.UUID) ([]Reviewer, error) {
	rows, err := r.db.Query(ctx, `SELECT pr.reviewer_id, p.name, p.email, pr.added_at
		FROM proposal_reviewers pr JOIN profiles p ON p.id = pr.reviewer_id
		WHERE pr.proposal_id = $1 ORDER BY pr.added_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reviewer
	for rows.Next() {
		var rv Reviewer
		if err := rows.Scan(&rv.ProfileID, &rv.Name, &rv.Email, &rv.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *repository) AddReviewer(ctx context.Context, id, reviewerID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `INSERT INTO proposal_reviewers (proposal_id, reviewer_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, id, reviewerID)
	return shared.MapDBError(err)
}

func (r *repository) RemoveReviewer(ctx context.Context, id, reviewerID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM proposal_reviewers WHERE proposal_id = $1 AND reviewer_id = $2`, id, reviewerID)
	return shared.MapDBError(err)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM proposals WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.MapDBError(pgx.ErrNoRows)
	}
	return nil
}

func scanProposal(row pgx.Row) (Proposal, error) {
	var (
		p      Proposal
		status string
	)
	err := row.Scan(&p.ID, &p.RFPID, &p.RFPTitle, &p.ClientName, &p.Title, &status, &p.Version, &p.AssigneeID, &p.AssigneeName,
		&p.ExecutiveSummary, &p.TotalPrice, &p.EstimatedDuration, &p.StartDate, &p.EndDate, &p.WinProbability,
		&p.DeliveredAt, &p.ResultDate, &p.ApprovedBy, &p.ApprovedAt, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Proposal{}, err
	}
	p.Status = Status(status)
	return p, nil
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "title":
		return "p.title " + dir
	case "status":
		return "p.status " + dir + ", p.updated_at DESC"
	case "created":
		return "p.created_at " + dir
	default:
		return "p.updated_at " + dir
	}
}
