package rfps

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
)

// Repository persists RFPs.
type Repository interface {
	List(ctx context.Context, page shared.ListFilters, filters ListFilters) ([]RFP, int, error)
	Get(ctx context.Context, id uuid.UUID) (RFP, error)
	Create(ctx context.Context, in Input) (RFP, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (RFP, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status, analyzedAt *time.Time) (RFP, error)
	SetAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const rfpColumns = `r.id, r.title, r.client_id, c.name, r.received_date, r.due_date, r.estimated_budget::float8, r.estimated_duration,
	r.description, r.attachments, r.status, r.ai_analysis, r.assignee_id, r.created_at, r.updated_at, r.analyzed_at`

const rfpFrom = ` FROM rfps r JOIN clients c ON c.id = r.client_id`

func (r *repository) List(ctx context.Context, page shared.ListFilters, filters ListFilters) ([]RFP, int, error) {
	var args shared.Args
	var conds []string
	if page.Search != "" {
		p := args.Add(page.SearchPattern())
		conds = append(conds, `(r.title ILIKE `+p+` OR r.description ILIKE `+p+`)`)
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, `r.status = ANY(`+args.Add(statuses)+`)`)
	}
	if filters.ClientID != nil {
		conds = append(conds, `r.client_id = `+args.Add(*filters.ClientID))
	}
	if filters.AssigneeID != nil {
		conds = append(conds, `r.assignee_id = `+args.Add(*filters.AssigneeID))
	}
	if filters.DueFrom != nil {
		conds = append(conds, `r.due_date >= `+args.Add(*filters.DueFrom))
	}
	if filters.DueTo != nil {
		conds = append(conds, `r.due_date <= `+args.Add(*filters.DueTo))
	}
	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+rfpFrom+where, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rfpColumns + rfpFrom + where +
		` ORDER BY ` + sortOrder(page.SortBy, page.Direction()) +
		` LIMIT ` + args.Add(page.Limit) + ` OFFSET ` + args.Add(page.Offset())
	rows, err := r.db.Query(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []RFP
	for rows.Next() {
		item, err := scanRFP(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (RFP, error) {
	item, err := scanRFP(r.db.QueryRow(ctx, `SELECT `+rfpColumns+rfpFrom+` WHERE r.id = $1`, id))
	return item, shared.MapDBError(err)
}

func (r *repository) Create(ctx context.Context, in Input) (RFP, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `INSERT INTO rfps (title, client_id, received_date, due_date, estimated_budget, estimated_duration, description, assignee_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		in.Title, in.ClientID, in.ReceivedDate, in.DueDate, in.EstimatedBudget, in.EstimatedDuration, in.Description, in.AssigneeID, string(StatusReceived)).Scan(&id)
	if err != nil {
		return RFP{}, shared.MapDBError(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, in Input) (RFP, error) {
	tag, err := r.db.Exec(ctx, `UPDATE rfps SET title = $1, client_id = $2, received_date = $3, due_date = $4, estimated_budget = $5,
		estimated_duration = $6, description = $7, assignee_id = $8, updated_at = NOW() WHERE id = $9`,
		in.Title, in.ClientID, in.ReceivedDate, in.DueDate, in.EstimatedBudget, in.EstimatedDuration, in.Description, in.AssigneeID, id)
	if err != nil {
		return RFP{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return RFP{}, shared.MapDBError(pgx.ErrNoRows)
	}
	return r.Get(ctx, id)
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, status Status, analyzedAt *time.Time) (RFP, error) {
	tag, err := r.db.Exec(ctx, `UPDATE rfps SET status = $1, analyzed_at = COALESCE($2, analyzed_at), updated_at = NOW() WHERE id = $3`,
		string(status), analyzedAt, id)
	if err != nil {
		return RFP{}, shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return RFP{}, shared.MapDBError(pgx.ErrNoRows)
	}
	return r.Get(ctx, id)
}

func (r *repository) SetAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage) error {
	tag, err := r.db.Exec(ctx, `UPDATE rfps SET ai_analysis = $1, updated_at = NOW() WHERE id = $2`, []byte(analysis), id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.MapDBError(pgx.ErrNoRows)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rfps WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.MapDBError(pgx.ErrNoRows)
	}
	return nil
}

func scanRFP(row pgx.Row) (RFP, error) {
	var (
		item        RFP
		status      string
		attachments []byte
		analysis    []byte
	)
	err := row.Scan(&item.ID, &item.Title, &item.ClientID, &item.ClientName, &item.ReceivedDate, &item.DueDate,
		&item.EstimatedBudget, &item.EstimatedDuration, &item.Description, &attachments, &status, &analysis,
		&item.AssigneeID, &item.CreatedAt, &item.UpdatedAt, &item.AnalyzedAt)
	if err != nil {
		return RFP{}, err
	}
	item.Status = Status(status)
	item.Attachments = json.RawMessage(attachments)
	if len(analysis) > 0 {
		item.AIAnalysis = json.RawMessage(analysis)
	}
	return item, nil
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "due":
		return "r.due_date " + dir + ", r.title ASC"
	case "status":
		return "r.status " + dir + ", r.due_date ASC"
	case "title":
		return "r.title " + dir
	default:
		return "r.received_date " + dir + ", r.created_at DESC"
	}
}
