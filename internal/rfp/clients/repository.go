package clients

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
)

// Repository persists clients.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Client, int, error)
	Get(ctx context.Context, id uuid.UUID) (Client, error)
	ListRFPs(ctx context.Context, clientID uuid.UUID) ([]RFPSummary, error)
	Create(ctx context.Context, form ClientForm) (Client, error)
	Update(ctx context.Context, id uuid.UUID, form ClientForm) (Client, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const clientColumns = `id, name, business_number, industry, contact_name, contact_email, contact_phone, contact_position,
	COALESCE(address, ''), COALESCE(website, ''), COALESCE(notes, ''), created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Client, int, error) {
	var args shared.Args
	where := ` WHERE 1=1`
	if filters.Search != "" {
		p := args.Add(filters.SearchPattern())
		where += ` AND (name ILIKE ` + p + ` OR contact_name ILIKE ` + p + ` OR industry ILIKE ` + p + `)`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients`+where, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + clientColumns + ` FROM clients` + where +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.Direction()) +
		` LIMIT ` + args.Add(filters.Limit) + ` OFFSET ` + args.Add(filters.Offset())
	rows, err := r.db.Query(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	return c, shared.MapDBError(err)
}

func (r *repository) ListRFPs(ctx context.Context, clientID uuid.UUID) ([]RFPSummary, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title, status, received_date, due_date FROM rfps WHERE client_id = $1 ORDER BY received_date DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RFPSummary
	for rows.Next() {
		var s RFPSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.ReceivedDate, &s.DueDate); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, f ClientForm) (Client, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO clients (name, business_number, industry, contact_name, contact_email, contact_phone, contact_position, address, website, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
		RETURNING `+clientColumns,
		f.Name, f.BusinessNumber, f.Industry, f.ContactName, f.ContactEmail, f.ContactPhone, f.ContactPosition, f.Address, f.Website, f.Notes)
	c, err := scanClient(row)
	return c, shared.MapDBError(err)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, f ClientForm) (Client, error) {
	row := r.db.QueryRow(ctx, `UPDATE clients SET name = $1, business_number = $2, industry = $3, contact_name = $4, contact_email = $5,
		contact_phone = $6, contact_position = $7, address = NULLIF($8, ''), website = NULLIF($9, ''), notes = NULLIF($10, ''), updated_at = NOW()
		WHERE id = $11 RETURNING `+clientColumns,
		f.Name, f.BusinessNumber, f.Industry, f.ContactName, f.ContactEmail, f.ContactPhone, f.ContactPosition, f.Address, f.Website, f.Notes, id)
	c, err := scanClient(row)
	return c, shared.MapDBError(err)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return shared.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.MapDBError(pgx.ErrNoRows)
	}
	return nil
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.BusinessNumber, &c.Industry, &c.ContactName, &c.ContactEmail, &c.ContactPhone,
		&c.ContactPosition, &c.Address, &c.Website, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "created":
		return "created_at " + dir
	case "industry":
		return "industry " + dir + ", name ASC"
	default:
		return "name " + dir
	}
}
