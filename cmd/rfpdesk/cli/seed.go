package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
)

// DefaultSeedPassword satisfies the sign-up password policy.
const DefaultSeedPassword = "Rfpdesk#2024"

// DemoAccount is one confirmed account with a profile.
type DemoAccount struct {
	Email      string
	Name       string
	Role       authz.Role
	Department string
	Position   string
}

// DemoAccounts returns one account per role.
func DemoAccounts() []DemoAccount {
	return []DemoAccount{
		{"admin@rfpdesk.local", "Avery Admin", authz.RoleAdmin, "Operations", "Administrator"},
		{"manager@rfpdesk.local", "Morgan Manager", authz.RoleManager, "Sales", "Bid manager"},
		{"writer@rfpdesk.local", "Wren Writer", authz.RoleWriter, "Presales", "Proposal writer"},
		{"reviewer@rfpdesk.local", "Riley Reviewer", authz.RoleReviewer, "Engineering", "Technical reviewer"},
	}
}

// SeedResult counts the rows created by Seed.
type SeedResult struct {
	Accounts     int
	Clients      int
	RFPs         int
	Requirements int
}

// Seed inserts demo accounts and a sample RFP. Existing rows are left alone,
// so running it twice is safe.
func Seed(ctx context.Context, tx pgx.Tx, password string) (SeedResult, error) {
	if err := auth.CheckPasswordPolicy(password); err != nil {
		return SeedResult{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SeedResult{}, fmt.Errorf("hash password: %w", err)
	}

	var res SeedResult
	ids := make(map[authz.Role]uuid.UUID)
	for _, acct := range DemoAccounts() {
		id, created, err := seedAccount(ctx, tx, acct, string(hash))
		if err != nil {
			return res, fmt.Errorf("seed %s: %w", acct.Email, err)
		}
		ids[acct.Role] = id
		if created {
			res.Accounts++
		}
	}

	clientID, created, err := seedClient(ctx, tx)
	if err != nil {
		return res, fmt.Errorf("seed client: %w", err)
	}
	if created {
		res.Clients++
	}

	rfpID, created, err := seedRFP(ctx, tx, clientID, ids[authz.RoleWriter])
	if err != nil {
		return res, fmt.Errorf("seed rfp: %w", err)
	}
	if !created {
		return res, nil
	}
	res.RFPs++
	n, err := seedRequirements(ctx, tx, rfpID)
	if err != nil {
		return res, fmt.Errorf("seed requirements: %w", err)
	}
	res.Requirements = n
	return res, nil
}

func seedAccount(ctx context.Context, tx pgx.Tx, acct DemoAccount, hash string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM auth_accounts WHERE LOWER(email) = LOWER($1)`, acct.Email).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, err
	}
	id = uuid.New()
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		INSERT INTO auth_accounts (id, email, password_hash, email_confirmed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $4)`, id, acct.Email, hash, now); err != nil {
		return uuid.Nil, false, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (id, email, name, role, department, position, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)`,
		id, acct.Email, acct.Name, string(acct.Role), acct.Department, acct.Position, now); err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

const demoBusinessNumber = "123-45-67890"

func seedClient(ctx context.Context, tx pgx.Tx) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM clients WHERE business_number = $1`, demoBusinessNumber).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO clients (name, business_number, industry, contact_name, contact_email, contact_phone, contact_position, website)
		VALUES ('Northwind Logistics', $1, 'Logistics', 'Dana Park', 'dana.park@northwind.example', '02-555-0199', 'IT Director', 'https://northwind.example')
		RETURNING id`, demoBusinessNumber).Scan(&id)
	return id, err == nil, err
}

const demoRFPTitle = "Fleet tracking portal"

func seedRFP(ctx context.Context, tx pgx.Tx, clientID, assignee uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM rfps WHERE client_id = $1 AND title = $2`, clientID, demoRFPTitle).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, err
	}
	received := time.Now().UTC().Truncate(24 * time.Hour)
	var assigneeID *uuid.UUID
	if assignee != uuid.Nil {
		assigneeID = &assignee
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO rfps (title, client_id, received_date, due_date, estimated_budget, estimated_duration, description, assignee_id)
		VALUES ($1, $2, $3, $4, 180000, 120, $5, $6)
		RETURNING id`,
		demoRFPTitle, clientID, received, received.AddDate(0, 0, 21),
		"Web portal for dispatchers to track vehicles in real time, with role based access and monthly reports.",
		assigneeID).Scan(&id)
	return id, err == nil, err
}

func seedRequirements(ctx context.Context, tx pgx.Tx, rfpID uuid.UUID) (int, error) {
	reqs := []struct {
		category, priority, title, description, complexity string
		hours                                              float64
	}{
		{"functional", "must", "Live vehicle map", "Dispatchers see every active vehicle on a map refreshed at least every 30 seconds.", "high", 120},
		{"functional", "should", "Monthly mileage report", "Export mileage per vehicle and driver as CSV and PDF.", "medium", 40},
		{"non-functional", "must", "Single sign-on", "Users sign in with the company directory.", "medium", 32},
		{"technical", "could", "Public API", "Read-only REST API for partner integrations.", "low", 24},
	}
	batch := &pgx.Batch{}
	for i, r := range reqs {
		batch.Queue(`
			INSERT INTO requirements (rfp_id, category, priority, title, description, complexity, estimated_hours, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rfpID, r.category, r.priority, r.title, r.description, r.complexity, r.hours, i+1)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return len(reqs), nil
}
