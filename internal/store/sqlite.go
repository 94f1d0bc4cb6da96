package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-router/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Prices are kept
// as TEXT so they round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: SQLite has a single writer and pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	lead         TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	sold_price   TEXT,
	sold_vendor  TEXT NOT NULL DEFAULT '',
	redirect_url TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS bid_attempts (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id),
	vendor         TEXT NOT NULL,
	price          TEXT NOT NULL,
	status         TEXT NOT NULL,
	sold_price     TEXT,
	vendor_lead_id TEXT NOT NULL DEFAULT '',
	redirect_url   TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL DEFAULT '',
	sequence       INTEGER NOT NULL,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_bid_attempts_lead_seq ON bid_attempts(lead_id, sequence);
CREATE INDEX IF NOT EXISTS idx_bid_attempts_vendor_status ON bid_attempts(vendor, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertLead(ctx context.Context, lead model.Lead) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	leadJSON, err := json.Marshal(lead)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal lead")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, lead, email, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(leadJSON), lead.Email, string(model.LeadStatusPending), now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert lead")
	}
	return id, nil
}

func (s *SQLiteStore) InsertAttempt(ctx context.Context, leadID string, a model.BidAttempt) error {
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bid_attempts (`+attemptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, leadID, a.Vendor, a.Price.String(), string(a.Status), nullablePrice(a.SoldPrice),
		a.VendorLeadID, a.RedirectURL, a.Response, a.Sequence, a.DurationMS, a.Error, created.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert attempt %s #%d", leadID, a.Sequence)
	}
	return nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, leadID string, u model.StatusUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, sold_price = ?, sold_vendor = ?, redirect_url = ?, updated_at = ? WHERE id = ?`,
		string(u.Status), nullablePrice(u.SoldPrice), u.SoldVendor, u.RedirectURL, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", leadID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: update lead status %s", leadID)
	}
	return nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.LeadRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	rec, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Email != "" {
		query += ` AND email = ?`
		args = append(args, filter.Email)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.LeadRecord
	for rows.Next() {
		rec, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *rec)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, leadID string) ([]model.BidAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM bid_attempts WHERE lead_id = ? ORDER BY sequence`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list attempts %s", leadID)
	}
	return collectSQLAttempts(rows)
}

func (s *SQLiteStore) ListAllAttempts(ctx context.Context, filter AttemptFilter) ([]model.BidAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM bid_attempts WHERE 1=1`
	var args []any

	if filter.Vendor != "" {
		query += ` AND vendor = ?`
		args = append(args, filter.Vendor)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, lead_id, sequence`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list all attempts")
	}
	return collectSQLAttempts(rows)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{ByStatus: make(map[model.LeadStatus]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		st.ByStatus[model.LeadStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by status iterate")
	}

	rows, err = s.db.QueryContext(ctx, `SELECT vendor,
		COUNT(*),
		SUM(CASE WHEN status = 'sold' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'price_reject' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)
		FROM bid_attempts GROUP BY vendor ORDER BY vendor`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by vendor")
	}
	for rows.Next() {
		v := model.VendorStats{Revenue: decimal.Zero}
		if err := rows.Scan(&v.Vendor, &v.Attempts, &v.Sold, &v.Rejected, &v.PriceRejects, &v.Errors); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan vendor stats")
		}
		st.Vendors = append(st.Vendors, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by vendor iterate")
	}

	// SQLite has no exact decimal SUM, so revenue is totalled here.
	rows, err = s.db.QueryContext(ctx, `SELECT vendor, sold_price FROM bid_attempts WHERE status = 'sold' AND sold_price IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats revenue")
	}
	revenue := make(map[string]decimal.Decimal)
	for rows.Next() {
		var vendor string
		var price decimal.Decimal
		if err := rows.Scan(&vendor, &price); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan revenue")
		}
		revenue[vendor] = revenue[vendor].Add(price)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats revenue iterate")
	}
	for i := range st.Vendors {
		if r, ok := revenue[st.Vendors[i].Vendor]; ok {
			st.Vendors[i].Revenue = r
		}
	}

	rows, err = s.db.QueryContext(ctx, `SELECT vendor, price,
		COUNT(*),
		SUM(CASE WHEN status = 'sold' THEN 1 ELSE 0 END)
		FROM bid_attempts GROUP BY vendor, price ORDER BY vendor, CAST(price AS REAL) DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by tier")
	}
	defer rows.Close()
	for rows.Next() {
		var t model.TierStats
		if err := rows.Scan(&t.Vendor, &t.Price, &t.Attempts, &t.Sold); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier stats")
		}
		st.Tiers = append(st.Tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by tier iterate")
	}

	finishStats(st)
	return st, nil
}

func nullablePrice(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func collectSQLAttempts(rows *sql.Rows) ([]model.BidAttempt, error) {
	defer rows.Close()
	var out []model.BidAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}
