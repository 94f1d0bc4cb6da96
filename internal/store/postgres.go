package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-router/internal/db"
	"github.com/sells-group/lead-router/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the writes every waterfall run performs.
var preparedStatements = map[string]string{
	"insert_lead":        insertLeadSQL,
	"insert_attempt":     insertAttemptSQL,
	"update_lead_status": updateLeadStatusSQL,
}

const (
	insertLeadSQL       = `INSERT INTO leads (id, lead, email, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	insertAttemptSQL    = `INSERT INTO bid_attempts (id, lead_id, vendor, price, status, sold_price, vendor_lead_id, redirect_url, response, sequence, duration_ms, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	updateLeadStatusSQL = `UPDATE leads SET status = $1, sold_price = $2, sold_vendor = $3, redirect_url = $4, updated_at = $5 WHERE id = $6`

	leadColumns    = `id, lead, status, sold_price, sold_vendor, redirect_url, created_at, updated_at`
	attemptColumns = `id, lead_id, vendor, price, status, sold_price, vendor_lead_id, redirect_url, response, sequence, duration_ms, error, created_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	lead         JSONB NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	sold_price   NUMERIC(10,2),
	sold_vendor  TEXT NOT NULL DEFAULT '',
	redirect_url TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bid_attempts (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id),
	vendor         TEXT NOT NULL,
	price          NUMERIC(10,2) NOT NULL,
	status         TEXT NOT NULL,
	sold_price     NUMERIC(10,2),
	vendor_lead_id TEXT NOT NULL DEFAULT '',
	redirect_url   TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL DEFAULT '',
	sequence       INTEGER NOT NULL,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bid_attempts_lead_seq ON bid_attempts(lead_id, sequence);
CREATE INDEX IF NOT EXISTS idx_bid_attempts_vendor_status ON bid_attempts(vendor, status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead model.Lead) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	leadJSON, err := json.Marshal(lead)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal lead")
	}

	_, err = s.pool.Exec(ctx, insertLeadSQL,
		id, leadJSON, lead.Email, string(model.LeadStatusPending), now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert lead")
	}
	return id, nil
}

func (s *PostgresStore) InsertAttempt(ctx context.Context, leadID string, a model.BidAttempt) error {
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, insertAttemptSQL,
		id, leadID, a.Vendor, a.Price, string(a.Status), a.SoldPrice,
		a.VendorLeadID, a.RedirectURL, a.Response, a.Sequence, a.DurationMS, a.Error, created,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert attempt %s #%d", leadID, a.Sequence)
	}
	return nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID string, u model.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx, updateLeadStatusSQL,
		string(u.Status), u.SoldPrice, u.SoldVendor, u.RedirectURL, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update lead status %s", leadID)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.LeadRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	rec, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Email != "" {
		query += fmt.Sprintf(` AND email = $%d`, argIdx)
		args = append(args, filter.Email)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.LeadRecord
	for rows.Next() {
		rec, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *rec)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) ListAttempts(ctx context.Context, leadID string) ([]model.BidAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM bid_attempts WHERE lead_id = $1 ORDER BY sequence`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list attempts %s", leadID)
	}
	return collectAttempts(rows)
}

func (s *PostgresStore) ListAllAttempts(ctx context.Context, filter AttemptFilter) ([]model.BidAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM bid_attempts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Vendor != "" {
		query += fmt.Sprintf(` AND vendor = $%d`, argIdx)
		args = append(args, filter.Vendor)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, lead_id, sequence`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list all attempts")
	}
	return collectAttempts(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{ByStatus: make(map[model.LeadStatus]int)}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		st.ByStatus[model.LeadStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats by status iterate")
	}

	rows, err = s.pool.Query(ctx, `SELECT vendor,
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'sold'),
		COUNT(*) FILTER (WHERE status = 'rejected'),
		COUNT(*) FILTER (WHERE status = 'price_reject'),
		COUNT(*) FILTER (WHERE status = 'error'),
		COALESCE(SUM(sold_price) FILTER (WHERE status = 'sold'), 0)
		FROM bid_attempts GROUP BY vendor ORDER BY vendor`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by vendor")
	}
	for rows.Next() {
		var v model.VendorStats
		if err := rows.Scan(&v.Vendor, &v.Attempts, &v.Sold, &v.Rejected, &v.PriceRejects, &v.Errors, &v.Revenue); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan vendor stats")
		}
		st.Vendors = append(st.Vendors, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats by vendor iterate")
	}

	rows, err = s.pool.Query(ctx, `SELECT vendor, price,
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'sold')
		FROM bid_attempts GROUP BY vendor, price ORDER BY vendor, price DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by tier")
	}
	defer rows.Close()
	for rows.Next() {
		var t model.TierStats
		if err := rows.Scan(&t.Vendor, &t.Price, &t.Attempts, &t.Sold); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier stats")
		}
		st.Tiers = append(st.Tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats by tier iterate")
	}

	finishStats(st)
	return st, nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*model.LeadRecord, error) {
	var rec model.LeadRecord
	var leadJSON []byte
	var status string
	var soldPrice decimal.NullDecimal

	if err := row.Scan(&rec.ID, &leadJSON, &status, &soldPrice, &rec.SoldVendor, &rec.RedirectURL, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(leadJSON, &rec.Lead); err != nil {
		return nil, eris.Wrap(err, "unmarshal lead")
	}
	rec.Status = model.LeadStatus(status)
	if soldPrice.Valid {
		p := soldPrice.Decimal
		rec.SoldPrice = &p
	}
	return &rec, nil
}

func scanAttempt(row rowScanner) (model.BidAttempt, error) {
	var a model.BidAttempt
	var status string
	var soldPrice decimal.NullDecimal

	err := row.Scan(&a.ID, &a.LeadID, &a.Vendor, &a.Price, &status, &soldPrice,
		&a.VendorLeadID, &a.RedirectURL, &a.Response, &a.Sequence, &a.DurationMS, &a.Error, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	a.Status = model.AttemptStatus(status)
	if soldPrice.Valid {
		p := soldPrice.Decimal
		a.SoldPrice = &p
	}
	return a, nil
}

func collectAttempts(rows pgx.Rows) ([]model.BidAttempt, error) {
	defer rows.Close()
	var out []model.BidAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}
