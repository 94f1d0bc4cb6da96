package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-router/internal/config"
	"github.com/sells-group/lead-router/internal/model"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = eris.New("store: not found")

const defaultListLimit = 100

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status model.LeadStatus `json:"status,omitempty"`
	Email  string           `json:"email,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// AttemptFilter specifies criteria for exporting bid attempts.
type AttemptFilter struct {
	Vendor string              `json:"vendor,omitempty"`
	Status model.AttemptStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
}

// Store defines the persistence interface for leads and their bid attempts.
type Store interface {
	// Waterfall recording
	InsertLead(ctx context.Context, lead model.Lead) (string, error)
	InsertAttempt(ctx context.Context, leadID string, attempt model.BidAttempt) error
	UpdateLeadStatus(ctx context.Context, leadID string, update model.StatusUpdate) error

	// Reads
	GetLead(ctx context.Context, id string) (*model.LeadRecord, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error)
	ListAttempts(ctx context.Context, leadID string) ([]model.BidAttempt, error)
	ListAllAttempts(ctx context.Context, filter AttemptFilter) ([]model.BidAttempt, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// finishStats fills the derived totals once the per-status counts are in.
func finishStats(s *model.Stats) {
	s.TotalLeads = 0
	for _, n := range s.ByStatus {
		s.TotalLeads += n
	}
}
