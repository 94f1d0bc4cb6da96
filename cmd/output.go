package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-router/internal/model"
)

// writeFormatted prints v as indented JSON or as YAML. YAML keys follow the
// JSON field names.
func writeFormatted(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "output: encode json")
	case "yaml", "yml":
		b, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "output: marshal")
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return eris.Wrap(err, "output: unmarshal")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "output: encode yaml")
		}
		return eris.Wrap(enc.Close(), "output: flush yaml")
	default:
		return eris.Errorf("output: unknown format %q (want json or yaml)", format)
	}
}

// leadResponse is the caller-facing outcome of one waterfall run.
type leadResponse struct {
	Status        model.LeadStatus `json:"status"`
	LeadID        string           `json:"lead_id,omitempty"`
	Vendor        string           `json:"vendor,omitempty"`
	Price         any              `json:"price,omitempty"`
	RedirectURL   string           `json:"redirect_url,omitempty"`
	Message       string           `json:"message,omitempty"`
	TotalAttempts *int             `json:"total_attempts,omitempty"`
}

// newLeadResponse keeps only the fields callers see for the result's status.
// Error results omit the attempt count.
func newLeadResponse(r *model.WaterfallResult) leadResponse {
	resp := leadResponse{Status: r.Status, LeadID: r.LeadID}
	total := r.TotalAttempts
	switch r.Status {
	case model.LeadStatusSold:
		resp.Vendor = r.Vendor
		if r.Price != nil {
			resp.Price = r.Price
		}
		resp.RedirectURL = r.RedirectURL
		resp.TotalAttempts = &total
	case model.LeadStatusRejected:
		resp.Message = r.Message
		resp.TotalAttempts = &total
	default:
		resp.Message = r.Message
	}
	return resp
}

// leadView is a stored lead with its attempt trail, SSN masked.
type leadView struct {
	Lead     model.LeadRecord   `json:"lead"`
	Attempts []model.BidAttempt `json:"attempts"`
}

func newLeadView(rec *model.LeadRecord, attempts []model.BidAttempt) leadView {
	v := leadView{Lead: *rec, Attempts: attempts}
	v.Lead.Lead.SSN = maskSSN(rec.Lead.SSN)
	if v.Attempts == nil {
		v.Attempts = []model.BidAttempt{}
	}
	return v
}

func maskSSN(ssn string) string {
	if len(ssn) <= 4 {
		return strings.Repeat("*", len(ssn))
	}
	return strings.Repeat("*", len(ssn)-4) + ssn[len(ssn)-4:]
}

// statsView adds the derived sold rate to the stored aggregates.
type statsView struct {
	*model.Stats
	SoldRate float64 `json:"sold_rate"`
}

func newStatsView(s *model.Stats) statsView {
	return statsView{Stats: s, SoldRate: s.SoldRate()}
}
