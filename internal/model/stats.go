package model

import "github.com/shopspring/decimal"

// VendorStats aggregates attempt outcomes for one vendor.
type VendorStats struct {
	Vendor       string          `json:"vendor" yaml:"vendor"`
	Attempts     int             `json:"attempts" yaml:"attempts"`
	Sold         int             `json:"sold" yaml:"sold"`
	Rejected     int             `json:"rejected" yaml:"rejected"`
	PriceRejects int             `json:"price_rejects" yaml:"price_rejects"`
	Errors       int             `json:"errors" yaml:"errors"`
	Revenue      decimal.Decimal `json:"revenue" yaml:"revenue"`
}

// TierStats aggregates attempts made to one vendor at one price floor.
type TierStats struct {
	Vendor   string          `json:"vendor" yaml:"vendor"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
	Attempts int             `json:"attempts" yaml:"attempts"`
	Sold     int             `json:"sold" yaml:"sold"`
}

// AcceptRate returns the fraction of attempts at this tier that sold.
func (t TierStats) AcceptRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Sold) / float64(t.Attempts)
}

// Stats summarizes leads and attempts for reporting.
type Stats struct {
	TotalLeads int                `json:"total_leads" yaml:"total_leads"`
	ByStatus   map[LeadStatus]int `json:"by_status" yaml:"by_status"`
	Vendors    []VendorStats      `json:"vendors" yaml:"vendors"`
	Tiers      []TierStats        `json:"tiers" yaml:"tiers"`
}

// SoldRate returns the fraction of finished leads that sold.
func (s *Stats) SoldRate() float64 {
	finished := s.ByStatus[LeadStatusSold] + s.ByStatus[LeadStatusRejected] + s.ByStatus[LeadStatusError]
	if finished == 0 {
		return 0
	}
	return float64(s.ByStatus[LeadStatusSold]) / float64(finished)
}
