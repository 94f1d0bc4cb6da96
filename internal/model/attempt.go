package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStatus is the normalized outcome of a single vendor call.
type AttemptStatus string

const (
	AttemptStatusSold        AttemptStatus = "sold"
	AttemptStatusRejected    AttemptStatus = "rejected"
	AttemptStatusPriceReject AttemptStatus = "price_reject"
	AttemptStatusError       AttemptStatus = "error"
)

// BidAttempt records one vendor call at one price floor. Sequence is
// 1-based and increases monotonically across every vendor tried for a lead.
type BidAttempt struct {
	ID           string           `json:"id,omitempty"`
	LeadID       string           `json:"lead_id,omitempty"`
	Vendor       string           `json:"vendor"`
	Price        decimal.Decimal  `json:"price"`
	Status       AttemptStatus    `json:"status"`
	SoldPrice    *decimal.Decimal `json:"sold_price,omitempty"`
	VendorLeadID string           `json:"vendor_lead_id,omitempty"`
	RedirectURL  string           `json:"redirect_url,omitempty"`
	Response     string           `json:"response,omitempty"`
	Sequence     int              `json:"sequence"`
	DurationMS   int64            `json:"duration_ms"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// WaterfallResult is the terminal outcome of one lead's run.
type WaterfallResult struct {
	LeadID        string           `json:"lead_id,omitempty"`
	Status        LeadStatus       `json:"status"`
	Vendor        string           `json:"vendor,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	RedirectURL   string           `json:"redirect_url,omitempty"`
	Message       string           `json:"message,omitempty"`
	TotalAttempts int              `json:"total_attempts"`
	Attempts      []BidAttempt     `json:"-"`
}

// Sold reports whether the lead was accepted by a vendor.
func (r *WaterfallResult) Sold() bool {
	return r != nil && r.Status == LeadStatusSold
}
