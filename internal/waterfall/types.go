package waterfall

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/waterfall/vendor"
)

const (
	// RejectedMessage is returned when no vendor bought the lead.
	RejectedMessage = "No lender was able to accept your application at this time."
	// ErrorMessage is the only failure detail shown to applicants.
	ErrorMessage = "We were unable to process your application. Please try again later."
)

// Step pairs a vendor with the price tiers it is offered, highest first.
type Step struct {
	Adapter vendor.Adapter
	Tiers   []decimal.Decimal
}

// VendorRun is the outcome of driving one vendor through its tiers.
type VendorRun struct {
	Vendor string `json:"vendor"`
	// Status is sold or rejected. Vendor errors collapse into rejected.
	Status       model.AttemptStatus `json:"status"`
	SoldPrice    *decimal.Decimal    `json:"sold_price,omitempty"`
	VendorLeadID string              `json:"vendor_lead_id,omitempty"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
	Attempts     []model.BidAttempt  `json:"attempts"`

	// Err is set when the run stopped early because its context ended.
	Err error `json:"-"`
}

// Sold reports whether the vendor bought the lead.
func (r *VendorRun) Sold() bool {
	return r.Status == model.AttemptStatusSold
}

// TotalAttempts is the number of vendor calls made, counter-offer retries included.
func (r *VendorRun) TotalAttempts() int {
	return len(r.Attempts)
}
