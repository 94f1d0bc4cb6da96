package leadio

import (
	"time"

	"github.com/sells-group/lead-router/internal/model"
)

// Report sheet names.
const (
	SheetAttempts = "Attempts"
	SheetVendors  = "Vendors"
	SheetTiers    = "Tiers"
)

// WriteReport exports the attempt audit trail and aggregate statistics.
func WriteReport(path string, attempts []model.BidAttempt, stats *model.Stats) error {
	sheets := []Sheet{attemptSheet(attempts)}
	if stats != nil {
		sheets = append(sheets, vendorSheet(stats), tierSheet(stats))
	}
	return WriteXLSX(path, sheets)
}

func attemptSheet(attempts []model.BidAttempt) Sheet {
	s := Sheet{
		Name:   SheetAttempts,
		Header: []string{"lead_id", "sequence", "vendor", "price", "status", "sold_price", "vendor_lead_id", "redirect_url", "duration_ms", "error", "created_at"},
	}
	for _, a := range attempts {
		sold := ""
		if a.SoldPrice != nil {
			sold = a.SoldPrice.StringFixed(2)
		}
		s.Rows = append(s.Rows, []any{
			a.LeadID,
			a.Sequence,
			a.Vendor,
			a.Price.StringFixed(2),
			string(a.Status),
			sold,
			a.VendorLeadID,
			a.RedirectURL,
			a.DurationMS,
			a.Error,
			a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return s
}

func vendorSheet(stats *model.Stats) Sheet {
	s := Sheet{
		Name:   SheetVendors,
		Header: []string{"vendor", "attempts", "sold", "rejected", "price_rejects", "errors", "revenue"},
	}
	for _, v := range stats.Vendors {
		s.Rows = append(s.Rows, []any{v.Vendor, v.Attempts, v.Sold, v.Rejected, v.PriceRejects, v.Errors, v.Revenue.StringFixed(2)})
	}
	return s
}

func tierSheet(stats *model.Stats) Sheet {
	s := Sheet{
		Name:   SheetTiers,
		Header: []string{"vendor", "price", "attempts", "sold", "accept_rate"},
	}
	for _, t := range stats.Tiers {
		s.Rows = append(s.Rows, []any{t.Vendor, t.Price.StringFixed(2), t.Attempts, t.Sold, t.AcceptRate()})
	}
	return s
}
