package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeadStatus represents the disposition of a lead in the sales waterfall.
type LeadStatus string

const (
	LeadStatusPending  LeadStatus = "pending"
	LeadStatusSold     LeadStatus = "sold"
	LeadStatusRejected LeadStatus = "rejected"
	LeadStatusError    LeadStatus = "error"
)

// Lead is the canonical applicant record captured by the application form.
// It is not modified once validated; the waterfall only reads it.
type Lead struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`

	BirthMonth int `json:"birth_month"`
	BirthDay   int `json:"birth_day"`
	BirthYear  int `json:"birth_year"`

	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zip            string `json:"zip"`
	YearsAtAddress int    `json:"years_at_address"`
	RentOrOwn      string `json:"rent_or_own"`

	RequestedAmount  int    `json:"requested_amount"`
	SSN              string `json:"ssn"`
	IncomeSource     string `json:"income_source"`
	MonthlyNetIncome int    `json:"monthly_net_income"`

	CallTime string `json:"call_time,omitempty"`

	LoanReason    string `json:"loan_reason,omitempty"`
	CreditTier    string `json:"credit_tier,omitempty"`
	Note          string `json:"note,omitempty"`
	TrackingToken string `json:"tracking_token,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// BirthDate returns the applicant's date of birth at midnight UTC.
func (l Lead) BirthDate() time.Time {
	return time.Date(l.BirthYear, time.Month(l.BirthMonth), l.BirthDay, 0, 0, 0, 0, time.UTC)
}

// Age returns the applicant's age in whole years as of now. One year is
// subtracted when the birthday has not yet occurred in now's calendar year.
func (l Lead) Age(now time.Time) int {
	age := now.Year() - l.BirthYear
	m := int(now.Month())
	if m < l.BirthMonth || (m == l.BirthMonth && now.Day() < l.BirthDay) {
		age--
	}
	return age
}

// LeadRecord is a persisted lead with its terminal disposition.
type LeadRecord struct {
	ID          string           `json:"id"`
	Lead        Lead             `json:"lead"`
	Status      LeadStatus       `json:"status"`
	SoldPrice   *decimal.Decimal `json:"sold_price,omitempty"`
	SoldVendor  string           `json:"sold_vendor,omitempty"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// StatusUpdate is the single terminal write applied to a lead after its
// waterfall run. Sale fields are only set when Status is LeadStatusSold.
type StatusUpdate struct {
	Status      LeadStatus
	SoldPrice   *decimal.Decimal
	SoldVendor  string
	RedirectURL string
}
