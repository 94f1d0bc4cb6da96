// Package validate normalizes and checks loan applications before they
// enter the waterfall.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/lead-router/internal/model"
)

// Application limits.
const (
	MinAmount        = 100
	MaxAmount        = 5000
	MinMonthlyIncome = 800
	MinAge           = 18
)

// Result reports whether a lead may be sold, and why not.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Normalize trims every text field, strips formatting from numeric
// identifiers and fixes the case of names, city, state and email.
func Normalize(l model.Lead) model.Lead {
	title := cases.Title(language.English)

	l.FirstName = title.String(strings.TrimSpace(l.FirstName))
	l.LastName = title.String(strings.TrimSpace(l.LastName))
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	l.Phone = digits(l.Phone)

	l.Address = strings.TrimSpace(l.Address)
	l.City = title.String(strings.TrimSpace(l.City))
	l.State = strings.ToUpper(strings.TrimSpace(l.State))
	l.Zip = digits(l.Zip)
	l.RentOrOwn = strings.ToLower(strings.TrimSpace(l.RentOrOwn))

	l.SSN = digits(l.SSN)
	l.IncomeSource = strings.TrimSpace(l.IncomeSource)
	l.CallTime = strings.TrimSpace(l.CallTime)

	l.LoanReason = strings.TrimSpace(l.LoanReason)
	l.CreditTier = strings.TrimSpace(l.CreditTier)
	l.Note = strings.TrimSpace(l.Note)
	l.TrackingToken = strings.TrimSpace(l.TrackingToken)
	return l
}

// Lead checks a normalized lead against the application rules as of now.
func Lead(l model.Lead, now time.Time) Result {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	required := []struct {
		name, value string
	}{
		{"first_name", l.FirstName},
		{"last_name", l.LastName},
		{"email", l.Email},
		{"phone", l.Phone},
		{"address", l.Address},
		{"city", l.City},
		{"state", l.State},
		{"zip", l.Zip},
		{"rent_or_own", l.RentOrOwn},
		{"ssn", l.SSN},
		{"income_source", l.IncomeSource},
		{"call_time", l.CallTime},
	}
	missing := make(map[string]bool)
	for _, f := range required {
		if f.value == "" {
			missing[f.name] = true
			fail("%s is required", f.name)
		}
	}

	if l.RequestedAmount < MinAmount || l.RequestedAmount > MaxAmount {
		fail("requested_amount must be between %d and %d", MinAmount, MaxAmount)
	}
	if l.MonthlyNetIncome < MinMonthlyIncome {
		fail("monthly_net_income must be at least %d", MinMonthlyIncome)
	}
	if l.YearsAtAddress < 0 {
		fail("years_at_address cannot be negative")
	}

	if !missing["phone"] && !exactDigits(l.Phone, 10) {
		fail("phone must be exactly 10 digits")
	}
	if !missing["ssn"] && !exactDigits(l.SSN, 9) {
		fail("ssn must be exactly 9 digits")
	}
	if !missing["zip"] && !exactDigits(l.Zip, 5) {
		fail("zip must be exactly 5 digits")
	}
	if !missing["email"] && !govalidator.IsEmail(l.Email) {
		fail("email is not a valid address")
	}
	if !missing["state"] && (len(l.State) != 2 || !govalidator.IsAlpha(l.State)) {
		fail("state must be a two-letter code")
	}
	if !missing["rent_or_own"] && l.RentOrOwn != "rent" && l.RentOrOwn != "own" {
		fail("rent_or_own must be rent or own")
	}

	if !validBirthDate(l) {
		fail("date of birth is not a valid date")
	} else if l.Age(now) < MinAge {
		fail("applicant must be at least %d years old", MinAge)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validBirthDate(l model.Lead) bool {
	if l.BirthYear < 1900 || l.BirthMonth < 1 || l.BirthMonth > 12 || l.BirthDay < 1 {
		return false
	}
	d := l.BirthDate()
	return d.Day() == l.BirthDay && int(d.Month()) == l.BirthMonth
}

func exactDigits(s string, n int) bool {
	return len(s) == n && govalidator.IsNumeric(s)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
