// Package pricing holds the canonical bid price ladder and the per-vendor
// transforms that fit it to each vendor's accepted price domain.
package pricing

import (
	"github.com/shopspring/decimal"
)

// canonical is the vendor-agnostic, strictly descending price ladder.
var canonical = []string{"250", "150", "80", "60", "40", "20", "10", "5", "2", "1", "0.5"}

// CanonicalTiers returns a fresh copy of the canonical price ladder.
func CanonicalTiers() []decimal.Decimal {
	out := make([]decimal.Decimal, len(canonical))
	for i, s := range canonical {
		out[i] = decimal.RequireFromString(s)
	}
	return out
}

// Rule describes a vendor's accepted price domain.
type Rule struct {
	// Max caps every price above it. Zero means uncapped.
	Max decimal.Decimal
	// Min is the lowest price the vendor accepts; zero means "any price".
	Min decimal.Decimal
	// Granularity is the smallest price step the vendor accepts (1 for
	// whole-unit vendors). Zero leaves precision untouched.
	Granularity decimal.Decimal
}

// ITMediaRule accepts cent-precision prices with no ceiling.
func ITMediaRule() Rule {
	return Rule{Granularity: decimal.RequireFromString("0.01")}
}

// LeadsMarketRule accepts whole-dollar prices up to 230.
func LeadsMarketRule() Rule {
	return Rule{
		Max:         decimal.NewFromInt(230),
		Granularity: decimal.NewFromInt(1),
	}
}

// NewRule builds a Rule from configuration floats. Non-positive max and
// granularity disable the corresponding transform.
func NewRule(maxPrice, minPrice, granularity float64) Rule {
	r := Rule{Min: decimal.NewFromFloat(minPrice)}
	if maxPrice > 0 {
		r.Max = decimal.NewFromFloat(maxPrice)
	}
	if granularity > 0 {
		r.Granularity = decimal.NewFromFloat(granularity)
	}
	if r.Min.IsNegative() {
		r.Min = decimal.Zero
	}
	return r
}

// Apply maps a single price into the vendor's domain. Prices are never
// rounded up, so a vendor is never asked for more than the tier implied.
func (r Rule) Apply(p decimal.Decimal) decimal.Decimal {
	if r.Max.IsPositive() && p.GreaterThan(r.Max) {
		p = r.Max
	}
	if r.Granularity.IsPositive() {
		if p.LessThan(r.Granularity) {
			return r.Min
		}
		p = p.Div(r.Granularity).Floor().Mul(r.Granularity)
	}
	if p.LessThan(r.Min) {
		p = r.Min
	}
	return p
}

// Contains reports whether p lies within [Min, Max].
func (r Rule) Contains(p decimal.Decimal) bool {
	if p.LessThan(r.Min) {
		return false
	}
	return !r.Max.IsPositive() || p.LessThanOrEqual(r.Max)
}

// Adapt applies the rule to every tier and collapses consecutive equal
// prices, keeping the first occurrence. A descending input stays strictly
// descending.
func Adapt(r Rule, tiers []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(tiers))
	for _, p := range tiers {
		p = r.Apply(p)
		if n := len(out); n > 0 && out[n-1].Equal(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
