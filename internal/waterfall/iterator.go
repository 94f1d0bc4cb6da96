package waterfall

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/resilience"
	"github.com/sells-group/lead-router/internal/waterfall/vendor"
)

// RunVendor offers lead to one vendor at each tier in order until it sells.
// Attempts are numbered from startSeq. A counter-offer gets exactly one
// retry at the suggested price, after which the vendor is done whatever
// the answer. Rejections and errors move on to the next tier.
func RunVendor(ctx context.Context, adapter vendor.Adapter, lead model.Lead, tiers []decimal.Decimal, startSeq int) VendorRun {
	run := VendorRun{
		Vendor: adapter.Name(),
		Status: model.AttemptStatusRejected,
	}
	seq := max(startSeq, 1)

	post := func(price decimal.Decimal) vendor.Outcome {
		start := time.Now()
		out := safePost(ctx, adapter, lead, price)
		a := newAttempt(run.Vendor, price, out, seq, time.Since(start))
		run.Attempts = append(run.Attempts, a)
		logAttempt(a, out)
		seq++
		return out
	}

	countered := false
	for _, price := range tiers {
		if err := ctx.Err(); err != nil {
			run.Err = err
			return run
		}

		out := post(price)
		if out.Kind == model.AttemptStatusPriceReject && !countered {
			countered = true
			if err := ctx.Err(); err != nil {
				run.Err = err
				return run
			}
			out = post(out.SuggestedPrice)
			if out.IsSold() {
				run.markSold(out)
			}
			return run
		}
		if out.IsSold() {
			run.markSold(out)
			return run
		}
	}
	return run
}

// safePost calls the adapter, turning a panic into an error outcome so the
// attempt is recorded like any other vendor failure.
func safePost(ctx context.Context, adapter vendor.Adapter, lead model.Lead, price decimal.Decimal) (out vendor.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = vendor.Failed(eris.Errorf("%s: panic: %v", strings.ToLower(adapter.Name()), r), "")
		}
	}()
	return adapter.Post(ctx, lead, price)
}

func (r *VendorRun) markSold(out vendor.Outcome) {
	price := out.Price
	r.Status = model.AttemptStatusSold
	r.SoldPrice = &price
	r.VendorLeadID = out.VendorLeadID
	r.RedirectURL = out.RedirectURL
}

func newAttempt(vendorName string, price decimal.Decimal, out vendor.Outcome, seq int, elapsed time.Duration) model.BidAttempt {
	a := model.BidAttempt{
		Vendor:     vendorName,
		Price:      price,
		Status:     out.Kind,
		Response:   out.Raw,
		Sequence:   seq,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if out.IsSold() {
		sold := out.Price
		a.SoldPrice = &sold
		a.VendorLeadID = out.VendorLeadID
		a.RedirectURL = out.RedirectURL
	}
	if out.Err != nil {
		a.Error = out.Err.Error()
	}
	return a
}

func logAttempt(a model.BidAttempt, out vendor.Outcome) {
	fields := []zap.Field{
		zap.String("vendor", a.Vendor),
		zap.Stringer("price", a.Price),
		zap.Int("sequence", a.Sequence),
		zap.String("status", string(a.Status)),
		zap.Int64("duration_ms", a.DurationMS),
	}
	switch out.Kind {
	case model.AttemptStatusError:
		zap.L().Warn("waterfall: vendor error", append(fields,
			zap.String("kind", string(resilience.Classify(out.Err))),
			zap.Bool("transient", resilience.IsTransient(out.Err)),
			zap.Error(out.Err),
		)...)
	case model.AttemptStatusPriceReject:
		zap.L().Info("waterfall: counter-offer", append(fields, zap.Stringer("suggested_price", out.SuggestedPrice))...)
	default:
		zap.L().Info("waterfall: attempt", fields...)
	}
}
