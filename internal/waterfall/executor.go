// Package waterfall sells a lead by offering it to each vendor in turn at
// descending price floors until one accepts.
package waterfall

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-router/internal/model"
)

// Recorder persists a lead, its attempts and its final disposition.
type Recorder interface {
	InsertLead(ctx context.Context, lead model.Lead) (string, error)
	InsertAttempt(ctx context.Context, leadID string, attempt model.BidAttempt) error
	UpdateLeadStatus(ctx context.Context, leadID string, update model.StatusUpdate) error
}

// Executor runs the vendor waterfall for one lead at a time. It holds no
// per-lead state and is safe for concurrent use.
type Executor struct {
	rec   Recorder
	steps []Step
}

// NewExecutor creates an executor that offers each lead to primary first
// and to fallback only when primary does not buy it.
func NewExecutor(rec Recorder, primary, fallback Step) *Executor {
	return &Executor{
		rec:   rec,
		steps: []Step{primary, fallback},
	}
}

// CheckConfig runs every adapter's configuration check. Failures are
// advisory: Process still runs and reports auth failures as vendor errors.
func (e *Executor) CheckConfig() error {
	var errs []error
	for _, s := range e.steps {
		if err := s.Adapter.ValidateConfig(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Process saves the lead, runs the waterfall and records the outcome. It
// always returns a result; failures surface as status error.
func (e *Executor) Process(ctx context.Context, lead model.Lead) *model.WaterfallResult {
	leadID, err := e.rec.InsertLead(ctx, lead)
	if err != nil {
		zap.L().Error("waterfall: save lead failed", zap.Error(err))
		return &model.WaterfallResult{
			Status:  model.LeadStatusError,
			Message: ErrorMessage,
		}
	}

	result := &model.WaterfallResult{LeadID: leadID}
	if err := e.run(ctx, leadID, lead, result); err != nil {
		zap.L().Error("waterfall: run failed",
			zap.String("lead_id", leadID),
			zap.Int("total_attempts", result.TotalAttempts),
			zap.Error(err),
		)
		e.updateStatus(ctx, leadID, model.StatusUpdate{Status: model.LeadStatusError})
		return &model.WaterfallResult{
			LeadID:        leadID,
			Status:        model.LeadStatusError,
			Message:       ErrorMessage,
			TotalAttempts: result.TotalAttempts,
			Attempts:      result.Attempts,
		}
	}

	zap.L().Info("waterfall: run complete",
		zap.String("lead_id", leadID),
		zap.String("status", string(result.Status)),
		zap.String("vendor", result.Vendor),
		zap.Int("total_attempts", result.TotalAttempts),
	)
	return result
}

// run drives each vendor in order, filling result. Adapter panics are
// already attempt errors; any other panic in the run is converted to an
// error so the caller always gets a result.
func (e *Executor) run(ctx context.Context, leadID string, lead model.Lead, result *model.WaterfallResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("waterfall: panic: %v", r)
		}
	}()

	seq := 1
	for _, step := range e.steps {
		vr := RunVendor(ctx, step.Adapter, lead, step.Tiers, seq)
		seq += vr.TotalAttempts()
		result.TotalAttempts += vr.TotalAttempts()
		result.Attempts = append(result.Attempts, vr.Attempts...)
		e.saveAttempts(ctx, leadID, vr)

		if vr.Sold() {
			result.Status = model.LeadStatusSold
			result.Vendor = vr.Vendor
			result.Price = vr.SoldPrice
			result.RedirectURL = vr.RedirectURL
			e.updateStatus(ctx, leadID, model.StatusUpdate{
				Status:      model.LeadStatusSold,
				SoldPrice:   vr.SoldPrice,
				SoldVendor:  vr.Vendor,
				RedirectURL: vr.RedirectURL,
			})
			return nil
		}
		if vr.Err != nil {
			return eris.Wrapf(vr.Err, "waterfall: %s run interrupted", vr.Vendor)
		}
	}

	result.Status = model.LeadStatusRejected
	result.Message = RejectedMessage
	e.updateStatus(ctx, leadID, model.StatusUpdate{Status: model.LeadStatusRejected})
	return nil
}

// saveAttempts writes a vendor's attempts. Failures are logged and
// skipped; the sale decision stands without its audit rows.
func (e *Executor) saveAttempts(ctx context.Context, leadID string, vr VendorRun) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range vr.Attempts {
		a.LeadID = leadID
		if err := e.rec.InsertAttempt(ctx, leadID, a); err != nil {
			zap.L().Error("waterfall: save attempt failed",
				zap.String("lead_id", leadID),
				zap.String("vendor", a.Vendor),
				zap.Int("sequence", a.Sequence),
				zap.Error(err),
			)
		}
	}
}

// updateStatus writes the lead's terminal status, logging any failure.
func (e *Executor) updateStatus(ctx context.Context, leadID string, u model.StatusUpdate) {
	if err := e.rec.UpdateLeadStatus(context.WithoutCancel(ctx), leadID, u); err != nil {
		zap.L().Error("waterfall: update lead status failed",
			zap.String("lead_id", leadID),
			zap.String("status", string(u.Status)),
			zap.Error(err),
		)
	}
}
