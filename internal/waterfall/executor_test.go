package waterfall

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/pricing"
	"github.com/sells-group/lead-router/internal/validate"
	"github.com/sells-group/lead-router/internal/waterfall/vendor"
)

// memRecorder is an in-memory Recorder with failure injection.
type memRecorder struct {
	mu        sync.Mutex
	leads     map[string]model.Lead
	attempts  map[string][]model.BidAttempt
	updates   map[string][]model.StatusUpdate
	insertErr error
	attemptFn func(a model.BidAttempt) error
	updateErr error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		leads:    make(map[string]model.Lead),
		attempts: make(map[string][]model.BidAttempt),
		updates:  make(map[string][]model.StatusUpdate),
	}
}

func (m *memRecorder) InsertLead(_ context.Context, lead model.Lead) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return "", m.insertErr
	}
	id := fmt.Sprintf("lead-%d", len(m.leads)+1)
	m.leads[id] = lead
	return id, nil
}

func (m *memRecorder) InsertAttempt(_ context.Context, leadID string, a model.BidAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attemptFn != nil {
		if err := m.attemptFn(a); err != nil {
			return err
		}
	}
	m.attempts[leadID] = append(m.attempts[leadID], a)
	return nil
}

func (m *memRecorder) UpdateLeadStatus(_ context.Context, leadID string, u model.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[leadID] = append(m.updates[leadID], u)
	return m.updateErr
}

func tiers() []decimal.Decimal { return pricing.CanonicalTiers() }

func lmTiers() []decimal.Decimal { return pricing.Adapt(pricing.LeadsMarketRule(), pricing.CanonicalTiers()) }

func TestProcess_PrimarySellsFallbackUntouched(t *testing.T) {
	rec := newMemRecorder()
	a := soldOnCall("VendorA", 1)
	b := soldOnCall("VendorB", 1)
	exec := NewExecutor(rec, Step{Adapter: a, Tiers: tiers()}, Step{Adapter: b, Tiers: lmTiers()})

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusSold, res.Status)
	assert.Equal(t, "VendorA", res.Vendor)
	assert.Equal(t, "250", res.Price.String())
	assert.Equal(t, 1, res.TotalAttempts)
	assert.Equal(t, 0, b.calls())

	require.Len(t, rec.updates[res.LeadID], 1)
	u := rec.updates[res.LeadID][0]
	assert.Equal(t, model.LeadStatusSold, u.Status)
	assert.Equal(t, "VendorA", u.SoldVendor)
	assert.Equal(t, "https://VendorA.example/go", u.RedirectURL)
	assert.Len(t, rec.attempts[res.LeadID], 1)
}

func TestProcess_FallbackSells(t *testing.T) {
	rec := newMemRecorder()
	a := alwaysReject("VendorA")
	b := soldOnCall("VendorB", 1)
	exec := NewExecutor(rec, Step{Adapter: a, Tiers: tiers()}, Step{Adapter: b, Tiers: lmTiers()})

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusSold, res.Status)
	assert.Equal(t, "VendorB", res.Vendor)
	assert.Equal(t, len(tiers())+1, res.TotalAttempts)
	assert.Equal(t, "230", res.Price.String())

	// Sequence continues across vendors.
	saved := rec.attempts[res.LeadID]
	require.Len(t, saved, res.TotalAttempts)
	for i, att := range saved {
		assert.Equal(t, i+1, att.Sequence)
		assert.Equal(t, res.LeadID, att.LeadID)
	}
	assert.Equal(t, "VendorB", saved[len(saved)-1].Vendor)
}

func TestProcess_AllRejected(t *testing.T) {
	rec := newMemRecorder()
	exec := NewExecutor(rec,
		Step{Adapter: alwaysReject("VendorA"), Tiers: tiers()},
		Step{Adapter: alwaysReject("VendorB"), Tiers: lmTiers()},
	)

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusRejected, res.Status)
	assert.Equal(t, RejectedMessage, res.Message)
	assert.Equal(t, len(tiers())+len(lmTiers()), res.TotalAttempts)
	assert.Empty(t, res.Vendor)
	assert.Nil(t, res.Price)
	assert.Empty(t, res.RedirectURL)

	require.Len(t, rec.updates[res.LeadID], 1)
	assert.Equal(t, model.LeadStatusRejected, rec.updates[res.LeadID][0].Status)
	assert.Nil(t, rec.updates[res.LeadID][0].SoldPrice)
}

func TestProcess_SaveLeadFails(t *testing.T) {
	rec := newMemRecorder()
	rec.insertErr = eris.New("db down")
	a := soldOnCall("VendorA", 1)
	exec := NewExecutor(rec, Step{Adapter: a, Tiers: tiers()}, Step{Adapter: alwaysReject("VendorB"), Tiers: lmTiers()})

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusError, res.Status)
	assert.Equal(t, ErrorMessage, res.Message)
	assert.Empty(t, res.LeadID)
	assert.Zero(t, a.calls())
}

func TestProcess_AttemptWriteFailuresSwallowed(t *testing.T) {
	rec := newMemRecorder()
	rec.attemptFn = func(a model.BidAttempt) error {
		if a.Sequence%2 == 0 {
			return eris.New("constraint violation")
		}
		return nil
	}
	exec := NewExecutor(rec,
		Step{Adapter: alwaysReject("VendorA"), Tiers: tiers()[:4]},
		Step{Adapter: soldOnCall("VendorB", 2), Tiers: lmTiers()},
	)

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusSold, res.Status)
	assert.Equal(t, 6, res.TotalAttempts)
	assert.Len(t, rec.attempts[res.LeadID], 3)
	assert.Len(t, res.Attempts, 6)
}

func TestProcess_StatusUpdateFailureKeepsOutcome(t *testing.T) {
	rec := newMemRecorder()
	rec.updateErr = eris.New("update failed")
	exec := NewExecutor(rec, Step{Adapter: soldOnCall("VendorA", 2), Tiers: tiers()}, Step{Adapter: alwaysReject("VendorB"), Tiers: lmTiers()})

	res := exec.Process(context.Background(), model.Lead{})
	assert.Equal(t, model.LeadStatusSold, res.Status)
	assert.Equal(t, "150", res.Price.String())
}

func TestProcess_AdapterPanicIsVendorError(t *testing.T) {
	rec := newMemRecorder()
	boom := &stubAdapter{name: "VendorB", respond: func(int, decimal.Decimal) vendor.Outcome {
		panic("nil map write")
	}}
	exec := NewExecutor(rec, Step{Adapter: alwaysReject("VendorA"), Tiers: tiers()[:2]}, Step{Adapter: boom, Tiers: lmTiers()})

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusRejected, res.Status)
	assert.Equal(t, RejectedMessage, res.Message)
	assert.Equal(t, len(lmTiers()), boom.calls())

	saved := rec.attempts[res.LeadID]
	require.Len(t, saved, 2+len(lmTiers()))
	for _, a := range saved[2:] {
		assert.Equal(t, model.AttemptStatusError, a.Status)
		assert.Contains(t, a.Error, "panic: nil map write")
	}
}

func TestProcess_RecorderPanicBecomesError(t *testing.T) {
	rec := newMemRecorder()
	rec.attemptFn = func(a model.BidAttempt) error {
		if a.Vendor == "VendorB" {
			panic("recorder broke")
		}
		return nil
	}
	exec := NewExecutor(rec, Step{Adapter: alwaysReject("VendorA"), Tiers: tiers()[:2]}, Step{Adapter: alwaysReject("VendorB"), Tiers: lmTiers()})

	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusError, res.Status)
	assert.Equal(t, ErrorMessage, res.Message)
	assert.NotEmpty(t, res.LeadID)
	updates := rec.updates[res.LeadID]
	require.Len(t, updates, 1)
	assert.Equal(t, model.LeadStatusError, updates[0].Status)
	// VendorA's attempts were saved before the panic.
	assert.Len(t, rec.attempts[res.LeadID], 2)
}

func TestProcess_CanceledRunIsError(t *testing.T) {
	rec := newMemRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	a := &stubAdapter{name: "VendorA", respond: func(call int, _ decimal.Decimal) vendor.Outcome {
		if call == 3 {
			cancel()
		}
		return vendor.Rejected("", "")
	}}
	b := soldOnCall("VendorB", 1)
	exec := NewExecutor(rec, Step{Adapter: a, Tiers: tiers()}, Step{Adapter: b, Tiers: lmTiers()})

	res := exec.Process(ctx, model.Lead{})

	assert.Equal(t, model.LeadStatusError, res.Status)
	assert.Equal(t, 3, res.TotalAttempts)
	assert.Zero(t, b.calls())
	// Audit and status writes ignore the canceled context.
	assert.Len(t, rec.attempts[res.LeadID], 3)
	assert.Equal(t, model.LeadStatusError, rec.updates[res.LeadID][0].Status)
}

func TestProcess_EndToEnd(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	lead := validate.Normalize(model.Lead{
		FirstName:        "dana",
		LastName:         "reyes",
		Email:            "dana@example.com",
		Phone:            "(512) 555-0100",
		BirthMonth:       3,
		BirthDay:         14,
		BirthYear:        1992,
		Address:          "100 Congress Ave",
		City:             "austin",
		State:            "tx",
		Zip:              "78701",
		YearsAtAddress:   2,
		RentOrOwn:        "rent",
		RequestedAmount:  1000,
		SSN:              "123-45-6789",
		IncomeSource:     "employment",
		MonthlyNetIncome: 3000,
		CallTime:         "morning",
	})
	require.Equal(t, 34, lead.Age(now))
	check := validate.Lead(lead, now)
	require.True(t, check.Valid, check.Errors)

	rec := newMemRecorder()
	a := alwaysReject("VendorA")
	b := soldOnCall("VendorB", 3)
	exec := NewExecutor(rec, Step{Adapter: a, Tiers: tiers()}, Step{Adapter: b, Tiers: lmTiers()})

	res := exec.Process(context.Background(), lead)

	lenA := len(tiers())
	assert.Equal(t, model.LeadStatusSold, res.Status)
	assert.Equal(t, "VendorB", res.Vendor)
	assert.Equal(t, "80", res.Price.String())
	assert.Equal(t, lenA+3, res.TotalAttempts)
	assert.Equal(t, "Dana", rec.leads[res.LeadID].FirstName)
}

// mockRecorder verifies the exact persistence calls of a run.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) InsertLead(ctx context.Context, lead model.Lead) (string, error) {
	args := m.Called(ctx, lead)
	return args.String(0), args.Error(1)
}

func (m *mockRecorder) InsertAttempt(ctx context.Context, leadID string, a model.BidAttempt) error {
	return m.Called(ctx, leadID, a).Error(0)
}

func (m *mockRecorder) UpdateLeadStatus(ctx context.Context, leadID string, u model.StatusUpdate) error {
	return m.Called(ctx, leadID, u).Error(0)
}

func TestProcess_PersistenceCalls(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("InsertLead", mock.Anything, mock.Anything).Return("L-1", nil).Once()
	rec.On("InsertAttempt", mock.Anything, "L-1", mock.MatchedBy(func(a model.BidAttempt) bool {
		return a.LeadID == "L-1"
	})).Return(nil).Times(3)
	rec.On("UpdateLeadStatus", mock.Anything, "L-1", mock.MatchedBy(func(u model.StatusUpdate) bool {
		return u.Status == model.LeadStatusSold && u.SoldVendor == "VendorB"
	})).Return(nil).Once()

	exec := NewExecutor(rec,
		Step{Adapter: alwaysReject("VendorA"), Tiers: tiers()[:2]},
		Step{Adapter: soldOnCall("VendorB", 1), Tiers: lmTiers()},
	)
	res := exec.Process(context.Background(), model.Lead{})

	assert.Equal(t, model.LeadStatusSold, res.Status)
	assert.Equal(t, 3, res.TotalAttempts)
	rec.AssertExpectations(t)
}

type configAdapter struct {
	*stubAdapter
	err error
}

func (c configAdapter) ValidateConfig() error { return c.err }

func TestCheckConfig(t *testing.T) {
	ok := configAdapter{stubAdapter: alwaysReject("A")}
	bad := configAdapter{stubAdapter: alwaysReject("B"), err: eris.Wrap(vendor.ErrConfig, "b: missing key")}

	assert.NoError(t, NewExecutor(newMemRecorder(), Step{Adapter: ok}, Step{Adapter: ok}).CheckConfig())

	err := NewExecutor(newMemRecorder(), Step{Adapter: ok}, Step{Adapter: bad}).CheckConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing key")
}

func TestProcess_ConcurrentRunsIndependent(t *testing.T) {
	rec := newMemRecorder()
	exec := NewExecutor(rec,
		Step{Adapter: alwaysReject("VendorA"), Tiers: tiers()},
		Step{Adapter: &stubAdapter{name: "VendorB", respond: func(_ int, price decimal.Decimal) vendor.Outcome {
			if price.Equal(decimal.NewFromInt(80)) {
				return vendor.Sold(price, "B", "", "")
			}
			return vendor.Rejected("", "")
		}}, Tiers: lmTiers()},
	)

	var wg sync.WaitGroup
	results := make([]*model.WaterfallResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = exec.Process(context.Background(), model.Lead{})
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, model.LeadStatusSold, res.Status)
		assert.Equal(t, len(tiers())+3, res.TotalAttempts)
		seqs := rec.attempts[res.LeadID]
		require.Len(t, seqs, res.TotalAttempts)
		for i, a := range seqs {
			assert.Equal(t, i+1, a.Sequence)
		}
	}
}
