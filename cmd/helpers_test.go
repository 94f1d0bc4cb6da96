package main

import (
	"context"
	"sync"

	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/store"
)

// fakeStore serves canned reads for handler tests.
type fakeStore struct {
	store.Store
	pingErr  error
	lead     *model.LeadRecord
	attempts []model.BidAttempt
	stats    *model.Stats
	err      error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetLead(_ context.Context, id string) (*model.LeadRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.lead == nil || f.lead.ID != id {
		return nil, store.ErrNotFound
	}
	return f.lead, nil
}

func (f *fakeStore) ListAttempts(context.Context, string) ([]model.BidAttempt, error) {
	return f.attempts, nil
}

func (f *fakeStore) Stats(context.Context) (*model.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

// fakeProcessor returns result for every lead and remembers what it saw.
type fakeProcessor struct {
	mu     sync.Mutex
	result func(model.Lead) *model.WaterfallResult
	seen   []model.Lead
}

func (f *fakeProcessor) Process(_ context.Context, lead model.Lead) *model.WaterfallResult {
	f.mu.Lock()
	f.seen = append(f.seen, lead)
	f.mu.Unlock()
	return f.result(lead)
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func testLead() model.Lead {
	return model.Lead{
		FirstName:        "Dana",
		LastName:         "Reyes",
		Email:            "dana@example.com",
		Phone:            "5125550100",
		BirthMonth:       3,
		BirthDay:         14,
		BirthYear:        1992,
		Address:          "100 Congress Ave",
		City:             "Austin",
		State:            "TX",
		Zip:              "78701",
		YearsAtAddress:   2,
		RentOrOwn:        "rent",
		RequestedAmount:  1000,
		SSN:              "123456789",
		IncomeSource:     "employment",
		MonthlyNetIncome: 3000,
		CallTime:         "morning",
	}
}
