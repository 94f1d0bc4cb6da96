package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/lead-router/internal/config"
	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/pricing"
	"github.com/sells-group/lead-router/internal/store"
	"github.com/sells-group/lead-router/internal/waterfall"
	"github.com/sells-group/lead-router/internal/waterfall/vendor"
)

// leadProcessor runs the waterfall for one lead. *waterfall.Executor
// satisfies it.
type leadProcessor interface {
	Process(ctx context.Context, lead model.Lead) *model.WaterfallResult
}

// routerEnv holds the store and executor needed by serve, submit and batch.
type routerEnv struct {
	Store    store.Store
	Executor *waterfall.Executor
}

// Close releases resources held by the environment.
func (e *routerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore validates config for mode and opens the configured store.
func initStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initRouter opens and migrates the store and wires both vendors into an
// executor. Missing vendor credentials are logged, not fatal.
func initRouter(ctx context.Context, mode string) (*routerEnv, error) {
	st, err := initStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	primary, fallback := buildSteps(cfg)
	exec := waterfall.NewExecutor(st, primary, fallback)
	if err := exec.CheckConfig(); err != nil {
		zap.L().Warn("vendor configuration incomplete", zap.Error(err))
	}

	zap.L().Info("waterfall ready",
		zap.Bool("test_mode", cfg.TestMode),
		zap.String("store", cfg.Store.Driver),
		zap.Int(primary.Adapter.Name()+"_tiers", len(primary.Tiers)),
		zap.Int(fallback.Adapter.Name()+"_tiers", len(fallback.Tiers)),
	)
	return &routerEnv{Store: st, Executor: exec}, nil
}

// buildSteps creates the ITMedia then LeadsMarket steps, each with the
// canonical tiers fitted to that vendor's price domain.
func buildSteps(c *config.Config) (primary, fallback waterfall.Step) {
	itm := vendor.NewITMedia(vendor.ITMediaConfig{
		Username: c.Vendors.ITMedia.Username,
		APIKey:   c.Vendors.ITMedia.APIKey,
		BaseURL:  c.Vendors.ITMedia.BaseURL,
		TestURL:  c.Vendors.ITMedia.TestURL,
		TestMode: c.TestMode,
		Timeout:  c.Vendors.Timeout(),
	})
	lm := vendor.NewLeadsMarket(vendor.LeadsMarketConfig{
		CampaignID:  c.Vendors.LeadsMarket.CampaignID,
		CampaignKey: c.Vendors.LeadsMarket.CampaignKey,
		BaseURL:     c.Vendors.LeadsMarket.BaseURL,
		MaxPrice:    int64(c.Vendors.LeadsMarket.MaxPrice),
		TestMode:    c.TestMode,
		TestResult:  c.Vendors.LeadsMarket.TestResult,
		Timeout:     c.Vendors.Timeout(),
	})

	primary = waterfall.Step{Adapter: itm, Tiers: vendorTiers(c.Vendors.ITMedia.PriceConfig)}
	fallback = waterfall.Step{Adapter: lm, Tiers: vendorTiers(c.Vendors.LeadsMarket.PriceConfig)}
	return primary, fallback
}

func vendorTiers(p config.PriceConfig) []decimal.Decimal {
	rule := pricing.NewRule(p.MaxPrice, p.MinPrice, p.Granularity)
	return pricing.Adapt(rule, pricing.CanonicalTiers())
}
