package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/leekchan/accounting"
	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/rnpv-cli/internal/montecarlo"
	"github.com/sells-group/rnpv-cli/internal/store"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

// money formats currency millions, e.g. "$1,234.5M".
var money = accounting.Accounting{Symbol: "$", Precision: 1, Thousand: ",", Decimal: ".", Format: "%s%v", FormatNegative: "-%s%v"}

// counts formats integers with thousands separators.
var counts = message.NewPrinter(language.English)

func formatMoney(v float64) string {
	return money.FormatMoney(v) + "M"
}

func formatCount(n int) string {
	return counts.Sprintf("%d", n)
}

func formatPct(v float64) string {
	return counts.Sprintf("%.1f%%", v*100)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// openMigratedStore opens the configured store and applies its schema.
func openMigratedStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func valuationOptions() (valuation.Options, error) {
	if err := cfg.Validate("value"); err != nil {
		return valuation.Options{}, err
	}
	return valuation.Options{
		QuadratureSteps: cfg.Valuation.QuadratureSteps,
		MaxDiscountRate: cfg.Valuation.MaxDiscountRate,
	}, nil
}

// simulationConfig builds the engine config from settings, with any
// command-line overrides already applied to cfg.
func simulationConfig() (montecarlo.Config, error) {
	if err := cfg.Validate("simulate"); err != nil {
		return montecarlo.Config{}, err
	}
	opts, err := valuationOptions()
	if err != nil {
		return montecarlo.Config{}, err
	}
	mc := montecarlo.Config{
		Iterations:       cfg.Simulation.Iterations,
		Seed:             cfg.Simulation.Seed,
		Workers:          cfg.Simulation.Workers,
		Correlation:      cfg.Simulation.Correlation,
		Options:          opts,
		ProgressInterval: time.Duration(cfg.Simulation.ProgressIntervalSecs) * time.Second,
	}
	if collector != nil {
		mc.Recorder = collector
	}
	return mc, nil
}
