// Package sensitivity measures how far the deterministic NPV moves when
// one assumption at a time is pushed to a low and a high value.
package sensitivity

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

// Adjustment edits a private copy of a snapshot. Levers are never nil.
type Adjustment struct {
	Label string
	Apply func(s *model.Snapshot)
}

// Driver is one assumption with its low and high settings.
type Driver struct {
	Name string
	Low  Adjustment
	High Adjustment
}

// Swing is the NPV response to one driver.
type Swing struct {
	Driver    string  `json:"driver"`
	LowLabel  string  `json:"low_label"`
	HighLabel string  `json:"high_label"`
	LowNPV    float64 `json:"low_npv"`
	HighNPV   float64 `json:"high_npv"`
	Swing     float64 `json:"swing"` // |HighNPV - LowNPV|
}

// Tornado is the full one-at-a-time analysis, largest swing first.
type Tornado struct {
	SnapshotID string  `json:"snapshot_id"`
	BaseNPV    float64 `json:"base_npv"`
	Swings     []Swing `json:"swings"`
}

// Run evaluates every driver against s. Each evaluation starts from the
// snapshot's own levers.
func Run(ctx context.Context, s *model.Snapshot, drivers []Driver, opts valuation.Options) (*Tornado, error) {
	_, base, err := valuation.Run(s, opts)
	if err != nil {
		return nil, err
	}

	swings := make([]Swing, len(drivers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, d := range drivers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			low, err := evaluate(s, d.Low, opts)
			if err != nil {
				return eris.Wrapf(err, "sensitivity: %s low", d.Name)
			}
			high, err := evaluate(s, d.High, opts)
			if err != nil {
				return eris.Wrapf(err, "sensitivity: %s high", d.Name)
			}
			swings[i] = Swing{
				Driver:    d.Name,
				LowLabel:  d.Low.Label,
				HighLabel: d.High.Label,
				LowNPV:    low,
				HighNPV:   high,
				Swing:     math.Abs(high - low),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(swings, func(i, j int) bool { return swings[i].Swing > swings[j].Swing })
	return &Tornado{SnapshotID: s.ID, BaseNPV: base.NPVTotal, Swings: swings}, nil
}

func evaluate(s *model.Snapshot, adj Adjustment, opts valuation.Options) (float64, error) {
	c := s.Clone()
	c.Levers = c.Levers.Clone()
	if adj.Apply != nil {
		adj.Apply(c)
	}
	_, res, err := valuation.Run(c, opts)
	if err != nil {
		return 0, err
	}
	return res.NPVTotal, nil
}

// DefaultDrivers returns the standard tornado set for s: revenue, R&D cost
// and time to peak ±20%, launch ±12 months, discount rates ±1pt and
// each remaining phase's success rate ±0.1.
func DefaultDrivers(s *model.Snapshot) []Driver {
	drivers := []Driver{
		scaleDriver("revenue", 0.2, func(l *model.Levers, f float64) { l.RevenueMultiplier = l.Revenue() * f }),
		scaleDriver("rd_cost", 0.2, func(l *model.Levers, f float64) { l.RDCostMultiplier = l.RDCost() * f }),
		scaleDriver("time_to_peak", 0.2, func(l *model.Levers, f float64) { l.TimeToPeakMultiplier = l.TimeToPeak() * f }),
		{
			Name: "launch_timing",
			Low:  Adjustment{Label: "+12 months", Apply: shiftLaunch(12)},
			High: Adjustment{Label: "-12 months", Apply: shiftLaunch(-12)},
		},
		{
			Name: "discount_rate",
			Low:  Adjustment{Label: "+1pt", Apply: func(c *model.Snapshot) { c.Levers.DiscountRateDelta += 0.01 }},
			High: Adjustment{Label: "-1pt", Apply: func(c *model.Snapshot) { c.Levers.DiscountRateDelta -= 0.01 }},
		},
	}

	for _, ph := range s.Phases {
		if ph.Phase.Before(s.CurrentPhase) || ph.Phase > model.TerminalPhase {
			continue
		}
		rate := ph.SuccessRate
		if r, ok := s.Levers.Clone().SuccessRateOverrides[ph.Phase]; ok {
			rate = r
		}
		drivers = append(drivers, Driver{
			Name: fmt.Sprintf("success_rate %s", ph.Phase),
			Low:  Adjustment{Label: fmt.Sprintf("%.2f", clamp01(rate-0.1)), Apply: overrideRate(ph.Phase, clamp01(rate-0.1))},
			High: Adjustment{Label: fmt.Sprintf("%.2f", clamp01(rate+0.1)), Apply: overrideRate(ph.Phase, clamp01(rate+0.1))},
		})
	}
	return drivers
}

func scaleDriver(name string, pct float64, set func(*model.Levers, float64)) Driver {
	return Driver{
		Name: name,
		Low: Adjustment{
			Label: fmt.Sprintf("-%.0f%%", pct*100),
			Apply: func(c *model.Snapshot) { set(c.Levers, 1-pct) },
		},
		High: Adjustment{
			Label: fmt.Sprintf("+%.0f%%", pct*100),
			Apply: func(c *model.Snapshot) { set(c.Levers, 1+pct) },
		},
	}
}

func shiftLaunch(months float64) func(*model.Snapshot) {
	return func(c *model.Snapshot) {
		if c.Levers.DurationShiftMonths == nil {
			c.Levers.DurationShiftMonths = make(map[model.Phase]float64)
		}
		c.Levers.DurationShiftMonths[c.CurrentPhase] += months
	}
}

func overrideRate(p model.Phase, rate float64) func(*model.Snapshot) {
	return func(c *model.Snapshot) {
		if c.Levers.SuccessRateOverrides == nil {
			c.Levers.SuccessRateOverrides = make(map[model.Phase]float64)
		}
		c.Levers.SuccessRateOverrides[p] = rate
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
