package input

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/montecarlo"
)

// Portfolio is a decoded portfolio file with its assets loaded.
type Portfolio struct {
	Name        string
	Correlation *float64 // nil means use the configured default
	Assets      []Holding
}

// Holding is one asset as the portfolio holds it. Active is false for a
// killed program; Levers carries portfolio-level what-ifs layered over the
// asset's own levers.
type Holding struct {
	Asset
	Active bool
	Levers *model.Levers
}

// Overridden reports whether the portfolio changes how the asset is valued.
func (h *Holding) Overridden() bool {
	return !h.Active || h.Levers != nil
}

// Scenario returns the snapshot valued inside the portfolio: the asset's
// own snapshot with the holding's levers applied. Without portfolio levers
// the loaded snapshot is returned as is.
func (h *Holding) Scenario() *model.Snapshot {
	if h.Levers == nil {
		return h.Snapshot
	}
	s := h.Snapshot.Clone()
	s.Levers = overlay(h.Snapshot.Levers, h.Levers)
	return s
}

type portfolioFile struct {
	Name        string           `yaml:"name"`
	Correlation *float64         `yaml:"correlation"`
	Assets      []portfolioEntry `yaml:"assets"`
}

type portfolioEntry struct {
	Path   string                 `yaml:"path"`
	Active *bool                  `yaml:"active"`
	Levers *leversEntry           `yaml:"levers"`
	Shocks *montecarlo.ShocksSpec `yaml:"shocks"`
}

// LoadPortfolio reads a portfolio file and every snapshot it lists. Asset
// paths are relative to the portfolio file. Shocks given in the portfolio
// replace the asset file's own shocks; levers given in the portfolio are
// layered over the asset's own.
func LoadPortfolio(path string) (*Portfolio, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "input: read %s", path)
	}
	var f portfolioFile
	if err := decodeStrict(bytes.NewReader(b), &f); err != nil {
		return nil, eris.Wrapf(err, "input: %s", path)
	}
	if len(f.Assets) == 0 {
		return nil, eris.Errorf("input: %s: portfolio lists no assets", path)
	}

	p := &Portfolio{Name: f.Name, Correlation: f.Correlation}
	if p.Name == "" {
		p.Name = "portfolio"
	}
	dir := filepath.Dir(path)
	seen := make(map[string]string, len(f.Assets))
	active := 0
	for i, e := range f.Assets {
		if e.Path == "" {
			return nil, eris.Errorf("input: %s: assets[%d].path is required", path, i)
		}
		assetPath := e.Path
		if !filepath.IsAbs(assetPath) {
			assetPath = filepath.Join(dir, assetPath)
		}
		a, err := LoadSnapshot(assetPath)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[a.Snapshot.ID]; dup {
			return nil, eris.Errorf("input: %s: snapshot id %q used by %s and %s", path, a.Snapshot.ID, prev, assetPath)
		}
		seen[a.Snapshot.ID] = assetPath
		if e.Shocks != nil {
			a.Shocks = *e.Shocks
		}

		h := Holding{Asset: *a, Active: e.Active == nil || *e.Active}
		if e.Levers != nil {
			l, err := e.Levers.toLevers()
			if err != nil {
				return nil, eris.Wrapf(err, "input: %s: assets[%d].levers", path, i)
			}
			h.Levers = l
		}
		if h.Active {
			active++
		}
		p.Assets = append(p.Assets, h)
	}
	if active == 0 {
		return nil, eris.Errorf("input: %s: every asset is inactive", path)
	}
	return p, nil
}

// Active returns the holdings still in the portfolio.
func (p *Portfolio) Active() []Holding {
	out := make([]Holding, 0, len(p.Assets))
	for _, h := range p.Assets {
		if h.Active {
			out = append(out, h)
		}
	}
	return out
}

// overlay layers portfolio levers over an asset's own: multipliers
// compound, rate deltas and duration shifts add, and success-rate
// overrides replace per phase.
func overlay(base, over *model.Levers) *model.Levers {
	out := base.Clone()
	out.RevenueMultiplier = base.Revenue() * over.Revenue()
	out.RDCostMultiplier = base.RDCost() * over.RDCost()
	out.TimeToPeakMultiplier = base.TimeToPeak() * over.TimeToPeak()
	out.DiscountRateDelta += over.DiscountRateDelta
	for ph, v := range over.SuccessRateOverrides {
		if out.SuccessRateOverrides == nil {
			out.SuccessRateOverrides = make(map[model.Phase]float64)
		}
		out.SuccessRateOverrides[ph] = v
	}
	for ph, v := range over.DurationShiftMonths {
		if out.DurationShiftMonths == nil {
			out.DurationShiftMonths = make(map[model.Phase]float64)
		}
		out.DurationShiftMonths[ph] += v
	}
	return out
}
