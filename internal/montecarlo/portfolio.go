package montecarlo

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

// uClamp keeps transformed normals strictly inside (0,1).
const uClamp = 1e-12

// Asset is one program in a portfolio run.
type Asset struct {
	Snapshot *model.Snapshot
	Shocks   *Shocks
}

// AssetSummary is the marginal distribution of one asset's NPV.
type AssetSummary struct {
	SnapshotID string              `json:"snapshot_id"`
	Summary    DistributionSummary `json:"summary"`
}

// PortfolioSummary is the result of a correlated portfolio run.
type PortfolioSummary struct {
	Correlation float64             `json:"correlation"`
	Portfolio   DistributionSummary `json:"portfolio"`
	Assets      []AssetSummary      `json:"assets"`
}

// ValidateCorrelation checks that an n×n equicorrelation matrix with
// off-diagonal rho is positive semi-definite, i.e. rho in (-1/(n-1), 1].
func ValidateCorrelation(rho float64, n int) error {
	lower := -1.0
	if n > 1 {
		lower = -1 / float64(n-1)
	}
	if math.IsNaN(rho) || rho > 1 || rho < lower || (n > 1 && rho == lower) {
		return &model.ValidationError{
			Entity: "simulation",
			Field:  "correlation",
			Value:  rho,
			Reason: fmt.Sprintf("correlation for %d assets must be in (%.4f, 1]", n, lower),
		}
	}
	return nil
}

// correlator turns independent standard normals into equicorrelated ones.
type correlator struct {
	n          int
	comonotone bool
	l          *mat.TriDense
}

func newCorrelator(rho float64, n int) (*correlator, error) {
	if rho == 1 {
		return &correlator{n: n, comonotone: true}, nil
	}
	data := make([]float64, n*n)
	for i := range n {
		for j := range n {
			if i == j {
				data[i*n+j] = 1
			} else {
				data[i*n+j] = rho
			}
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, data)); !ok {
		return nil, &model.ValidationError{Entity: "simulation", Field: "correlation", Value: rho, Reason: "correlation matrix is not positive definite"}
	}
	var l mat.TriDense
	chol.LTo(&l)
	return &correlator{n: n, l: &l}, nil
}

// uniforms maps eps through the correlation and the standard normal CDF.
func (c *correlator) uniforms(eps []float64) []float64 {
	z := make([]float64, c.n)
	if c.comonotone {
		for i := range z {
			z[i] = eps[0]
		}
	} else {
		var v mat.VecDense
		v.MulVec(c.l, mat.NewVecDense(c.n, eps))
		for i := range z {
			z[i] = v.AtVec(i)
		}
	}
	for i, zi := range z {
		z[i] = math.Max(uClamp, math.Min(1-uClamp, distuv.UnitNormal.CDF(zi)))
	}
	return z
}

// SimulatePortfolio runs all assets jointly. Each iteration draws one
// correlated normal per asset, maps it through the normal CDF and the
// asset's own peak-sales marginal, values every asset, and sums the NPVs.
// Cancellation behaves as in Simulate.
func SimulatePortfolio(ctx context.Context, assets []Asset, cfg Config) (*PortfolioSummary, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := len(assets)
	if n == 0 {
		return nil, &model.ValidationError{Entity: "portfolio", Field: "assets", Reason: "portfolio needs at least one asset"}
	}
	if err := ValidateCorrelation(cfg.Correlation, n); err != nil {
		return nil, err
	}
	for _, a := range assets {
		if err := valuation.Validate(a.Snapshot, cfg.Options); err != nil {
			return nil, err
		}
	}
	corr, err := newCorrelator(cfg.Correlation, n)
	if err != nil {
		return nil, err
	}

	perAsset := make([][]float64, n)
	for j := range perAsset {
		perAsset[j] = make([]float64, cfg.Iterations)
	}
	total := make([]float64, cfg.Iterations)

	completed, err := runIterations(ctx, cfg, ModePortfolio, func(i int) error {
		rng := streamFor(cfg.Seed, i)
		eps := make([]float64, n)
		for j := range eps {
			eps[j] = rng.NormFloat64()
		}
		us := corr.uniforms(eps)

		var sum float64
		for j, a := range assets {
			perturbed := a.Shocks.Apply(a.Snapshot, rng, us[j])
			_, res, err := valuation.Run(perturbed, cfg.Options)
			if err != nil {
				return eris.Wrapf(err, "montecarlo: iteration %d asset %s", i, a.Snapshot.ID)
			}
			perAsset[j][i] = res.NPVTotal
			sum += res.NPVTotal
		}
		total[i] = sum
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return nil, err
	}

	out := &PortfolioSummary{Correlation: cfg.Correlation}
	out.Portfolio = finish(Summarize(total[:completed]), cfg, completed)
	for j, a := range assets {
		out.Assets = append(out.Assets, AssetSummary{
			SnapshotID: a.Snapshot.ID,
			Summary:    finish(Summarize(perAsset[j][:completed]), cfg, completed),
		})
	}
	return out, ctx.Err()
}

func finish(s DistributionSummary, cfg Config, completed int) DistributionSummary {
	s.Iterations = cfg.Iterations
	s.Seed = cfg.Seed
	s.Partial = completed < cfg.Iterations
	return s
}
