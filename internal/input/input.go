// Package input decodes asset snapshot and portfolio YAML files into engine
// types. It owns every default; the engine itself applies none.
package input

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/montecarlo"
)

// Defaults applied to omitted commercial-row fields.
const (
	DefaultCurve            = model.CurveLogistic
	DefaultLogisticK        = 5.5
	DefaultLogisticMidpoint = 0.5
)

// Asset is one decoded snapshot file.
type Asset struct {
	Path     string
	Snapshot *model.Snapshot
	Shocks   montecarlo.ShocksSpec
}

type snapshotFile struct {
	ID              string                `yaml:"id"`
	Name            string                `yaml:"name"`
	TherapeuticArea string                `yaml:"therapeutic_area"`
	ValuationYear   int                   `yaml:"valuation_year"`
	HorizonYears    int                   `yaml:"horizon_years"`
	RDDiscountRate  float64               `yaml:"rd_discount_rate"`
	CurrentPhase    string                `yaml:"current_phase"`
	Phases          []phaseEntry          `yaml:"phases"`
	RDCosts         []rdCostEntry         `yaml:"rd_costs"`
	Commercial      []commercialEntry     `yaml:"commercial"`
	Levers          *leversEntry          `yaml:"levers"`
	Shocks          montecarlo.ShocksSpec `yaml:"shocks"`
}

type phaseEntry struct {
	Phase       string  `yaml:"phase"`
	SuccessRate float64 `yaml:"success_rate"`
	Start       float64 `yaml:"start"`
}

type rdCostEntry struct {
	Year   int     `yaml:"year"`
	Phase  string  `yaml:"phase"`
	Amount float64 `yaml:"amount"`
}

type curveEntry struct {
	Type     string   `yaml:"type"`
	K        *float64 `yaml:"k"`
	Midpoint *float64 `yaml:"midpoint"`
}

type commercialEntry struct {
	Region              string    `yaml:"region"`
	Scenario            string    `yaml:"scenario"`
	Segment             string    `yaml:"segment"`
	ScenarioProbability float64   `yaml:"scenario_probability"`
	PatientPopulation   float64   `yaml:"patient_population"`
	EpiFactors          []float64 `yaml:"epi_factors"`
	AccessRate          float64   `yaml:"access_rate"`
	MarketShare         float64   `yaml:"market_share"`
	UnitsPerTreatment   *float64  `yaml:"units_per_treatment"`
	TreatmentsPerYear   *float64  `yaml:"treatments_per_year"`
	ComplianceRate      *float64  `yaml:"compliance_rate"`
	GrossPrice          float64   `yaml:"gross_price"`
	GrossToNet          *float64  `yaml:"gross_to_net"`

	Curve        curveEntry `yaml:"curve"`
	LaunchDate   float64    `yaml:"launch_date"`
	TimeToPeak   float64    `yaml:"time_to_peak"`
	PlateauYears float64    `yaml:"plateau_years"`

	LOEDate        float64 `yaml:"loe_date"`
	CliffRetention float64 `yaml:"cliff_retention"`
	ErosionFloor   float64 `yaml:"erosion_floor"`
	YearsToFloor   float64 `yaml:"years_to_floor"`

	COGSRate         float64 `yaml:"cogs_rate"`
	DistributionRate float64 `yaml:"distribution_rate"`
	OperatingRate    float64 `yaml:"operating_rate"`
	TaxRate          float64 `yaml:"tax_rate"`
	DiscountRate     float64 `yaml:"discount_rate"`
}

type leversEntry struct {
	RevenueMultiplier    float64            `yaml:"revenue_multiplier"`
	RDCostMultiplier     float64            `yaml:"rd_cost_multiplier"`
	TimeToPeakMultiplier float64            `yaml:"time_to_peak_multiplier"`
	DiscountRateDelta    float64            `yaml:"discount_rate_delta"`
	SuccessRateOverrides map[string]float64 `yaml:"success_rate_overrides"`
	DurationShiftMonths  map[string]float64 `yaml:"duration_shift_months"`
}

// LoadSnapshot reads and decodes the snapshot file at path. A snapshot
// without an id takes the file name without its extension.
func LoadSnapshot(path string) (*Asset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "input: read %s", path)
	}
	a, err := DecodeSnapshot(bytes.NewReader(b))
	if err != nil {
		return nil, eris.Wrapf(err, "input: %s", path)
	}
	a.Path = path
	if a.Snapshot.ID == "" {
		a.Snapshot.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return a, nil
}

// DecodeSnapshot decodes one snapshot document. Unknown fields are errors.
func DecodeSnapshot(r io.Reader) (*Asset, error) {
	var f snapshotFile
	if err := decodeStrict(r, &f); err != nil {
		return nil, err
	}
	snap, err := f.toSnapshot()
	if err != nil {
		return nil, err
	}
	return &Asset{Snapshot: snap, Shocks: f.Shocks}, nil
}

func decodeStrict(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return eris.New("empty document")
		}
		return eris.Wrap(err, "decode yaml")
	}
	return nil
}

func (f *snapshotFile) toSnapshot() (*model.Snapshot, error) {
	current, err := model.ParsePhase(f.CurrentPhase)
	if err != nil {
		return nil, err
	}
	s := &model.Snapshot{
		ID:              f.ID,
		Name:            f.Name,
		TherapeuticArea: strings.TrimSpace(f.TherapeuticArea),
		ValuationYear:   f.ValuationYear,
		HorizonYears:    f.HorizonYears,
		RDDiscountRate:  f.RDDiscountRate,
		CurrentPhase:    current,
	}

	for i, p := range f.Phases {
		ph, err := parsePhaseField(p.Phase, "clinical_phase", fmt.Sprintf("phases[%d].phase", i))
		if err != nil {
			return nil, err
		}
		s.Phases = append(s.Phases, model.ClinicalPhase{Phase: ph, SuccessRate: p.SuccessRate, Start: p.Start})
	}

	for i, c := range f.RDCosts {
		ph, err := parsePhaseField(c.Phase, "rd_cost", fmt.Sprintf("rd_costs[%d].phase", i))
		if err != nil {
			return nil, err
		}
		s.RDCosts = append(s.RDCosts, model.RDCost{Year: c.Year, Phase: ph, Amount: c.Amount})
	}

	for i, c := range f.Commercial {
		row, err := c.toRow(i)
		if err != nil {
			return nil, err
		}
		s.CommercialRows = append(s.CommercialRows, row)
	}

	if f.Levers != nil {
		l, err := f.Levers.toLevers()
		if err != nil {
			return nil, err
		}
		s.Levers = l
	}
	return s, nil
}

func (c commercialEntry) toRow(i int) (model.CommercialRow, error) {
	entity := fmt.Sprintf("commercial[%d]", i)
	if len(c.EpiFactors) > len(model.CommercialRow{}.EpiFactors) {
		return model.CommercialRow{}, &model.ValidationError{Entity: entity, Field: "epi_factors", Value: len(c.EpiFactors), Reason: "at most 6 factors"}
	}
	curve, err := c.Curve.toSpec(entity)
	if err != nil {
		return model.CommercialRow{}, err
	}

	row := model.CommercialRow{
		Region:              c.Region,
		Scenario:            c.Scenario,
		Segment:             c.Segment,
		ScenarioProbability: c.ScenarioProbability,
		PatientPopulation:   c.PatientPopulation,
		AccessRate:          c.AccessRate,
		MarketShare:         c.MarketShare,
		UnitsPerTreatment:   orDefault(c.UnitsPerTreatment, 1),
		TreatmentsPerYear:   orDefault(c.TreatmentsPerYear, 1),
		ComplianceRate:      orDefault(c.ComplianceRate, 1),
		GrossPrice:          c.GrossPrice,
		GrossToNet:          orDefault(c.GrossToNet, 1),
		Curve:               curve,
		LaunchDate:          c.LaunchDate,
		TimeToPeak:          c.TimeToPeak,
		PlateauYears:        c.PlateauYears,
		LOEDate:             c.LOEDate,
		CliffRetention:      c.CliffRetention,
		ErosionFloor:        c.ErosionFloor,
		YearsToFloor:        c.YearsToFloor,
		COGSRate:            c.COGSRate,
		DistributionRate:    c.DistributionRate,
		OperatingRate:       c.OperatingRate,
		TaxRate:             c.TaxRate,
		DiscountRate:        c.DiscountRate,
	}
	for j := range row.EpiFactors {
		row.EpiFactors[j] = 1
		if j < len(c.EpiFactors) {
			row.EpiFactors[j] = c.EpiFactors[j]
		}
	}
	return row, nil
}

func (c curveEntry) toSpec(entity string) (model.CurveSpec, error) {
	spec := model.CurveSpec{Type: model.CurveType(strings.ToLower(strings.TrimSpace(c.Type)))}
	switch spec.Type {
	case "":
		spec.Type = DefaultCurve
	case model.CurveLinear, model.CurveLogistic:
	default:
		return spec, &model.ValidationError{Entity: entity, Field: "curve.type", Value: c.Type, Reason: "must be linear or logistic"}
	}
	if spec.Type == model.CurveLogistic {
		spec.K = orDefault(c.K, DefaultLogisticK)
		spec.Midpoint = orDefault(c.Midpoint, DefaultLogisticMidpoint)
	}
	return spec, nil
}

func (l *leversEntry) toLevers() (*model.Levers, error) {
	out := &model.Levers{
		RevenueMultiplier:    l.RevenueMultiplier,
		RDCostMultiplier:     l.RDCostMultiplier,
		TimeToPeakMultiplier: l.TimeToPeakMultiplier,
		DiscountRateDelta:    l.DiscountRateDelta,
	}
	var err error
	if out.SuccessRateOverrides, err = phaseMap(l.SuccessRateOverrides, "success_rate_overrides"); err != nil {
		return nil, err
	}
	if out.DurationShiftMonths, err = phaseMap(l.DurationShiftMonths, "duration_shift_months"); err != nil {
		return nil, err
	}
	return out, nil
}

func phaseMap(in map[string]float64, field string) (map[model.Phase]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[model.Phase]float64, len(in))
	for name, v := range in {
		p, err := parsePhaseField(name, "levers", field)
		if err != nil {
			return nil, err
		}
		if _, dup := out[p]; dup {
			return nil, &model.ValidationError{Entity: "levers", Field: field, Value: name, Reason: "phase listed twice"}
		}
		out[p] = v
	}
	return out, nil
}

// parsePhaseField parses a phase name and reports failures against the
// field that held it.
func parsePhaseField(name, entity, field string) (model.Phase, error) {
	p, err := model.ParsePhase(name)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			ve.Entity = entity
			ve.Field = field
		}
		return model.PhaseUnknown, err
	}
	return p, nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
