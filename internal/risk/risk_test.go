package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnpv-cli/internal/model"
)

func phase2Asset() []model.ClinicalPhase {
	return []model.ClinicalPhase{
		{Phase: model.Phase1, SuccessRate: 0.80},
		{Phase: model.Phase2, SuccessRate: 0.65},
		{Phase: model.Phase2B, SuccessRate: 0.70},
		{Phase: model.Phase3, SuccessRate: 0.55},
		{Phase: model.Registration, SuccessRate: 0.90},
	}
}

func TestCompute_Phase2Asset(t *testing.T) {
	t.Parallel()
	m, err := Compute(phase2Asset(), model.Phase2, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, m.Effective[model.Phase1])
	assert.InDelta(t, 1.0, m.CostFor(model.Phase2), 1e-12)
	assert.InDelta(t, 0.65, m.CostFor(model.Phase2B), 1e-3)
	assert.InDelta(t, 0.455, m.CostFor(model.Phase3), 1e-3)
	assert.InDelta(t, 0.2503, m.CostFor(model.Registration), 1e-3)
	assert.InDelta(t, 0.2252, m.Commercial, 1e-3)
	assert.InDelta(t, m.Commercial, m.CostFor(model.Approved), 1e-12)
	assert.Empty(t, m.Warnings)
}

func TestCompute_HistoricalPhasesForcedToOne(t *testing.T) {
	t.Parallel()
	for _, current := range model.CanonicalPhases() {
		m, err := Compute(phase2Asset(), current, map[model.Phase]float64{model.Phase1: 0.1})
		require.NoError(t, err)
		for p, r := range m.Effective {
			if p < current {
				assert.Equal(t, 1.0, r, "phase %s before %s", p, current)
			}
		}
	}
}

func TestCompute_CostIsProductOfEarlierPhases(t *testing.T) {
	t.Parallel()
	m, err := Compute(phase2Asset(), model.Phase1, nil)
	require.NoError(t, err)

	running := 1.0
	for _, p := range model.CanonicalPhases() {
		assert.InDelta(t, running, m.CostFor(p), 1e-12, p.String())
		if p <= model.TerminalPhase {
			running *= m.Effective[p]
		}
	}
	assert.InDelta(t, 0.8*0.65*0.7*0.55*0.9, m.Commercial, 1e-12)
}

func TestCompute_ApprovedAsset(t *testing.T) {
	t.Parallel()
	m, err := Compute(phase2Asset(), model.Approved, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Commercial)
	assert.Equal(t, 1.0, m.CostFor(model.Approved))
}

func TestCompute_PhaseGapWarning(t *testing.T) {
	t.Parallel()
	phases := []model.ClinicalPhase{
		{Phase: model.Phase2, SuccessRate: 0.6},
		{Phase: model.Phase3, SuccessRate: 0.5},
	}
	m, err := Compute(phases, model.Phase2, nil)
	require.NoError(t, err)

	require.Len(t, m.Warnings, 2)
	assert.Equal(t, model.WarningPhaseGap, m.Warnings[0].Code)
	assert.Equal(t, model.Phase2B, m.Warnings[0].Phase)
	assert.Equal(t, model.Registration, m.Warnings[1].Phase)
	assert.InDelta(t, 0.3, m.Commercial, 1e-12)
}

func TestCompute_Overrides(t *testing.T) {
	t.Parallel()
	m, err := Compute(phase2Asset(), model.Phase2, map[model.Phase]float64{model.Phase3: 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.65*0.7*0.9, m.Commercial, 1e-12)
}

func TestCompute_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		phases    []model.ClinicalPhase
		current   model.Phase
		overrides map[model.Phase]float64
		field     string
	}{
		{"unknown current", phase2Asset(), model.PhaseUnknown, nil, "current_phase"},
		{"rate above one", []model.ClinicalPhase{{Phase: model.Phase1, SuccessRate: 1.2}}, model.Phase1, nil, "success_rate"},
		{"negative rate", []model.ClinicalPhase{{Phase: model.Phase3, SuccessRate: -0.1}}, model.Phase1, nil, "success_rate"},
		{"duplicate", []model.ClinicalPhase{{Phase: model.Phase1, SuccessRate: 0.5}, {Phase: model.Phase1, SuccessRate: 0.6}}, model.Phase1, nil, "name"},
		{"bad override", phase2Asset(), model.Phase2, map[model.Phase]float64{model.Phase3: 2}, "success_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Compute(tt.phases, tt.current, tt.overrides)
			require.Error(t, err)
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCumulativePOS(t *testing.T) {
	t.Parallel()
	rates := map[model.Phase]float64{model.Phase1: 0.5, model.Phase2: 0.5, model.Phase3: 0.5}
	assert.Equal(t, 0.125, CumulativePOS(rates, model.Phase1, model.TerminalPhase))
	assert.Equal(t, 0.25, CumulativePOS(rates, model.Phase2, model.Phase3))
	assert.Equal(t, 1.0, CumulativePOS(rates, model.Phase1, model.PhaseUnknown))
}
