package valuation

import (
	"math"
	"sort"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// Revenue gap thresholds, as year-on-year percentage changes.
const (
	gapThreshold = -15.0
	gapHigh      = -20.0
	gapCritical  = -30.0
)

// Gap severities.
const (
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// RevenueGap is a year in which combined risk-adjusted revenue falls
// sharply from the year before.
type RevenueGap struct {
	Year     int     `json:"year"`
	Previous float64 `json:"previous"`
	Revenue  float64 `json:"revenue"`
	DropPct  float64 `json:"drop_pct"`
	Severity string  `json:"severity"`
}

// RevenueGaps scans a portfolio timeline for drops of more than 15% year on
// year. Years missing from the timeline count as zero revenue. It also
// returns the year of peak revenue, or 0 when nothing is ever sold.
func RevenueGaps(timeline []YearTotal) (gaps []RevenueGap, peakYear int) {
	if len(timeline) == 0 {
		return nil, 0
	}
	revenue := make(map[int]float64, len(timeline))
	first, last := timeline[0].Year, timeline[0].Year
	for _, y := range timeline {
		revenue[y.Year] += y.Revenue
		first = min(first, y.Year)
		last = max(last, y.Year)
	}

	var peak float64
	for year := first; year <= last; year++ {
		rev := revenue[year]
		if rev > peak {
			peak, peakYear = rev, year
		}
		if year == first {
			continue
		}
		prev := revenue[year-1]
		if prev <= 0 {
			continue
		}
		pct := (rev - prev) / prev * 100
		if pct >= gapThreshold {
			continue
		}
		g := RevenueGap{Year: year, Previous: prev, Revenue: rev, DropPct: -pct, Severity: SeverityModerate}
		switch {
		case pct < gapCritical:
			g.Severity = SeverityCritical
		case pct < gapHigh:
			g.Severity = SeverityHigh
		}
		gaps = append(gaps, g)
	}
	return gaps, peakYear
}

// Launch is an asset's expected first launch after duration shifts.
type Launch struct {
	SnapshotID string  `json:"snapshot_id"`
	Phase      string  `json:"phase"`
	Date       float64 `json:"date"`
	Year       int     `json:"year"`
}

// LaunchTimeline lists each asset's earliest shifted launch across its
// commercial rows, ordered by date. Assets with no commercial rows are left
// out.
func LaunchTimeline(assets []Asset) []Launch {
	var out []Launch
	for _, a := range assets {
		s := a.Snapshot
		if s == nil || a.Killed || len(s.CommercialRows) == 0 {
			continue
		}
		var shifts map[model.Phase]float64
		if s.Levers != nil {
			shifts = s.Levers.DurationShiftMonths
		}
		tl := BuildTimeline(s.CurrentPhase, shifts)
		date := math.Inf(1)
		for _, row := range s.CommercialRows {
			date = math.Min(date, tl.Launch(row))
		}
		out = append(out, Launch{
			SnapshotID: s.ID,
			Phase:      s.CurrentPhase.String(),
			Date:       date,
			Year:       int(math.Floor(date)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].SnapshotID < out[j].SnapshotID
	})
	return out
}
