package analytics

import (
	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

// TrendStats is the presented form of GroupStats.
type TrendStats struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// TrendReport maps every dimension to its groups. All three dimensions are
// always present; with no data each map is empty.
type TrendReport map[grade.Dimension]map[string]TrendStats

// BuildTrends aggregates measurements along every dimension.
// Averages are rounded to 2 decimal places.
func BuildTrends(measurements []grade.Measurement) TrendReport {
	report := make(TrendReport, len(grade.Dimensions))
	for _, d := range grade.Dimensions {
		groups := Aggregate(measurements, d)
		out := make(map[string]TrendStats, len(groups))
		for k, g := range groups {
			out[k] = TrendStats{
				Average: Round(g.Average, 2),
				Count:   g.Count,
				Min:     g.Min,
				Max:     g.Max,
			}
		}
		report[d] = out
	}
	return report
}

// Empty reports whether no dimension has any group.
func (t TrendReport) Empty() bool {
	for _, groups := range t {
		if len(groups) > 0 {
			return false
		}
	}
	return true
}

func trendAverage(s TrendStats) float64 { return s.Average }
