package analytics

import (
	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

// Performance classifies a group against the global average.
type Performance string

const (
	PerformanceAbove Performance = "above"
	PerformanceBelow Performance = "below"
)

// Classify returns PerformanceAbove iff impact is strictly positive.
func Classify(impact float64) Performance {
	if impact > 0 {
		return PerformanceAbove
	}
	return PerformanceBelow
}

// ImpactStats describes how far a group sits from the global average.
type ImpactStats struct {
	AverageScore float64     `json:"average_score"`
	Impact       float64     `json:"impact"`
	Count        int         `json:"count"`
	Performance  Performance `json:"performance"`
}

// ImpactReport maps every dimension to its groups.
type ImpactReport map[grade.Dimension]map[string]ImpactStats

// Analyze computes impact = group average - globalAverage for each group of
// dimension d. Classification uses the unrounded impact; the presented
// average and impact are rounded to 2 decimal places.
func Analyze(measurements []grade.Measurement, d grade.Dimension, globalAverage float64) map[string]ImpactStats {
	groups := Aggregate(measurements, d)
	out := make(map[string]ImpactStats, len(groups))
	for k, g := range groups {
		impact := g.Average - globalAverage
		out[k] = ImpactStats{
			AverageScore: Round(g.Average, 2),
			Impact:       Round(impact, 2),
			Count:        g.Count,
			Performance:  Classify(impact),
		}
	}
	return out
}

// BuildImpact analyses every dimension.
func BuildImpact(measurements []grade.Measurement, globalAverage float64) ImpactReport {
	report := make(ImpactReport, len(grade.Dimensions))
	for _, d := range grade.Dimensions {
		report[d] = Analyze(measurements, d, globalAverage)
	}
	return report
}
