package analytics

import (
	"math"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

// GroupStats summarises the scores of one group. Average is the raw mean;
// callers round for presentation.
type GroupStats struct {
	Average float64
	Count   int
	Min     float64
	Max     float64
	Sum     float64
}

func (g *GroupStats) add(score float64) {
	if g.Count == 0 {
		g.Min, g.Max = score, score
	} else {
		g.Min = math.Min(g.Min, score)
		g.Max = math.Max(g.Max, score)
	}
	g.Count++
	g.Sum += score
	g.Average = g.Sum / float64(g.Count)
}

// Aggregate groups measurements by the value of dimension d.
// Measurements with a blank value are not grouped.
func Aggregate(measurements []grade.Measurement, d grade.Dimension) map[string]GroupStats {
	return aggregateBy(measurements, func(m grade.Measurement) string { return m.Value(d) })
}

func aggregateBy(measurements []grade.Measurement, key func(grade.Measurement) string) map[string]GroupStats {
	groups := make(map[string]GroupStats)
	for _, m := range measurements {
		k := key(m)
		if k == "" {
			continue
		}
		g := groups[k]
		g.add(m.Score)
		groups[k] = g
	}
	return groups
}

// Mean returns the raw mean score and the count.
func Mean(measurements []grade.Measurement) (float64, int) {
	if len(measurements) == 0 {
		return 0, 0
	}
	var sum float64
	for _, m := range measurements {
		sum += m.Score
	}
	return sum / float64(len(measurements)), len(measurements)
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// best returns the group with the highest average. Ties go to the
// lexicographically smallest key.
func best[T any](groups map[string]T, avg func(T) float64) (string, T, bool) {
	return pick(groups, avg, func(a, b float64) bool { return a > b })
}

// worst returns the group with the lowest average. Ties go to the
// lexicographically smallest key.
func worst[T any](groups map[string]T, avg func(T) float64) (string, T, bool) {
	return pick(groups, avg, func(a, b float64) bool { return a < b })
}

func pick[T any](groups map[string]T, avg func(T) float64, better func(a, b float64) bool) (string, T, bool) {
	var (
		key   string
		value T
		found bool
	)
	for k, v := range groups {
		if !found {
			key, value, found = k, v, true
			continue
		}
		a, b := avg(v), avg(value)
		if better(a, b) || (a == b && k < key) {
			key, value = k, v
		}
	}
	return key, value, found
}
