package analytics

import (
	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/pkg/timeutil"
)

// ChartPoints is the number of most recent measurements plotted.
const ChartPoints = 20

// noDataLabel keys the averages of the zero-data chart.
const noDataLabel = "No Data"

// placeholderDates are plotted when there is nothing to show.
var placeholderDates = []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}

// ChartSeries is the input of the performance chart.
type ChartSeries struct {
	Dates           []string           `json:"dates"`
	Scores          []float64          `json:"scores"`
	SubjectAverages map[string]float64 `json:"subject_averages"`
	TeacherAverages map[string]float64 `json:"teacher_averages"`
	DayAverages     map[string]float64 `json:"day_averages"`
	TopicAverages   map[string]float64 `json:"topic_averages"`
	TotalGrades     int                `json:"total_grades"`
	OverallAverage  float64            `json:"overall_average"`
}

// ZeroChart returns the fixed zero-filled series.
func ZeroChart() ChartSeries {
	dates := make([]string, len(placeholderDates))
	copy(dates, placeholderDates)
	return ChartSeries{
		Dates:           dates,
		Scores:          make([]float64, len(placeholderDates)),
		SubjectAverages: map[string]float64{noDataLabel: 0},
		TeacherAverages: map[string]float64{noDataLabel: 0},
		DayAverages:     map[string]float64{noDataLabel: 0},
		TopicAverages:   map[string]float64{noDataLabel: 0},
		TotalGrades:     0,
		OverallAverage:  0,
	}
}

// BuildChart builds the series from measurements ordered by exam date.
// subjectNames resolves subject IDs for the subject averages.
func BuildChart(measurements []grade.Measurement, subjectNames map[int64]string) ChartSeries {
	if len(measurements) == 0 {
		return ZeroChart()
	}

	recent := measurements
	if len(recent) > ChartPoints {
		recent = recent[len(recent)-ChartPoints:]
	}
	dates := make([]string, len(recent))
	scores := make([]float64, len(recent))
	for i, m := range recent {
		dates[i] = timeutil.FormatDate(m.ExamDate)
		scores[i] = m.Score
	}

	overall, total := Mean(measurements)

	return ChartSeries{
		Dates:  dates,
		Scores: scores,
		SubjectAverages: roundedAverages(aggregateBy(measurements, func(m grade.Measurement) string {
			return subjectNames[m.SubjectID]
		})),
		TeacherAverages: roundedAverages(Aggregate(measurements, grade.DimensionInstructor)),
		DayAverages:     roundedAverages(Aggregate(measurements, grade.DimensionDay)),
		TopicAverages:   roundedAverages(Aggregate(measurements, grade.DimensionTopic)),
		TotalGrades:     total,
		OverallAverage:  Round(overall, 1),
	}
}

func roundedAverages(groups map[string]GroupStats) map[string]float64 {
	out := make(map[string]float64, len(groups))
	for k, g := range groups {
		out[k] = Round(g.Average, 1)
	}
	return out
}
