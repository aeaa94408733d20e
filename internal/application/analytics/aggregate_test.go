package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

func m(score float64, day, teacher, topic string) grade.Measurement {
	return grade.Measurement{Score: score, DayLabel: day, InstructorName: teacher, Topic: topic}
}

func TestAggregate_SkipsBlankValues(t *testing.T) {
	ms := []grade.Measurement{
		m(80, "Monday", "Mr Smith", "Algebra"),
		m(60, "Monday", "Mr Smith", "Algebra"),
		m(100, "", "Ms Lee", "Optics"),
	}

	days := Aggregate(ms, grade.DimensionDay)
	require.Len(t, days, 1)
	assert.Equal(t, GroupStats{Average: 70, Count: 2, Min: 60, Max: 80, Sum: 140}, days["Monday"])

	teachers := Aggregate(ms, grade.DimensionInstructor)
	assert.Len(t, teachers, 2)
	assert.Equal(t, 1, teachers["Ms Lee"].Count)
}

func TestRound_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 2.5, Round(2.45, 1))
	assert.Equal(t, -2.5, Round(-2.45, 1))
	assert.Equal(t, 66.67, Round(200.0/3, 2))
	assert.Equal(t, 80.0, Round(80, 1))
}

func TestMean(t *testing.T) {
	avg, n := Mean(nil)
	assert.Zero(t, avg)
	assert.Zero(t, n)

	avg, n = Mean([]grade.Measurement{m(70, "", "", ""), m(90, "", "", "")})
	assert.Equal(t, 80.0, avg)
	assert.Equal(t, 2, n)
}

func TestBestWorst_TiesGoToSmallestKey(t *testing.T) {
	groups := map[string]GroupStats{
		"Wednesday": {Average: 90},
		"Monday":    {Average: 90},
		"Tuesday":   {Average: 50},
		"Friday":    {Average: 50},
	}
	avg := func(g GroupStats) float64 { return g.Average }

	for i := 0; i < 20; i++ {
		k, _, ok := best(groups, avg)
		require.True(t, ok)
		assert.Equal(t, "Monday", k)

		k, _, ok = worst(groups, avg)
		require.True(t, ok)
		assert.Equal(t, "Friday", k)
	}

	_, _, ok := best(map[string]GroupStats{}, avg)
	assert.False(t, ok)
}

func TestBuildTrends_AlwaysHasEveryDimension(t *testing.T) {
	report := BuildTrends(nil)
	require.Len(t, report, 3)
	for _, d := range grade.Dimensions {
		groups, ok := report[d]
		assert.True(t, ok, d)
		assert.Empty(t, groups)
	}
	assert.True(t, report.Empty())

	report = BuildTrends([]grade.Measurement{m(70, "Monday", "Mr Smith", "Algebra"), m(75, "Monday", "Mr Smith", "Algebra"), m(76, "Monday", "Mr Smith", "Algebra")})
	assert.False(t, report.Empty())
	assert.Equal(t, TrendStats{Average: 73.67, Count: 3, Min: 70, Max: 76}, report[grade.DimensionTopic]["Algebra"])
}

func TestBuildImpact_WeightedAverageMatchesGlobal(t *testing.T) {
	ms := []grade.Measurement{
		m(91, "Monday", "Mr Smith", "Algebra"),
		m(67, "Monday", "Ms Lee", "Optics"),
		m(73, "Tuesday", "Ms Lee", "Optics"),
		m(55, "Friday", "Mr Smith", "Algebra"),
		m(88, "Friday", "Dr Kay", "Cells"),
	}
	global, _ := Mean(ms)
	report := BuildImpact(ms, global)

	for _, d := range grade.Dimensions {
		var weighted float64
		var total int
		for _, s := range report[d] {
			weighted += s.AverageScore * float64(s.Count)
			total += s.Count
		}
		assert.InDelta(t, global, weighted/float64(total), 0.01, d)
	}

	algebra := report[grade.DimensionTopic]["Algebra"]
	assert.Equal(t, 73.0, algebra.AverageScore)
	assert.Equal(t, -1.8, algebra.Impact)
	assert.Equal(t, PerformanceBelow, algebra.Performance)
	assert.Equal(t, PerformanceAbove, report[grade.DimensionTopic]["Cells"].Performance)
}

func TestClassify_ZeroIsBelow(t *testing.T) {
	assert.Equal(t, PerformanceBelow, Classify(0))
	assert.Equal(t, PerformanceAbove, Classify(0.001))
	assert.Equal(t, PerformanceBelow, Classify(-3))
}

// ─────────────────────────────────────────────────────────────────────────────
// Recommendations
// ─────────────────────────────────────────────────────────────────────────────

func learnerTrends() TrendReport {
	return BuildTrends([]grade.Measurement{
		m(90, "Monday", "Mr Smith", "Algebra"),
		m(70, "Tuesday", "Ms Lee", "Optics"),
	})
}

func TestGenerate_Learner(t *testing.T) {
	recs := Generate(grade.LearnerScope(1), learnerTrends())
	require.Len(t, recs, 4)

	assert.Equal(t, TypeDayOptimization, recs[0].Type)
	assert.Equal(t, "Your performance is 90.0% on Monday - highest among all days", recs[0].Text)
	assert.Equal(t, "Schedule important study sessions on Monday", recs[0].Action)

	assert.Equal(t, TypeTeacherOptimization, recs[1].Type)
	assert.Equal(t, "You achieve 90.0% with Mr Smith", recs[1].Text)
	assert.Equal(t, ConfidenceMedium, recs[1].Confidence)

	assert.Equal(t, "Excellent performance in Algebra (90.0%)", recs[2].Text)
	assert.Equal(t, "Need improvement in Optics (70.0%)", recs[3].Text)
	assert.Equal(t, 15.0, recs[3].ImpactScore)
}

func TestGenerate_InstructorGetsGenericFill(t *testing.T) {
	recs := Generate(grade.InstructorScope(1), learnerTrends())
	require.Len(t, recs, 4)

	assert.Equal(t, "Students struggle with Optics (average: 70.0%)", recs[0].Text)
	assert.Equal(t, "Best student performance on Monday (90.0%)", recs[1].Text)
	assert.Equal(t, TypeConsistentPractice, recs[2].Type)
	assert.Equal(t, TypeAssessmentStrategy, recs[3].Type)
}

func TestGenerate_AdminAndEmptyGetGenericPool(t *testing.T) {
	recs := Generate(grade.AllScope(), learnerTrends())
	assert.Equal(t, genericPool(), recs)

	recs = Generate(grade.LearnerScope(1), BuildTrends(nil))
	assert.Equal(t, genericPool(), recs)
}

func TestGenerate_NeverExceedsMax(t *testing.T) {
	scopes := []grade.Scope{grade.AllScope(), grade.LearnerScope(1), grade.InstructorScope(2), {}}
	reports := []TrendReport{BuildTrends(nil), learnerTrends()}

	for _, s := range scopes {
		for _, r := range reports {
			assert.LessOrEqual(t, len(Generate(s, r)), MaxRecommendations)
		}
	}
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "80.0", formatScore(80))
	assert.Equal(t, "73.67", formatScore(73.67))
	assert.Equal(t, "0.0", formatScore(0))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chart
// ─────────────────────────────────────────────────────────────────────────────

func TestZeroChart(t *testing.T) {
	c := ZeroChart()
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}, c.Dates)
	assert.Equal(t, []float64{0, 0, 0, 0}, c.Scores)
	assert.Equal(t, map[string]float64{"No Data": 0}, c.SubjectAverages)
	assert.Zero(t, c.TotalGrades)
	assert.Equal(t, c, BuildChart(nil, nil))
}

func TestBuildChart_KeepsLastPoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ms []grade.Measurement
	for i := 0; i < 25; i++ {
		x := m(float64(60+i), "Monday", "Mr Smith", "Algebra")
		x.SubjectID = 1
		x.ExamDate = start.AddDate(0, 0, i)
		ms = append(ms, x)
	}

	c := BuildChart(ms, map[int64]string{1: "Mathematics"})
	require.Len(t, c.Dates, ChartPoints)
	assert.Equal(t, "2024-01-06", c.Dates[0])
	assert.Equal(t, "2024-01-25", c.Dates[ChartPoints-1])
	assert.Equal(t, 84.0, c.Scores[ChartPoints-1])
	assert.Equal(t, 25, c.TotalGrades)
	assert.Equal(t, 72.0, c.OverallAverage)
	assert.Equal(t, map[string]float64{"Mathematics": 72.0}, c.SubjectAverages)
}
