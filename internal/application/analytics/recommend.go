package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMENDATIONS
// Derived from the scoped trend report. Learners and instructors get
// specific advice first; the generic pool fills up short lists.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxRecommendations caps every list.
	MaxRecommendations = 5

	// minSpecific is the length below which the generic pool is appended.
	minSpecific = 3
)

// RecommendationType names a recommendation rule.
type RecommendationType string

const (
	TypeDayOptimization        RecommendationType = "day_optimization"
	TypeTeacherOptimization    RecommendationType = "teacher_optimization"
	TypeStrengthUtilization    RecommendationType = "strength_utilization"
	TypeImprovementArea        RecommendationType = "improvement_area"
	TypeTeachingFocus          RecommendationType = "teaching_focus"
	TypeSchedulingOptimization RecommendationType = "scheduling_optimization"
	TypeConsistentPractice     RecommendationType = "consistent_practice"
	TypeAssessmentStrategy     RecommendationType = "assessment_strategy"
)

// Confidence of a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Recommendation is one piece of ranked advice.
type Recommendation struct {
	Type        RecommendationType `json:"type"`
	Text        string             `json:"text"`
	ImpactScore float64            `json:"impact_score"`
	Action      string             `json:"action"`
	Confidence  Confidence         `json:"confidence"`
}

// genericPool is appended, in order, when fewer than minSpecific
// recommendations apply.
func genericPool() []Recommendation {
	return []Recommendation{
		{
			Type:        TypeConsistentPractice,
			Text:        "Regular practice improves retention by 25% based on class data",
			ImpactScore: 15.0,
			Action:      "Implement weekly review sessions for all topics",
			Confidence:  ConfidenceHigh,
		},
		{
			Type:        TypeAssessmentStrategy,
			Text:        "Frequent low-stakes assessments improve learning outcomes",
			ImpactScore: 12.0,
			Action:      "Schedule weekly practice tests for ongoing evaluation",
			Confidence:  ConfidenceMedium,
		},
	}
}

// Generate builds at most MaxRecommendations recommendations for scope from
// its trend report. The result is deterministic for a given report.
func Generate(scope grade.Scope, trends TrendReport) []Recommendation {
	var recs []Recommendation

	switch scope.Normalized().Kind {
	case grade.ScopeLearner:
		recs = learnerRecommendations(trends)
	case grade.ScopeInstructor:
		recs = instructorRecommendations(trends)
	}

	if len(recs) < minSpecific {
		recs = append(recs, genericPool()...)
	}
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

func learnerRecommendations(trends TrendReport) []Recommendation {
	var recs []Recommendation

	if day, s, ok := best(trends[grade.DimensionDay], trendAverage); ok {
		recs = append(recs, Recommendation{
			Type:        TypeDayOptimization,
			Text:        fmt.Sprintf("Your performance is %s%% on %s - highest among all days", formatScore(s.Average), day),
			ImpactScore: 8.0,
			Action:      fmt.Sprintf("Schedule important study sessions on %s", day),
			Confidence:  ConfidenceHigh,
		})
	}

	if instructor, s, ok := best(trends[grade.DimensionInstructor], trendAverage); ok {
		recs = append(recs, Recommendation{
			Type:        TypeTeacherOptimization,
			Text:        fmt.Sprintf("You achieve %s%% with %s", formatScore(s.Average), instructor),
			ImpactScore: 12.0,
			Action:      fmt.Sprintf("Focus on sessions with %s for difficult topics", instructor),
			Confidence:  ConfidenceMedium,
		})
	}

	topics := trends[grade.DimensionTopic]
	if topic, s, ok := best(topics, trendAverage); ok {
		recs = append(recs, Recommendation{
			Type:        TypeStrengthUtilization,
			Text:        fmt.Sprintf("Excellent performance in %s (%s%%)", topic, formatScore(s.Average)),
			ImpactScore: 10.0,
			Action:      fmt.Sprintf("Use your strength in %s to build confidence", topic),
			Confidence:  ConfidenceHigh,
		})
	}
	if topic, s, ok := worst(topics, trendAverage); ok {
		recs = append(recs, Recommendation{
			Type:        TypeImprovementArea,
			Text:        fmt.Sprintf("Need improvement in %s (%s%%)", topic, formatScore(s.Average)),
			ImpactScore: 15.0,
			Action:      fmt.Sprintf("Allocate extra study time for %s", topic),
			Confidence:  ConfidenceHigh,
		})
	}

	return recs
}

func instructorRecommendations(trends TrendReport) []Recommendation {
	var recs []Recommendation

	if topic, s, ok := worst(trends[grade.DimensionTopic], trendAverage); ok {
		recs = append(recs, Recommendation{
			Type:        TypeTeachingFocus,
			Text:        fmt.Sprintf("Students struggle with %s (average: %s%%)", topic, formatScore(s.Average)),
			ImpactScore: 15.0,
			Action:      fmt.Sprintf("Provide additional resources and practice for %s", topic),
			Confidence:  ConfidenceHigh,
		})
	}

	if day, s, ok := best(trends[grade.DimensionDay], trendAverage); ok {
		recs = append(recs, Recommendation{
			Type:        TypeSchedulingOptimization,
			Text:        fmt.Sprintf("Best student performance on %s (%s%%)", day, formatScore(s.Average)),
			ImpactScore: 8.0,
			Action:      fmt.Sprintf("Schedule important topics and assessments on %s", day),
			Confidence:  ConfidenceMedium,
		})
	}

	return recs
}

// formatScore prints the shortest form of v with at least one decimal: 80 -> "80.0".
func formatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
