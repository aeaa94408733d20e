package grade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeFilter(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	f := LearnerScope(7).Filter(since)
	assert.Equal(t, int64(7), f.LearnerID)
	assert.Zero(t, f.InstructorID)
	assert.Equal(t, since, f.Since)

	f = InstructorScope(3).Filter(time.Time{})
	assert.Equal(t, int64(3), f.InstructorID)
	assert.True(t, f.Since.IsZero())

	f = Scope{}.Filter(since)
	assert.Zero(t, f.LearnerID)
	assert.Zero(t, f.InstructorID)
}

func TestFilterMatches(t *testing.T) {
	m := Measurement{
		LearnerID:    1,
		InstructorID: 2,
		ExamDate:     time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, Filter{}.Matches(m))
	assert.True(t, Filter{LearnerID: 1}.Matches(m))
	assert.False(t, Filter{LearnerID: 5}.Matches(m))
	assert.False(t, Filter{InstructorID: 5}.Matches(m))
	assert.True(t, Filter{Since: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}.Matches(m))
	assert.False(t, Filter{Since: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)}.Matches(m))
}

func TestScopeCacheKey(t *testing.T) {
	assert.Equal(t, "all", Scope{}.CacheKey())
	assert.Equal(t, "learner:4", LearnerScope(4).CacheKey())
	assert.Equal(t, "instructor:9", InstructorScope(9).CacheKey())
}

func TestMeasurementValueAndKey(t *testing.T) {
	m := Measurement{
		LearnerID:      1,
		SubjectID:      2,
		Topic:          "Algebra",
		DayLabel:       "Monday",
		InstructorName: "Mr Smith",
		ExamDate:       time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC),
	}

	assert.Equal(t, "Monday", m.Value(DimensionDay))
	assert.Equal(t, "Mr Smith", m.Value(DimensionInstructor))
	assert.Equal(t, "Algebra", m.Value(DimensionTopic))

	key := m.Key()
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), key.ExamDate)
	assert.Equal(t, "Algebra", key.Topic)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("topic")
	require.NoError(t, err)
	assert.Equal(t, DimensionTopic, d)

	_, err = ParseDimension("weather")
	assert.Error(t, err)
}
