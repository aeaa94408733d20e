// Package grade содержит доменную модель оценок (measurements)
// и измерения, по которым они агрегируются.
package grade

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Measurement - одна оценка ученика по теме предмета.
// Оценка всегда ссылается на существующих ученика, преподавателя и предмет.
type Measurement struct {
	ID           int64
	LearnerID    int64
	InstructorID int64
	SubjectID    int64
	Score        float64
	Topic        string
	ExamDate     time.Time
	DayLabel     string

	// InstructorName - снимок имени преподавателя на момент импорта.
	InstructorName string

	CreatedAt time.Time
}

// Key возвращает ключ дедупликации оценки.
func (m Measurement) Key() DedupeKey {
	return DedupeKey{
		LearnerID: m.LearnerID,
		SubjectID: m.SubjectID,
		Topic:     m.Topic,
		ExamDate:  DateOnly(m.ExamDate),
	}
}

// Value возвращает значение оценки по измерению.
func (m Measurement) Value(d Dimension) string {
	switch d {
	case DimensionDay:
		return m.DayLabel
	case DimensionInstructor:
		return m.InstructorName
	case DimensionTopic:
		return m.Topic
	}
	return ""
}

// DedupeKey - (ученик, предмет, тема, дата экзамена).
// Две оценки с одинаковым ключом считаются дубликатами при merge-refresh.
type DedupeKey struct {
	LearnerID int64
	SubjectID int64
	Topic     string
	ExamDate  time.Time
}

// DateOnly отбрасывает время суток и приводит дату к UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
