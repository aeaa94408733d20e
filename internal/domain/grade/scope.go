package grade

import (
	"fmt"
	"time"
)

// ScopeKind определяет, чьи оценки видит запрос.
type ScopeKind string

const (
	ScopeAll        ScopeKind = "all"
	ScopeLearner    ScopeKind = "learner"
	ScopeInstructor ScopeKind = "instructor"
)

// Scope ограничивает выборку оценок одним учеником или преподавателем.
// Нулевое значение Scope означает выборку без ограничений.
type Scope struct {
	Kind         ScopeKind
	LearnerID    int64
	InstructorID int64
}

// AllScope возвращает неограниченную выборку.
func AllScope() Scope {
	return Scope{Kind: ScopeAll}
}

// LearnerScope возвращает выборку одного ученика.
func LearnerScope(learnerID int64) Scope {
	return Scope{Kind: ScopeLearner, LearnerID: learnerID}
}

// InstructorScope возвращает выборку одного преподавателя.
func InstructorScope(instructorID int64) Scope {
	return Scope{Kind: ScopeInstructor, InstructorID: instructorID}
}

// Normalized заменяет пустой Kind на ScopeAll.
func (s Scope) Normalized() Scope {
	if s.Kind == "" {
		s.Kind = ScopeAll
	}
	return s
}

// Filter строит фильтр выборки для окна, начинающегося с since.
// Нулевое since означает выборку без окна.
func (s Scope) Filter(since time.Time) Filter {
	f := Filter{Since: since}
	switch s.Kind {
	case ScopeLearner:
		f.LearnerID = s.LearnerID
	case ScopeInstructor:
		f.InstructorID = s.InstructorID
	}
	return f
}

// CacheKey возвращает стабильное строковое представление для ключей кэша.
func (s Scope) CacheKey() string {
	s = s.Normalized()
	switch s.Kind {
	case ScopeLearner:
		return fmt.Sprintf("learner:%d", s.LearnerID)
	case ScopeInstructor:
		return fmt.Sprintf("instructor:%d", s.InstructorID)
	}
	return string(ScopeAll)
}

// Filter - условия выборки оценок. Нулевые поля не ограничивают выборку.
type Filter struct {
	LearnerID    int64
	InstructorID int64

	// Since - нижняя граница exam_date (включительно).
	Since time.Time
}

// Matches проверяет оценку на соответствие фильтру.
func (f Filter) Matches(m Measurement) bool {
	if f.LearnerID != 0 && m.LearnerID != f.LearnerID {
		return false
	}
	if f.InstructorID != 0 && m.InstructorID != f.InstructorID {
		return false
	}
	if !f.Since.IsZero() && m.ExamDate.Before(f.Since) {
		return false
	}
	return true
}
