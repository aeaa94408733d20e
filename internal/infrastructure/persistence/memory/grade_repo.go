package memory

import (
	"context"
	"sort"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

type gradeRepo struct {
	tx *transaction
}

var _ grade.Repository = gradeRepo{}

func (r gradeRepo) Create(_ context.Context, m *grade.Measurement) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	st := r.tx.state
	if _, ok := st.learners[m.LearnerID]; !ok {
		return shared.ValidationError("grade", "Create", "measurement references unknown learner")
	}
	if _, ok := st.instructors[m.InstructorID]; !ok {
		return shared.ValidationError("grade", "Create", "measurement references unknown instructor")
	}
	if _, ok := st.subjects[m.SubjectID]; !ok {
		return shared.ValidationError("grade", "Create", "measurement references unknown subject")
	}
	m.ExamDate = grade.DateOnly(m.ExamDate)
	st.seq.Measurement++
	m.ID = st.seq.Measurement
	st.measurements[m.ID] = *m
	st.dedupe[m.Key()]++
	return nil
}

func (r gradeRepo) Exists(_ context.Context, key grade.DedupeKey) (bool, error) {
	key.ExamDate = grade.DateOnly(key.ExamDate)
	return r.tx.state.dedupe[key] > 0, nil
}

func (r gradeRepo) List(_ context.Context, filter grade.Filter) ([]grade.Measurement, error) {
	out := make([]grade.Measurement, 0)
	for _, m := range r.tx.state.measurements {
		if filter.Matches(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExamDate.Equal(out[j].ExamDate) {
			return out[i].ExamDate.Before(out[j].ExamDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r gradeRepo) GlobalAverage(_ context.Context) (float64, int, error) {
	n := len(r.tx.state.measurements)
	if n == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, m := range r.tx.state.measurements {
		sum += m.Score
	}
	return sum / float64(n), n, nil
}

func (r gradeRepo) Count(_ context.Context) (int, error) {
	return len(r.tx.state.measurements), nil
}

func (r gradeRepo) DeleteAll(_ context.Context) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	n := len(st.measurements)
	st.measurements = map[int64]grade.Measurement{}
	st.dedupe = map[grade.DedupeKey]int{}
	return n, nil
}

func (r gradeRepo) DeleteByLearner(_ context.Context, learnerID int64) (int, error) {
	return r.deleteWhere(func(m grade.Measurement) bool { return m.LearnerID == learnerID })
}

func (r gradeRepo) DeleteByInstructor(_ context.Context, instructorID int64) (int, error) {
	return r.deleteWhere(func(m grade.Measurement) bool { return m.InstructorID == instructorID })
}

func (r gradeRepo) deleteWhere(match func(grade.Measurement) bool) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	n := 0
	for id, m := range st.measurements {
		if !match(m) {
			continue
		}
		delete(st.measurements, id)
		key := m.Key()
		st.dedupe[key]--
		if st.dedupe[key] <= 0 {
			delete(st.dedupe, key)
		}
		n++
	}
	return n, nil
}
