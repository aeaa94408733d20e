package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

type gradeRepo struct {
	q Querier
}

var _ grade.Repository = gradeRepo{}

const measurementColumns = `id, learner_id, instructor_id, subject_id, score, topic,
	exam_date, day_label, instructor_name, created_at`

func (r gradeRepo) Create(ctx context.Context, m *grade.Measurement) error {
	m.ExamDate = grade.DateOnly(m.ExamDate)
	query := `
		INSERT INTO measurements (
			learner_id, instructor_id, subject_id, score, topic,
			exam_date, day_label, instructor_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		m.LearnerID,
		m.InstructorID,
		m.SubjectID,
		m.Score,
		m.Topic,
		m.ExamDate,
		m.DayLabel,
		m.InstructorName,
		orNow(m.CreatedAt),
	).Scan(&m.ID)
	return classify("CreateMeasurement", err, nil, nil)
}

func (r gradeRepo) Exists(ctx context.Context, key grade.DedupeKey) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM measurements
			WHERE learner_id = $1 AND subject_id = $2 AND topic = $3 AND exam_date = $4
		)
	`, key.LearnerID, key.SubjectID, key.Topic, grade.DateOnly(key.ExamDate)).Scan(&exists)
	return exists, classify("MeasurementExists", err, nil, nil)
}

func (r gradeRepo) List(ctx context.Context, filter grade.Filter) ([]grade.Measurement, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + measurementColumns + ` FROM measurements` + where + ` ORDER BY exam_date, id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("ListMeasurements", err, nil, nil)
	}
	defer rows.Close()

	var out []grade.Measurement
	for rows.Next() {
		var m grade.Measurement
		if err := rows.Scan(
			&m.ID,
			&m.LearnerID,
			&m.InstructorID,
			&m.SubjectID,
			&m.Score,
			&m.Topic,
			&m.ExamDate,
			&m.DayLabel,
			&m.InstructorName,
			&m.CreatedAt,
		); err != nil {
			return nil, classify("ListMeasurements", err, nil, nil)
		}
		m.ExamDate = grade.DateOnly(m.ExamDate)
		out = append(out, m)
	}
	return out, classify("ListMeasurements", rows.Err(), nil, nil)
}

func (r gradeRepo) GlobalAverage(ctx context.Context) (float64, int, error) {
	var (
		avg   float64
		count int
	)
	err := r.q.QueryRow(ctx, `SELECT COALESCE(AVG(score), 0), count(*) FROM measurements`).Scan(&avg, &count)
	return avg, count, classify("GlobalAverage", err, nil, nil)
}

func (r gradeRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM measurements`).Scan(&n)
	return n, classify("CountMeasurements", err, nil, nil)
}

func (r gradeRepo) DeleteAll(ctx context.Context) (int, error) {
	return r.delete(ctx, "DeleteAllMeasurements", `DELETE FROM measurements`)
}

func (r gradeRepo) DeleteByLearner(ctx context.Context, learnerID int64) (int, error) {
	return r.delete(ctx, "DeleteMeasurementsByLearner", `DELETE FROM measurements WHERE learner_id = $1`, learnerID)
}

func (r gradeRepo) DeleteByInstructor(ctx context.Context, instructorID int64) (int, error) {
	return r.delete(ctx, "DeleteMeasurementsByInstructor", `DELETE FROM measurements WHERE instructor_id = $1`, instructorID)
}

func (r gradeRepo) delete(ctx context.Context, op, query string, args ...interface{}) (int, error) {
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, classify(op, err, nil, nil)
	}
	return int(tag.RowsAffected()), nil
}

// filterClause builds the WHERE clause of a measurement filter.
func filterClause(f grade.Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.LearnerID != 0 {
		add("learner_id = $%d", f.LearnerID)
	}
	if f.InstructorID != 0 {
		add("instructor_id = $%d", f.InstructorID)
	}
	if !f.Since.IsZero() {
		add("exam_date::timestamp >= $%d::timestamp", f.Since.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
