package ingest

import (
	"context"
	"time"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
)

// WriteOutcome reports what the writer did with a measurement.
type WriteOutcome int

const (
	// Written means a new measurement row was inserted.
	Written WriteOutcome = iota
	// Skipped means an identical measurement already existed.
	Skipped
)

// String returns the outcome name used in logs and metrics.
func (o WriteOutcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "added"
}

// MeasurementWriter inserts measurements, optionally skipping exact duplicates
// of (learner, subject, topic, exam date). Scores are stored as supplied.
type MeasurementWriter struct {
	now func() time.Time
}

// NewMeasurementWriter creates a writer stamping rows with now().
func NewMeasurementWriter(now func() time.Time) MeasurementWriter {
	return MeasurementWriter{now: now}
}

// Write stores m unless dedupe is set and a duplicate exists.
// On Written, m.ID holds the new ID.
func (w MeasurementWriter) Write(ctx context.Context, repo grade.Repository, m *grade.Measurement, dedupe bool) (WriteOutcome, error) {
	m.ExamDate = grade.DateOnly(m.ExamDate)

	if dedupe {
		exists, err := repo.Exists(ctx, m.Key())
		if err != nil {
			return Skipped, err
		}
		if exists {
			return Skipped, nil
		}
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = w.now()
	}
	if err := repo.Create(ctx, m); err != nil {
		return Skipped, err
	}
	return Written, nil
}
