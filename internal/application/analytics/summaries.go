package analytics

import (
	"context"
	"sort"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-ENTITY SUMMARIES
// Overviews of every instructor and learner, and the learners and subjects
// of one instructor. Averages and impacts are rounded to 1 decimal place;
// an entity without measurements reports zeros.
// ══════════════════════════════════════════════════════════════════════════════

// InstructorSummary is one row of the instructor overview.
type InstructorSummary struct {
	InstructorID    int64   `json:"instructor_id"`
	IdentityID      int64   `json:"identity_id"`
	DisplayName     string  `json:"display_name"`
	Handle          string  `json:"handle"`
	Email           string  `json:"email"`
	SubjectAffinity string  `json:"subject_affinity"`
	Status          string  `json:"status"`
	Average         float64 `json:"average"`
	Impact          float64 `json:"impact"`
	Count           int     `json:"count"`
	LearnerCount    int     `json:"learner_count"`
}

// LearnerSummary is one row of the learner overview.
type LearnerSummary struct {
	LearnerID    int64   `json:"learner_id"`
	IdentityID   int64   `json:"identity_id"`
	ExternalCode string  `json:"external_code"`
	DisplayName  string  `json:"display_name"`
	Handle       string  `json:"handle"`
	Email        string  `json:"email"`
	Cohort       string  `json:"cohort"`
	Average      float64 `json:"average"`
	Count        int     `json:"count"`
}

// LearnerAverage is a learner's result with one instructor.
type LearnerAverage struct {
	LearnerID    int64   `json:"learner_id"`
	ExternalCode string  `json:"external_code"`
	DisplayName  string  `json:"display_name"`
	Cohort       string  `json:"cohort"`
	Average      float64 `json:"average"`
	Count        int     `json:"count"`
}

// SubjectAverage is a subject's result with one instructor.
type SubjectAverage struct {
	SubjectID int64   `json:"subject_id"`
	Name      string  `json:"name"`
	Average   float64 `json:"average"`
	Count     int     `json:"count"`
}

// InstructorRoster summarises every instructor, ordered by ID. Measurements
// are attributed through the instructor-name snapshot, so results recorded
// under a display name survive re-imports of the profile. Impact is measured
// against the average of the whole store.
func (s *Service) InstructorRoster(ctx context.Context) ([]InstructorSummary, error) {
	var out []InstructorSummary
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		global, _, err := tx.Grades().GlobalAverage(ctx)
		if err != nil {
			return err
		}
		ms, err := tx.Grades().List(ctx, grade.Filter{})
		if err != nil {
			return err
		}
		instructors, err := tx.Roster().ListInstructors(ctx)
		if err != nil {
			return err
		}

		byName := tallyBy(ms, func(m grade.Measurement) string { return m.InstructorName })
		out = make([]InstructorSummary, 0, len(instructors))
		for _, in := range instructors {
			identity, err := tx.Roster().GetIdentity(ctx, in.IdentityID)
			if err != nil {
				return err
			}
			row := InstructorSummary{
				InstructorID:    in.ID,
				IdentityID:      in.IdentityID,
				DisplayName:     in.DisplayName,
				Handle:          identity.Handle,
				Email:           identity.Email,
				SubjectAffinity: in.SubjectAffinity,
				Status:          in.Status,
			}
			if t, ok := byName[in.DisplayName]; ok {
				row.Average = Round(t.mean(), 1)
				row.Impact = Round(t.mean()-global, 1)
				row.Count = t.count
				row.LearnerCount = len(t.learners)
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

// LearnerRoster summarises every learner over all of their measurements,
// ordered by ID.
func (s *Service) LearnerRoster(ctx context.Context) ([]LearnerSummary, error) {
	var out []LearnerSummary
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ms, err := tx.Grades().List(ctx, grade.Filter{})
		if err != nil {
			return err
		}
		learners, err := tx.Roster().ListLearners(ctx)
		if err != nil {
			return err
		}

		byLearner := tallyBy(ms, func(m grade.Measurement) int64 { return m.LearnerID })
		out = make([]LearnerSummary, 0, len(learners))
		for _, l := range learners {
			identity, err := tx.Roster().GetIdentity(ctx, l.IdentityID)
			if err != nil {
				return err
			}
			row := LearnerSummary{
				LearnerID:    l.ID,
				IdentityID:   l.IdentityID,
				ExternalCode: l.ExternalCode,
				DisplayName:  l.DisplayName,
				Handle:       identity.Handle,
				Email:        identity.Email,
				Cohort:       l.Cohort,
			}
			if t, ok := byLearner[l.ID]; ok {
				row.Average = Round(t.mean(), 1)
				row.Count = t.count
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

// InstructorLearners lists the learners an instructor has graded with their
// average under that instructor, ordered by learner ID.
func (s *Service) InstructorLearners(ctx context.Context, instructorID int64) ([]LearnerAverage, error) {
	var out []LearnerAverage
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ms, err := s.instructorMeasurements(ctx, tx, instructorID)
		if err != nil {
			return err
		}
		learners, err := tx.Roster().ListLearners(ctx)
		if err != nil {
			return err
		}

		byLearner := tallyBy(ms, func(m grade.Measurement) int64 { return m.LearnerID })
		out = make([]LearnerAverage, 0, len(byLearner))
		for _, l := range learners {
			t, ok := byLearner[l.ID]
			if !ok {
				continue
			}
			out = append(out, LearnerAverage{
				LearnerID:    l.ID,
				ExternalCode: l.ExternalCode,
				DisplayName:  l.DisplayName,
				Cohort:       l.Cohort,
				Average:      Round(t.mean(), 1),
				Count:        t.count,
			})
		}
		return nil
	})
	return out, err
}

// InstructorSubjects lists the subjects an instructor has graded with their
// average under that instructor, ordered by subject ID.
func (s *Service) InstructorSubjects(ctx context.Context, instructorID int64) ([]SubjectAverage, error) {
	var out []SubjectAverage
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ms, err := s.instructorMeasurements(ctx, tx, instructorID)
		if err != nil {
			return err
		}
		names, err := subjectNames(ctx, tx.Roster())
		if err != nil {
			return err
		}

		bySubject := tallyBy(ms, func(m grade.Measurement) int64 { return m.SubjectID })
		out = make([]SubjectAverage, 0, len(bySubject))
		for id, t := range bySubject {
			out = append(out, SubjectAverage{
				SubjectID: id,
				Name:      names[id],
				Average:   Round(t.mean(), 1),
				Count:     t.count,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
		return nil
	})
	return out, err
}

func (s *Service) instructorMeasurements(ctx context.Context, tx store.Tx, instructorID int64) ([]grade.Measurement, error) {
	if _, err := tx.Roster().GetInstructor(ctx, instructorID); err != nil {
		return nil, err
	}
	return tx.Grades().List(ctx, grade.Filter{InstructorID: instructorID})
}

// ─────────────────────────────────────────────────────────────────────────────
// Tallies
// ─────────────────────────────────────────────────────────────────────────────

type tally struct {
	sum      float64
	count    int
	learners map[int64]struct{}
}

func (t *tally) mean() float64 { return t.sum / float64(t.count) }

func tallyBy[K comparable](ms []grade.Measurement, key func(grade.Measurement) K) map[K]*tally {
	out := make(map[K]*tally)
	for _, m := range ms {
		k := key(m)
		t, ok := out[k]
		if !ok {
			t = &tally{learners: make(map[int64]struct{})}
			out[k] = t
		}
		t.sum += m.Score
		t.count++
		t.learners[m.LearnerID] = struct{}{}
	}
	return out
}
