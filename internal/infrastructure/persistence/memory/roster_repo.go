package memory

import (
	"context"
	"sort"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

type rosterRepo struct {
	tx *transaction
}

var _ roster.Repository = rosterRepo{}

// ─────────────────────────────────────────────────────────────────────────────
// Identities
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateIdentity(_ context.Context, identity *roster.Identity) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	st := r.tx.state
	if _, taken := st.handles[identity.Handle]; taken {
		return shared.ErrHandleTaken
	}
	st.seq.Identity++
	identity.ID = st.seq.Identity
	st.identities[identity.ID] = *identity
	st.handles[identity.Handle] = identity.ID
	return nil
}

func (r rosterRepo) GetIdentity(_ context.Context, id int64) (*roster.Identity, error) {
	ident, ok := r.tx.state.identities[id]
	if !ok {
		return nil, shared.ErrIdentityNotFound
	}
	return &ident, nil
}

func (r rosterRepo) HandleExists(_ context.Context, handle string) (bool, error) {
	_, ok := r.tx.state.handles[handle]
	return ok, nil
}

func (r rosterRepo) ProtectedAdmin(_ context.Context) (*roster.Identity, error) {
	var found *roster.Identity
	for _, ident := range r.tx.state.identities {
		if !ident.Protected || ident.Role != roster.RoleAdmin {
			continue
		}
		if found == nil || ident.ID < found.ID {
			cp := ident
			found = &cp
		}
	}
	if found == nil {
		return nil, shared.ErrIdentityNotFound
	}
	return found, nil
}

func (r rosterRepo) DeleteIdentity(_ context.Context, id int64) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	ident, ok := r.tx.state.identities[id]
	if !ok {
		return shared.ErrIdentityNotFound
	}
	delete(r.tx.state.identities, id)
	delete(r.tx.state.handles, ident.Handle)
	return nil
}

func (r rosterRepo) DeleteUnprotectedIdentities(_ context.Context) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	n := 0
	for id, ident := range st.identities {
		if ident.Protected {
			continue
		}
		delete(st.identities, id)
		n++
	}
	st.reindex()
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Instructors
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateInstructor(_ context.Context, instructor *roster.Instructor) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	st := r.tx.state
	st.seq.Instructor++
	instructor.ID = st.seq.Instructor
	st.instructors[instructor.ID] = *instructor
	indexFirst(st.instructorNames, instructor.DisplayName, instructor.ID)
	return nil
}

func (r rosterRepo) GetInstructor(_ context.Context, id int64) (*roster.Instructor, error) {
	in, ok := r.tx.state.instructors[id]
	if !ok {
		return nil, shared.ErrInstructorNotFound
	}
	return &in, nil
}

func (r rosterRepo) FindInstructorByName(_ context.Context, displayName string) (*roster.Instructor, error) {
	id, ok := r.tx.state.instructorNames[displayName]
	if !ok {
		return nil, shared.ErrInstructorNotFound
	}
	in := r.tx.state.instructors[id]
	return &in, nil
}

func (r rosterRepo) FindInstructorByIdentity(_ context.Context, identityID int64) (*roster.Instructor, error) {
	for _, in := range r.tx.state.instructors {
		if in.IdentityID == identityID {
			cp := in
			return &cp, nil
		}
	}
	return nil, shared.ErrInstructorNotFound
}

func (r rosterRepo) ListInstructors(_ context.Context) ([]roster.Instructor, error) {
	out := make([]roster.Instructor, 0, len(r.tx.state.instructors))
	for _, in := range r.tx.state.instructors {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r rosterRepo) DeleteInstructor(_ context.Context, id int64) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.state.instructors[id]; !ok {
		return shared.ErrInstructorNotFound
	}
	delete(r.tx.state.instructors, id)
	r.tx.state.reindex()
	return nil
}

func (r rosterRepo) DeleteUnprotectedInstructors(_ context.Context) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	protected := st.protectedIdentities()
	n := 0
	for id, in := range st.instructors {
		if protected[in.IdentityID] {
			continue
		}
		delete(st.instructors, id)
		n++
	}
	st.reindex()
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Learners
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateLearner(_ context.Context, learner *roster.Learner) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	st := r.tx.state
	if _, taken := st.learnerCodes[learner.ExternalCode]; taken {
		return shared.ErrLearnerCodeTaken
	}
	st.seq.Learner++
	learner.ID = st.seq.Learner
	st.learners[learner.ID] = *learner
	st.learnerCodes[learner.ExternalCode] = learner.ID
	return nil
}

func (r rosterRepo) FindLearnerByCode(_ context.Context, externalCode string) (*roster.Learner, error) {
	id, ok := r.tx.state.learnerCodes[externalCode]
	if !ok {
		return nil, shared.ErrLearnerNotFound
	}
	l := r.tx.state.learners[id]
	return &l, nil
}

func (r rosterRepo) FindLearnerByIdentity(_ context.Context, identityID int64) (*roster.Learner, error) {
	for _, l := range r.tx.state.learners {
		if l.IdentityID == identityID {
			cp := l
			return &cp, nil
		}
	}
	return nil, shared.ErrLearnerNotFound
}

func (r rosterRepo) ListLearners(_ context.Context) ([]roster.Learner, error) {
	out := make([]roster.Learner, 0, len(r.tx.state.learners))
	for _, l := range r.tx.state.learners {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r rosterRepo) DeleteLearner(_ context.Context, id int64) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	l, ok := r.tx.state.learners[id]
	if !ok {
		return shared.ErrLearnerNotFound
	}
	delete(r.tx.state.learners, id)
	delete(r.tx.state.learnerCodes, l.ExternalCode)
	return nil
}

func (r rosterRepo) DeleteUnprotectedLearners(_ context.Context) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	protected := st.protectedIdentities()
	n := 0
	for id, l := range st.learners {
		if protected[l.IdentityID] {
			continue
		}
		delete(st.learners, id)
		n++
	}
	st.reindex()
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Subjects
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) CreateSubject(_ context.Context, subject *roster.Subject) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	st := r.tx.state
	st.seq.Subject++
	subject.ID = st.seq.Subject
	st.subjects[subject.ID] = *subject
	indexFirst(st.subjectNames, subject.Name, subject.ID)
	return nil
}

func (r rosterRepo) FindSubjectByName(_ context.Context, name string) (*roster.Subject, error) {
	id, ok := r.tx.state.subjectNames[name]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	sub := r.tx.state.subjects[id]
	return &sub, nil
}

func (r rosterRepo) ListSubjects(_ context.Context) ([]roster.Subject, error) {
	out := make([]roster.Subject, 0, len(r.tx.state.subjects))
	for _, sub := range r.tx.state.subjects {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r rosterRepo) DeleteAllSubjects(_ context.Context) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	n := len(st.subjects)
	st.subjects = map[int64]roster.Subject{}
	st.reindex()
	return n, nil
}

func (r rosterRepo) DeleteOrphanSubjects(_ context.Context) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	st := r.tx.state
	referenced := make(map[int64]bool, len(st.subjects))
	for _, m := range st.measurements {
		referenced[m.SubjectID] = true
	}
	n := 0
	for id := range st.subjects {
		if referenced[id] {
			continue
		}
		delete(st.subjects, id)
		n++
	}
	if n > 0 {
		st.reindex()
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Statistics
// ─────────────────────────────────────────────────────────────────────────────

func (r rosterRepo) Counts(_ context.Context) (roster.Counts, error) {
	st := r.tx.state
	return roster.Counts{
		Identities:  len(st.identities),
		Instructors: len(st.instructors),
		Learners:    len(st.learners),
		Subjects:    len(st.subjects),
	}, nil
}
