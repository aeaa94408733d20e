package memory

import (
	"sort"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
)

// Sequences holds the last ID handed out per table.
type Sequences struct {
	Identity    int64 `json:"identity"`
	Instructor  int64 `json:"instructor"`
	Learner     int64 `json:"learner"`
	Subject     int64 `json:"subject"`
	Measurement int64 `json:"measurement"`
}

// Snapshot is the exportable form of the store, ordered by ID.
type Snapshot struct {
	Identities   []roster.Identity   `json:"identities"`
	Instructors  []roster.Instructor `json:"instructors"`
	Learners     []roster.Learner    `json:"learners"`
	Subjects     []roster.Subject    `json:"subjects"`
	Measurements []grade.Measurement `json:"measurements"`
	Sequences    Sequences           `json:"sequences"`
}

type state struct {
	identities   map[int64]roster.Identity
	instructors  map[int64]roster.Instructor
	learners     map[int64]roster.Learner
	subjects     map[int64]roster.Subject
	measurements map[int64]grade.Measurement
	seq          Sequences

	// indexes, derived from the maps above
	handles         map[string]int64
	learnerCodes    map[string]int64
	instructorNames map[string]int64
	subjectNames    map[string]int64
	dedupe          map[grade.DedupeKey]int
}

func newState() *state {
	s := &state{
		identities:   map[int64]roster.Identity{},
		instructors:  map[int64]roster.Instructor{},
		learners:     map[int64]roster.Learner{},
		subjects:     map[int64]roster.Subject{},
		measurements: map[int64]grade.Measurement{},
	}
	s.reindex()
	return s
}

func (s *state) clone() *state {
	cp := &state{
		identities:      make(map[int64]roster.Identity, len(s.identities)),
		instructors:     make(map[int64]roster.Instructor, len(s.instructors)),
		learners:        make(map[int64]roster.Learner, len(s.learners)),
		subjects:        make(map[int64]roster.Subject, len(s.subjects)),
		measurements:    make(map[int64]grade.Measurement, len(s.measurements)),
		seq:             s.seq,
		handles:         make(map[string]int64, len(s.handles)),
		learnerCodes:    make(map[string]int64, len(s.learnerCodes)),
		instructorNames: make(map[string]int64, len(s.instructorNames)),
		subjectNames:    make(map[string]int64, len(s.subjectNames)),
		dedupe:          make(map[grade.DedupeKey]int, len(s.dedupe)),
	}
	for k, v := range s.identities {
		cp.identities[k] = v
	}
	for k, v := range s.instructors {
		cp.instructors[k] = v
	}
	for k, v := range s.learners {
		cp.learners[k] = v
	}
	for k, v := range s.subjects {
		cp.subjects[k] = v
	}
	for k, v := range s.measurements {
		cp.measurements[k] = v
	}
	for k, v := range s.handles {
		cp.handles[k] = v
	}
	for k, v := range s.learnerCodes {
		cp.learnerCodes[k] = v
	}
	for k, v := range s.instructorNames {
		cp.instructorNames[k] = v
	}
	for k, v := range s.subjectNames {
		cp.subjectNames[k] = v
	}
	for k, v := range s.dedupe {
		cp.dedupe[k] = v
	}
	return cp
}

func (s *state) reindex() {
	s.handles = make(map[string]int64, len(s.identities))
	for id, ident := range s.identities {
		s.handles[ident.Handle] = id
	}
	s.learnerCodes = make(map[string]int64, len(s.learners))
	for id, l := range s.learners {
		s.learnerCodes[l.ExternalCode] = id
	}
	s.instructorNames = make(map[string]int64, len(s.instructors))
	for id, in := range s.instructors {
		indexFirst(s.instructorNames, in.DisplayName, id)
	}
	s.subjectNames = make(map[string]int64, len(s.subjects))
	for id, sub := range s.subjects {
		indexFirst(s.subjectNames, sub.Name, id)
	}
	s.dedupe = make(map[grade.DedupeKey]int, len(s.measurements))
	for _, m := range s.measurements {
		s.dedupe[m.Key()]++
	}
}

// indexFirst keeps the smallest ID per name.
func indexFirst(index map[string]int64, name string, id int64) {
	if cur, ok := index[name]; !ok || id < cur {
		index[name] = id
	}
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Identities:   make([]roster.Identity, 0, len(s.identities)),
		Instructors:  make([]roster.Instructor, 0, len(s.instructors)),
		Learners:     make([]roster.Learner, 0, len(s.learners)),
		Subjects:     make([]roster.Subject, 0, len(s.subjects)),
		Measurements: make([]grade.Measurement, 0, len(s.measurements)),
		Sequences:    s.seq,
	}
	for _, v := range s.identities {
		snap.Identities = append(snap.Identities, v)
	}
	for _, v := range s.instructors {
		snap.Instructors = append(snap.Instructors, v)
	}
	for _, v := range s.learners {
		snap.Learners = append(snap.Learners, v)
	}
	for _, v := range s.subjects {
		snap.Subjects = append(snap.Subjects, v)
	}
	for _, v := range s.measurements {
		snap.Measurements = append(snap.Measurements, v)
	}
	sort.Slice(snap.Identities, func(i, j int) bool { return snap.Identities[i].ID < snap.Identities[j].ID })
	sort.Slice(snap.Instructors, func(i, j int) bool { return snap.Instructors[i].ID < snap.Instructors[j].ID })
	sort.Slice(snap.Learners, func(i, j int) bool { return snap.Learners[i].ID < snap.Learners[j].ID })
	sort.Slice(snap.Subjects, func(i, j int) bool { return snap.Subjects[i].ID < snap.Subjects[j].ID })
	sort.Slice(snap.Measurements, func(i, j int) bool { return snap.Measurements[i].ID < snap.Measurements[j].ID })
	return snap
}

func stateFromSnapshot(snap Snapshot) *state {
	s := newState()
	s.seq = snap.Sequences
	for _, v := range snap.Identities {
		s.identities[v.ID] = v
		s.seq.Identity = max(s.seq.Identity, v.ID)
	}
	for _, v := range snap.Instructors {
		s.instructors[v.ID] = v
		s.seq.Instructor = max(s.seq.Instructor, v.ID)
	}
	for _, v := range snap.Learners {
		s.learners[v.ID] = v
		s.seq.Learner = max(s.seq.Learner, v.ID)
	}
	for _, v := range snap.Subjects {
		s.subjects[v.ID] = v
		s.seq.Subject = max(s.seq.Subject, v.ID)
	}
	for _, v := range snap.Measurements {
		s.measurements[v.ID] = v
		s.seq.Measurement = max(s.seq.Measurement, v.ID)
	}
	s.reindex()
	return s
}

// protectedIdentities returns the set of identity IDs that survive a wipe.
func (s *state) protectedIdentities() map[int64]bool {
	out := map[int64]bool{}
	for id, ident := range s.identities {
		if ident.Protected {
			out[id] = true
		}
	}
	return out
}
