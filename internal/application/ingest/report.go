package ingest

import (
	"time"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
)

// Mode selects the ingestion strategy.
type Mode string

const (
	// ModeFullReplace wipes the store and ingests one batch without dedupe.
	ModeFullReplace Mode = "full_replace"
	// ModeMergeRefresh ingests many batches with dedupe, one transaction each.
	ModeMergeRefresh Mode = "merge_refresh"
)

// IsValid checks the mode.
func (m Mode) IsValid() bool {
	return m == ModeFullReplace || m == ModeMergeRefresh
}

// Created counts entities created by the resolver.
type Created struct {
	Learners    int `json:"learners"`
	Instructors int `json:"instructors"`
	Subjects    int `json:"subjects"`
}

func (c *Created) add(ref EntityRef) {
	if !ref.Created {
		return
	}
	switch ref.Kind {
	case roster.KindLearner:
		c.Learners++
	case roster.KindInstructor:
		c.Instructors++
	case roster.KindSubject:
		c.Subjects++
	}
}

func (c *Created) merge(o Created) {
	c.Learners += o.Learners
	c.Instructors += o.Instructors
	c.Subjects += o.Subjects
}

// Deleted counts what a wipe removed.
type Deleted struct {
	Measurements int `json:"measurements"`
	Learners     int `json:"learners"`
	Instructors  int `json:"instructors"`
	Subjects     int `json:"subjects"`
	Identities   int `json:"identities"`
}

// BatchResult describes one batch of a run.
type BatchResult struct {
	Source   string        `json:"source"`
	Rows     int           `json:"rows"`
	Added    int           `json:"added"`
	Skipped  int           `json:"skipped"`
	Created  Created       `json:"created"`
	Duration time.Duration `json:"duration_ns"`

	// Err is set when the batch was rejected or rolled back.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Failed reports whether the batch did not commit.
func (b BatchResult) Failed() bool {
	return b.Err != nil
}

func (b *BatchResult) fail(err error) {
	b.Err = err
	b.Error = err.Error()
	b.Added, b.Skipped = 0, 0
	b.Created = Created{}
}

// FullReplaceReport is the outcome of a full replace.
type FullReplaceReport struct {
	RunID   string       `json:"run_id"`
	Batch   BatchResult  `json:"batch"`
	Deleted Deleted      `json:"deleted"`
	Before  store.Totals `json:"before"`
	After   store.Totals `json:"after"`
}

// MergeReport is the outcome of a merge refresh. On an aborting error the
// report covers the batches processed so far.
type MergeReport struct {
	RunID                 string        `json:"run_id"`
	RemovedOrphanSubjects int           `json:"removed_orphan_subjects"`
	Added                 int           `json:"added"`
	Skipped               int           `json:"skipped"`
	Created               Created       `json:"created"`
	Batches               []BatchResult `json:"batches"`
	TotalMeasurements     int           `json:"total_measurements"`
}

// ErrorsBySource returns the error of every failed batch.
func (r *MergeReport) ErrorsBySource() map[string]error {
	out := make(map[string]error)
	for _, b := range r.Batches {
		if b.Failed() {
			out[b.Source] = b.Err
		}
	}
	return out
}

func (r *MergeReport) record(b BatchResult) {
	r.Batches = append(r.Batches, b)
	if b.Failed() {
		return
	}
	r.Added += b.Added
	r.Skipped += b.Skipped
	r.Created.merge(b.Created)
}

// Report is the mode-independent outcome returned by Ingest.
type Report struct {
	Mode        Mode               `json:"mode"`
	FullReplace *FullReplaceReport `json:"full_replace,omitempty"`
	Merge       *MergeReport       `json:"merge,omitempty"`
}

// WipeReport is the outcome of a standalone wipe.
type WipeReport struct {
	RunID   string       `json:"run_id"`
	Deleted Deleted      `json:"deleted"`
	After   store.Totals `json:"after"`
}
