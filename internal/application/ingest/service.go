// Package ingest contains the write path: batch parsing, entity resolution,
// measurement writing and the two ingestion modes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the defaults applied to entities created during ingestion.
type Config struct {
	// DefaultCredential is the initial secret of every created identity.
	DefaultCredential string

	// EmailDomain is appended to handles to derive email addresses.
	EmailDomain string

	// DefaultCohort is the cohort label of created learners.
	DefaultCohort string
}

// DefaultConfig returns the stock ingestion defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCredential: "password321",
		EmailDomain:       "tutoring.com",
		DefaultCohort:     "Form 4",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Locker provides cross-process mutual exclusion for ingestion runs.
type Locker interface {
	// Lock blocks until the lock is held or ctx ends.
	// The returned function releases the lock.
	Lock(ctx context.Context) (unlock func(context.Context) error, err error)
}

// Recorder receives ingestion metrics.
type Recorder interface {
	BatchCompleted(mode Mode, result BatchResult)
	RunCompleted(mode Mode, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) BatchCompleted(Mode, BatchResult)        {}
func (nopRecorder) RunCompleted(Mode, time.Duration, error) {}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service runs ingestions. At most one ingestion or wipe runs at a time
// per process; a Locker extends that across processes.
type Service struct {
	store   store.Store
	hasher  CredentialHasher
	cfg     Config
	locker  Locker
	events  shared.EventPublisher
	metrics Recorder
	log     *logger.Logger
	now     func() time.Time
	runID   func() string

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLocker adds a distributed lock around every run.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithEventPublisher publishes an event after every commit.
func WithEventPublisher(p shared.EventPublisher) Option { return func(s *Service) { s.events = p } }

// WithRecorder reports metrics.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock sets the time source for created_at stamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates an ingestion service over st.
func NewService(st store.Store, hasher CredentialHasher, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:   st,
		hasher:  hasher,
		cfg:     cfg,
		events:  shared.NopPublisher{},
		metrics: nopRecorder{},
		log:     logger.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
		runID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("ingest"))
	return s
}

// Exclusive runs fn while holding the ingestion lock.
func (s *Service) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release ingestion lock", logger.Err(err))
			}
		}()
	}
	return fn(ctx)
}

// Ingest runs one ingestion in the given mode. Full replace takes exactly one source.
func (s *Service) Ingest(ctx context.Context, mode Mode, sources []Source) (*Report, error) {
	switch mode {
	case ModeFullReplace:
		if len(sources) != 1 {
			return nil, shared.ValidationError("ingest", "Ingest",
				fmt.Sprintf("full replace takes exactly one batch, got %d", len(sources)))
		}
		rep, err := s.FullReplace(ctx, sources[0])
		return &Report{Mode: mode, FullReplace: rep}, err
	case ModeMergeRefresh:
		rep, err := s.MergeRefresh(ctx, sources)
		return &Report{Mode: mode, Merge: rep}, err
	}
	return nil, shared.ValidationError("ingest", "Ingest", fmt.Sprintf("unknown mode %q", mode))
}

// FullReplace deletes all measurements, all non-protected accounts and all
// subjects, then ingests src without dedupe. Deletion and reinsertion share
// one transaction: on any error the store is left as it was.
func (s *Service) FullReplace(ctx context.Context, src Source) (*FullReplaceReport, error) {
	if src == nil {
		return nil, shared.ErrNoSources
	}

	runID := s.runID()
	log := s.log.WithRunID(runID).With(logger.Mode(string(ModeFullReplace)))
	report := &FullReplaceReport{RunID: runID, Batch: BatchResult{Source: src.Name()}}
	started := time.Now()

	err := s.Exclusive(ctx, func(ctx context.Context) error {
		rc, batch, err := s.open(ctx, src)
		if err != nil {
			return err
		}
		defer rc.Close()

		resolver := NewResolver(s.cfg, s.hasher, s.now)
		writer := NewMeasurementWriter(s.now)

		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			before, err := store.CountAll(ctx, tx)
			if err != nil {
				return err
			}
			deleted, err := wipe(ctx, tx)
			if err != nil {
				return err
			}
			result := BatchResult{Source: src.Name()}
			if err := applyBatch(ctx, tx, batch, resolver, writer, false, &result); err != nil {
				return err
			}
			after, err := store.CountAll(ctx, tx)
			if err != nil {
				return err
			}
			report.Before, report.Deleted, report.Batch, report.After = before, deleted, result, after
			return nil
		})
	})

	report.Batch.Duration = time.Since(started)
	if err != nil {
		report.Batch.fail(err)
		report.Before, report.After, report.Deleted = store.Totals{}, store.Totals{}, Deleted{}
		s.metrics.BatchCompleted(ModeFullReplace, report.Batch)
		s.metrics.RunCompleted(ModeFullReplace, time.Since(started), err)
		log.Error("full replace rolled back", logger.Source(src.Name()), logger.Err(err))
		return report, err
	}

	s.metrics.BatchCompleted(ModeFullReplace, report.Batch)
	s.metrics.RunCompleted(ModeFullReplace, time.Since(started), nil)
	log.Info("full replace committed",
		logger.Source(src.Name()),
		logger.Int("rows", report.Batch.Rows),
		logger.Int("added", report.Batch.Added),
		logger.Int("deleted_measurements", report.Deleted.Measurements),
		logger.Latency(report.Batch.Duration),
	)
	s.publish(log, shared.NewStoreChangedEvent(shared.EventStoreReplaced, runID, report.Batch.Added))
	return report, nil
}

// MergeRefresh removes orphan subjects, then ingests each source in its own
// transaction with dedupe. A batch rejected for its schema is recorded and
// skipped. Any other error stops the run: committed batches stay, the
// failing batch rolls back, and the partial report is returned with the error.
func (s *Service) MergeRefresh(ctx context.Context, sources []Source) (*MergeReport, error) {
	if len(sources) == 0 {
		return nil, shared.ErrNoSources
	}

	runID := s.runID()
	log := s.log.WithRunID(runID).With(logger.Mode(string(ModeMergeRefresh)))
	report := &MergeReport{RunID: runID, Batches: make([]BatchResult, 0, len(sources))}
	started := time.Now()

	err := s.Exclusive(ctx, func(ctx context.Context) error {
		err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			n, err := tx.Roster().DeleteOrphanSubjects(ctx)
			report.RemovedOrphanSubjects = n
			return err
		})
		if err != nil {
			return err
		}
		if report.RemovedOrphanSubjects > 0 {
			log.Info("orphan subjects removed", logger.Int("count", report.RemovedOrphanSubjects))
			s.publish(log, shared.NewStoreChangedEvent(shared.EventOrphansCollected, runID, report.RemovedOrphanSubjects))
		}

		resolver := NewResolver(s.cfg, s.hasher, s.now)
		writer := NewMeasurementWriter(s.now)

		for _, src := range sources {
			result, err := s.mergeBatch(ctx, src, resolver, writer)
			report.record(result)
			s.metrics.BatchCompleted(ModeMergeRefresh, result)

			switch {
			case err == nil:
				log.Info("batch committed",
					logger.Source(result.Source),
					logger.Int("rows", result.Rows),
					logger.Int("added", result.Added),
					logger.Int("skipped", result.Skipped),
					logger.Latency(result.Duration),
				)
				s.publish(log, shared.NewBatchIngestedEvent(runID, result.Source, string(ModeMergeRefresh), result.Added, result.Skipped))
			case shared.IsSchema(err):
				log.Warn("batch rejected", logger.Source(result.Source), logger.Err(err))
			default:
				log.Error("batch rolled back, run stopped", logger.Source(result.Source), logger.Err(err))
				return err
			}
		}

		return s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
			n, err := tx.Grades().Count(ctx)
			report.TotalMeasurements = n
			return err
		})
	})

	s.metrics.RunCompleted(ModeMergeRefresh, time.Since(started), err)
	if err != nil {
		return report, err
	}
	log.Info("merge refresh finished",
		logger.Int("batches", len(report.Batches)),
		logger.Int("added", report.Added),
		logger.Int("skipped", report.Skipped),
		logger.Int("total_measurements", report.TotalMeasurements),
	)
	return report, nil
}

func (s *Service) mergeBatch(ctx context.Context, src Source, resolver *Resolver, writer MeasurementWriter) (BatchResult, error) {
	result := BatchResult{Source: src.Name()}
	started := time.Now()

	rc, batch, err := s.open(ctx, src)
	if err != nil {
		result.fail(err)
		result.Duration = time.Since(started)
		return result, err
	}
	defer rc.Close()

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		attempt := BatchResult{Source: src.Name()}
		if err := applyBatch(ctx, tx, batch, resolver, writer, true, &attempt); err != nil {
			return err
		}
		result = attempt
		return nil
	})
	if err != nil {
		result.fail(err)
	}
	result.Duration = time.Since(started)
	return result, err
}

// Wipe runs the deletion phase of a full replace on its own.
func (s *Service) Wipe(ctx context.Context) (*WipeReport, error) {
	runID := s.runID()
	log := s.log.WithRunID(runID).With(logger.Operation("wipe"))
	report := &WipeReport{RunID: runID}

	err := s.Exclusive(ctx, func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			deleted, err := wipe(ctx, tx)
			if err != nil {
				return err
			}
			after, err := store.CountAll(ctx, tx)
			if err != nil {
				return err
			}
			report.Deleted, report.After = deleted, after
			return nil
		})
	})
	if err != nil {
		log.Error("wipe rolled back", logger.Err(err))
		return nil, err
	}

	log.Info("store wiped",
		logger.Int("measurements", report.Deleted.Measurements),
		logger.Int("identities", report.Deleted.Identities),
	)
	s.publish(log, shared.NewStoreChangedEvent(shared.EventStoreWiped, runID, report.Deleted.Measurements))
	return report, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) open(ctx context.Context, src Source) (io.ReadCloser, *Batch, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, nil, shared.WrapError("ingest", "OpenSource", shared.ErrStorage,
			fmt.Sprintf("open batch %s", src.Name()), err)
	}
	batch, err := OpenBatch(src.Name(), rc)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return rc, batch, nil
}

func (s *Service) publish(log *logger.Logger, event shared.Event) {
	if err := s.events.Publish(event); err != nil {
		log.Warn("publish event", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
}

// wipe deletes measurements, non-protected profiles, subjects and
// non-protected identities, in dependency order.
func wipe(ctx context.Context, tx store.Tx) (Deleted, error) {
	var (
		d   Deleted
		err error
	)
	if d.Measurements, err = tx.Grades().DeleteAll(ctx); err != nil {
		return Deleted{}, err
	}
	r := tx.Roster()
	if d.Learners, err = r.DeleteUnprotectedLearners(ctx); err != nil {
		return Deleted{}, err
	}
	if d.Instructors, err = r.DeleteUnprotectedInstructors(ctx); err != nil {
		return Deleted{}, err
	}
	if d.Subjects, err = r.DeleteAllSubjects(ctx); err != nil {
		return Deleted{}, err
	}
	if d.Identities, err = r.DeleteUnprotectedIdentities(ctx); err != nil {
		return Deleted{}, err
	}
	return d, nil
}

// applyBatch resolves and writes every record of batch in file order.
func applyBatch(ctx context.Context, tx store.Tx, batch *Batch, resolver *Resolver, writer MeasurementWriter, dedupe bool, out *BatchResult) error {
	repo := tx.Roster()
	grades := tx.Grades()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := batch.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Rows++

		at := func(err error) error {
			return fmt.Errorf("%s line %d: %w", batch.Name(), rec.Line, err)
		}

		refs := make(map[roster.Kind]EntityRef, len(resolveOrder))
		for _, kind := range resolveOrder {
			key, attrs := rec.naturalKey(kind)
			ref, err := resolver.Resolve(ctx, repo, kind, key, attrs)
			if err != nil {
				return at(err)
			}
			out.Created.add(ref)
			refs[kind] = ref
		}

		m := &grade.Measurement{
			LearnerID:      refs[roster.KindLearner].ID,
			InstructorID:   refs[roster.KindInstructor].ID,
			SubjectID:      refs[roster.KindSubject].ID,
			Score:          rec.Score,
			Topic:          rec.Topic,
			ExamDate:       rec.ExamDate,
			DayLabel:       rec.DayLabel,
			InstructorName: rec.InstructorName,
		}
		outcome, err := writer.Write(ctx, grades, m, dedupe)
		if err != nil {
			return at(err)
		}
		if outcome == Written {
			out.Added++
		} else {
			out.Skipped++
		}
	}
}
