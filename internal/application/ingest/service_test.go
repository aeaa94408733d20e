package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type countingHasher struct {
	mu    sync.Mutex
	calls int
}

func (h *countingHasher) Hash(secret string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return "hashed:" + secret, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fakeLocker struct {
	locks, unlocks int
	err            error
}

func (l *fakeLocker) Lock(context.Context) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locks++
	return func(context.Context) error { l.unlocks++; return nil }, nil
}

type failingSource struct{ name string }

func (s failingSource) Name() string { return s.name }
func (s failingSource) Open(context.Context) (io.ReadCloser, error) {
	return nil, errors.New("bucket unreachable")
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

var fixedNow = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func csvSource(name string, rows ...string) Source {
	return StaticSource{SourceName: name, Data: []byte(canonicalHeader + "\n" + strings.Join(rows, "\n") + "\n")}
}

// batchB holds two learners whose names normalise to the same handle.
func batchB() Source {
	return csvSource("b.csv",
		"S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80",
		"S002,jane doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,70",
		"S001,Jane Doe,Physics,Optics,2024-03-05,Tuesday,Ms Lee,90",
	)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Store, *countingHasher) {
	t.Helper()
	st := memory.New()
	hasher := &countingHasher{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(st, hasher, DefaultConfig(), opts...), st, hasher
}

func totals(t *testing.T, st store.Store) store.Totals {
	t.Helper()
	var out store.Totals
	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = store.CountAll(ctx, tx)
		return err
	})
	require.NoError(t, err)
	return out
}

func seedAdmin(t *testing.T, st store.Store) {
	t.Helper()
	err := st.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Roster().CreateIdentity(ctx, &roster.Identity{
			Handle: "admin", Role: roster.RoleAdmin, Protected: true, Active: true,
		})
	})
	require.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Full replace
// ─────────────────────────────────────────────────────────────────────────────

func TestFullReplace_CountsMatchRowsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	seedAdmin(t, st)

	first, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Batch.Rows)
	assert.Equal(t, 3, first.Batch.Added)
	assert.Equal(t, Created{Learners: 2, Instructors: 2, Subjects: 2}, first.Batch.Created)
	assert.Equal(t, 1, first.Before.Identities)
	assert.Equal(t, 3, first.After.Measurements)

	second, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)
	assert.Equal(t, 3, second.Deleted.Measurements)
	assert.Equal(t, 2, second.Deleted.Learners)
	assert.Equal(t, 4, second.Deleted.Identities)
	assert.Equal(t, first.After, second.After)

	got := totals(t, st)
	assert.Equal(t, 3, got.Measurements)
	assert.Equal(t, 5, got.Identities, "admin plus two learners and two instructors")
}

func TestFullReplace_DuplicateRowsAreKept(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	row := "S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80"
	rep, err := svc.FullReplace(ctx, csvSource("dup.csv", row, row))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Batch.Added)
	assert.Equal(t, 2, totals(t, st).Measurements)
}

func TestFullReplace_HandleCollisionGetsSuffix(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	_, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		first, err := tx.Roster().FindLearnerByCode(ctx, "S001")
		require.NoError(t, err)
		second, err := tx.Roster().FindLearnerByCode(ctx, "S002")
		require.NoError(t, err)

		a, err := tx.Roster().GetIdentity(ctx, first.IdentityID)
		require.NoError(t, err)
		b, err := tx.Roster().GetIdentity(ctx, second.IdentityID)
		require.NoError(t, err)

		assert.Equal(t, "janedoe", a.Handle)
		assert.Equal(t, "janedoe1", b.Handle)
		assert.Equal(t, "janedoe@tutoring.com", a.Email)
		assert.Equal(t, roster.RoleLearner, a.Role)
		assert.Equal(t, "hashed:password321", a.CredentialHash)
		assert.Equal(t, "Form 4", first.Cohort)
		return nil
	})
	require.NoError(t, err)
}

func TestFullReplace_SchemaErrorLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	_, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)
	before := totals(t, st)

	bad := StaticSource{SourceName: "bad.csv", Data: []byte("learner_external_id,score\nS001,80\n")}
	rep, err := svc.FullReplace(ctx, bad)
	require.Error(t, err)
	assert.True(t, shared.IsSchema(err))
	assert.True(t, rep.Batch.Failed())
	assert.Equal(t, before, totals(t, st))
}

func TestFullReplace_ParseErrorRollsBackDeletion(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	_, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)
	before := totals(t, st)

	bad := csvSource("bad.csv",
		"S010,New Learner,Chemistry,Acids,2024-03-04,Monday,Dr Who,60",
		"S011,Other Learner,Chemistry,Acids,not-a-date,Monday,Dr Who,60",
	)
	_, err = svc.FullReplace(ctx, bad)
	require.Error(t, err)
	assert.True(t, shared.IsParse(err))
	assert.Contains(t, err.Error(), "line 3")

	assert.Equal(t, before, totals(t, st))
	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		exists, err := tx.Roster().HandleExists(ctx, "newlearner")
		require.NoError(t, err)
		assert.False(t, exists, "identities created by a failed batch are discarded")
		return nil
	})
	require.NoError(t, err)
}

func TestFullReplace_KeepsProtectedAdmin(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	seedAdmin(t, st)

	_, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)
	_, err = svc.FullReplace(ctx, batchB())
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		admin, err := tx.Roster().ProtectedAdmin(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), admin.ID)
		return nil
	})
	require.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Merge refresh
// ─────────────────────────────────────────────────────────────────────────────

func TestMergeRefresh_SameBatchTwiceEqualsOnce(t *testing.T) {
	ctx := context.Background()

	once, stOnce, _ := newTestService(t)
	_, err := once.MergeRefresh(ctx, []Source{batchB()})
	require.NoError(t, err)

	twice, stTwice, _ := newTestService(t)
	rep, err := twice.MergeRefresh(ctx, []Source{batchB(), batchB()})
	require.NoError(t, err)

	assert.Equal(t, totals(t, stOnce), totals(t, stTwice))
	require.Len(t, rep.Batches, 2)
	assert.Equal(t, 3, rep.Batches[0].Added)
	assert.Equal(t, 0, rep.Batches[1].Added)
	assert.Equal(t, 3, rep.Batches[1].Skipped)
	assert.Equal(t, 3, rep.TotalMeasurements)
}

func TestMergeRefresh_DuplicateWithinBatchWrittenOnce(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	row := "S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80"
	rep, err := svc.MergeRefresh(ctx, []Source{csvSource("dup.csv", row, row)})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, totals(t, st).Measurements)
}

func TestMergeRefresh_EndToEndDedupeAcrossModes(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	row := "S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80"
	_, err := svc.FullReplace(ctx, csvSource("seed.csv", row))
	require.NoError(t, err)

	// same key, different score: still a duplicate
	rep, err := svc.MergeRefresh(ctx, []Source{csvSource("again.csv",
		"S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,95")})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Added)
	assert.Equal(t, 1, totals(t, st).Measurements)
}

func TestMergeRefresh_SchemaBatchSkipped(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	bad := StaticSource{SourceName: "bad.csv", Data: []byte("who,what\nx,y\n")}
	rep, err := svc.MergeRefresh(ctx, []Source{bad, batchB()})
	require.NoError(t, err)

	require.Len(t, rep.Batches, 2)
	assert.True(t, rep.Batches[0].Failed())
	assert.True(t, shared.IsSchema(rep.Batches[0].Err))
	assert.NotEmpty(t, rep.Batches[0].Error)
	assert.False(t, rep.Batches[1].Failed())

	errs := rep.ErrorsBySource()
	assert.Len(t, errs, 1)
	assert.Contains(t, errs, "bad.csv")

	assert.Equal(t, 3, totals(t, st).Measurements)
}

func TestMergeRefresh_ParseErrorStopsRunKeepsEarlierBatches(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	good := csvSource("good.csv", "S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80")
	broken := csvSource("broken.csv",
		"S002,John Roe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,70",
		"S003,Ann Poe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,seventy",
	)
	never := csvSource("never.csv", "S004,Max Moe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,60")

	rep, err := svc.MergeRefresh(ctx, []Source{good, broken, never})
	require.Error(t, err)
	assert.True(t, shared.IsParse(err))

	require.NotNil(t, rep)
	require.Len(t, rep.Batches, 2, "the run stops at the failing batch")
	assert.False(t, rep.Batches[0].Failed())
	assert.True(t, rep.Batches[1].Failed())
	assert.Equal(t, 1, rep.Added)

	got := totals(t, st)
	assert.Equal(t, 1, got.Measurements)
	assert.Equal(t, 1, got.Learners, "learners of the failed batch are rolled back")
}

func TestMergeRefresh_SourceOpenFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	rep, err := svc.MergeRefresh(ctx, []Source{failingSource{name: "s3://bucket/a.csv"}})
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))
	require.Len(t, rep.Batches, 1)
	assert.True(t, rep.Batches[0].Failed())
}

func TestMergeRefresh_RemovesOrphanSubjects(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	err := st.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Roster().CreateSubject(ctx, &roster.Subject{Name: "Latin"})
	})
	require.NoError(t, err)

	rep, err := svc.MergeRefresh(ctx, []Source{batchB()})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.RemovedOrphanSubjects)
	assert.Equal(t, 2, totals(t, st).Subjects)
}

func TestMergeRefresh_LearnerFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	_, err := svc.MergeRefresh(ctx, []Source{
		csvSource("a.csv", "S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80"),
		csvSource("b.csv", "S001,Janet Doe,Mathematics,Geometry,2024-03-05,Tuesday,Mr Smith,82"),
	})
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.Roster().FindLearnerByCode(ctx, "S001")
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", l.DisplayName)

		ms, err := tx.Grades().List(ctx, grade.Filter{LearnerID: l.ID})
		require.NoError(t, err)
		assert.Len(t, ms, 2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, totals(t, st).Learners)
}

func TestMergeRefresh_EmptyHandleIsValidationError(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	_, err := svc.MergeRefresh(ctx, []Source{csvSource("odd.csv",
		"S001,'.',Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80")})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Zero(t, totals(t, st).Identities)
}

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

func TestIngest_HashesDefaultCredentialOncePerRun(t *testing.T) {
	ctx := context.Background()
	svc, _, hasher := newTestService(t)

	_, err := svc.MergeRefresh(ctx, []Source{batchB(), csvSource("c.csv",
		"S009,Zed Zee,Biology,Cells,2024-03-06,Wednesday,Dr Kay,77")})
	require.NoError(t, err)
	assert.Equal(t, 1, hasher.calls)
}

func TestIngest_PublishesEventsAfterCommit(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, _, _ := newTestService(t, WithEventPublisher(pub))

	_, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)
	_, err = svc.MergeRefresh(ctx, []Source{batchB()})
	require.NoError(t, err)
	_, err = svc.FullReplace(ctx, StaticSource{SourceName: "bad.csv", Data: []byte("x\n")})
	require.Error(t, err)

	assert.Equal(t, []shared.EventType{shared.EventStoreReplaced, shared.EventBatchIngested}, pub.types())
}

func TestIngest_UsesLocker(t *testing.T) {
	ctx := context.Background()
	locker := &fakeLocker{}
	svc, _, _ := newTestService(t, WithLocker(locker))

	_, err := svc.MergeRefresh(ctx, []Source{batchB()})
	require.NoError(t, err)
	_, err = svc.Wipe(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, locker.locks)
	assert.Equal(t, 2, locker.unlocks)
}

func TestIngest_LockFailureStopsRun(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t, WithLocker(&fakeLocker{err: shared.ErrIngestionLocked}))

	_, err := svc.FullReplace(ctx, batchB())
	assert.ErrorIs(t, err, shared.ErrLocked)
	assert.Zero(t, totals(t, st).Measurements)
}

func TestIngest_ModeDispatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Ingest(ctx, ModeFullReplace, []Source{batchB(), batchB()})
	assert.True(t, shared.IsValidation(err))

	_, err = svc.Ingest(ctx, Mode("sideways"), []Source{batchB()})
	assert.True(t, shared.IsValidation(err))

	rep, err := svc.Ingest(ctx, ModeMergeRefresh, []Source{batchB()})
	require.NoError(t, err)
	require.NotNil(t, rep.Merge)
	assert.Nil(t, rep.FullReplace)

	_, err = svc.MergeRefresh(ctx, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestWipe_RemovesEverythingButAdmin(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	seedAdmin(t, st)

	_, err := svc.FullReplace(ctx, batchB())
	require.NoError(t, err)

	rep, err := svc.Wipe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Deleted.Measurements)
	assert.Equal(t, 2, rep.Deleted.Subjects)
	assert.Equal(t, store.Totals{Identities: 1}, rep.After)
}

func TestMeasurementWriter_StoresScoreAsSupplied(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	_, err := svc.FullReplace(ctx, csvSource("odd.csv",
		"S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,-12.5",
		"S001,Jane Doe,Mathematics,Algebra,2024-03-05,Tuesday,Mr Smith,140"))
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ms, err := tx.Grades().List(ctx, grade.Filter{})
		require.NoError(t, err)
		require.Len(t, ms, 2)
		assert.Equal(t, -12.5, ms[0].Score)
		assert.Equal(t, 140.0, ms[1].Score)
		assert.Equal(t, "Mr Smith", ms[0].InstructorName)
		assert.Equal(t, fixedNow, ms[0].CreatedAt)
		return nil
	})
	require.NoError(t, err)
}

func TestResolver_DispatchesOnKind(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	r := NewResolver(DefaultConfig(), &countingHasher{}, time.Now)

	err := st.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := tx.Roster()

		in, err := r.Resolve(ctx, repo, roster.KindInstructor, "Mr Smith", Attributes{SubjectAffinity: "Mathematics"})
		require.NoError(t, err)
		assert.Equal(t, roster.KindInstructor, in.Kind)
		assert.True(t, in.Created)
		assert.NotZero(t, in.IdentityID)

		again, err := r.Resolve(ctx, repo, roster.KindInstructor, "Mr Smith", Attributes{})
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, in.ID, again.ID)

		sub, err := r.Resolve(ctx, repo, roster.KindSubject, "Physics", Attributes{})
		require.NoError(t, err)
		assert.Zero(t, sub.IdentityID)

		_, err = r.Resolve(ctx, repo, roster.Kind("room"), "B12", Attributes{})
		assert.True(t, shared.IsValidation(err))
		return nil
	})
	require.NoError(t, err)
}

func TestRecord_NaturalKeys(t *testing.T) {
	rec := Record{LearnerCode: "S001", LearnerName: "Jane Doe", InstructorName: "Mr Smith", Subject: "Mathematics"}

	key, attrs := rec.naturalKey(roster.KindLearner)
	assert.Equal(t, "S001", key)
	assert.Equal(t, "Jane Doe", attrs.DisplayName)

	key, attrs = rec.naturalKey(roster.KindInstructor)
	assert.Equal(t, "Mr Smith", key)
	assert.Equal(t, "Mathematics", attrs.SubjectAffinity)

	key, _ = rec.naturalKey(roster.KindSubject)
	assert.Equal(t, "Mathematics", key)
}
