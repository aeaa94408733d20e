package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/pkg/timeutil"
)

func seed(ctx context.Context, tx store.Tx) error {
	r := tx.Roster()
	li := &roster.Identity{Handle: "janedoe", Role: roster.RoleLearner}
	if err := r.CreateIdentity(ctx, li); err != nil {
		return err
	}
	l := &roster.Learner{IdentityID: li.ID, ExternalCode: "S001", DisplayName: "Jane Doe"}
	if err := r.CreateLearner(ctx, l); err != nil {
		return err
	}
	ii := &roster.Identity{Handle: "mrsmith", Role: roster.RoleInstructor}
	if err := r.CreateIdentity(ctx, ii); err != nil {
		return err
	}
	in := &roster.Instructor{IdentityID: ii.ID, DisplayName: "Mr Smith"}
	if err := r.CreateInstructor(ctx, in); err != nil {
		return err
	}
	sub := &roster.Subject{Name: "Mathematics"}
	if err := r.CreateSubject(ctx, sub); err != nil {
		return err
	}
	return tx.Grades().Create(ctx, &grade.Measurement{
		LearnerID: l.ID, InstructorID: in.ID, SubjectID: sub.ID,
		Score: 80, Topic: "Algebra", DayLabel: "Monday", InstructorName: "Mr Smith",
		ExamDate: timeutil.Date(2024, 3, 4),
	})
}

func counts(t *testing.T, st store.Store) store.Totals {
	t.Helper()
	var out store.Totals
	require.NoError(t, st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = store.CountAll(ctx, tx)
		return err
	}))
	return out
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "hub.db")

	st, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.RunInTransaction(ctx, seed))
	want := counts(t, st)
	require.NoError(t, st.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	assert.Equal(t, want, counts(t, reopened))
	assert.Equal(t, path, reopened.Path())

	err = reopened.View(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.Roster().FindLearnerByCode(ctx, "S001")
		require.NoError(t, err)
		exists, err := tx.Grades().Exists(ctx, grade.DedupeKey{
			LearnerID: l.ID, SubjectID: 1, Topic: "Algebra", ExamDate: timeutil.Date(2024, 3, 4),
		})
		require.NoError(t, err)
		assert.True(t, exists, "dedupe index is rebuilt on load")
		return nil
	})
	require.NoError(t, err)

	// sequences survive: a new identity does not reuse an old ID
	var id int64
	require.NoError(t, reopened.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		ident := &roster.Identity{Handle: "newcomer", Role: roster.RoleLearner}
		err := tx.Roster().CreateIdentity(ctx, ident)
		id = ident.ID
		return err
	}))
	assert.Equal(t, int64(3), id)
}

func TestStore_RolledBackTransactionIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hub.db")

	st, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.RunInTransaction(ctx, seed))

	err = st.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Grades().DeleteAll(ctx)
		require.NoError(t, err)
		return shared.ValidationError("test", "Abort", "abort")
	})
	require.Error(t, err)
	require.NoError(t, st.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	assert.Equal(t, 1, counts(t, reopened).Measurements)
}

func TestStore_PersistFailureAbortsCommit(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = st.RunInTransaction(ctx, seed)
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))
	assert.Equal(t, store.Totals{}, counts(t, st))
}
