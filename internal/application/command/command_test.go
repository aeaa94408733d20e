package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/memory"
)

type plainHasher struct{ err error }

func (h plainHasher) Hash(secret string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + secret, nil
}

type recordingPublisher struct{ events []shared.Event }

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

const batch = `learner_external_id,learner_display_name,subject_name,topic_label,exam_date,day_label,instructor_display_name,score
S001,Jane Doe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,80
S002,John Roe,Mathematics,Algebra,2024-03-04,Monday,Mr Smith,70
S001,Jane Doe,Physics,Optics,2024-03-05,Tuesday,Ms Lee,90
`

func setup(t *testing.T) (*memory.Store, *ingest.Service) {
	t.Helper()
	st := memory.New()
	svc := ingest.NewService(st, plainHasher{}, ingest.DefaultConfig())
	_, err := svc.FullReplace(context.Background(), ingest.StaticSource{SourceName: "seed.csv", Data: []byte(batch)})
	require.NoError(t, err)
	return st, svc
}

func totals(t *testing.T, st store.Store) store.Totals {
	t.Helper()
	var out store.Totals
	require.NoError(t, st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = store.CountAll(ctx, tx)
		return err
	}))
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Bootstrap
// ─────────────────────────────────────────────────────────────────────────────

func TestBootstrapAdmin_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	pub := &recordingPublisher{}
	h := NewBootstrapAdminHandler(st, svc, plainHasher{}, pub, nil)

	first, err := h.Handle(ctx, BootstrapAdminCommand{Secret: "password321", EmailDomain: "tutoring.com"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "admin", first.Identity.Handle)
	assert.Equal(t, "admin@tutoring.com", first.Identity.Email)
	assert.Equal(t, "hashed:password321", first.Identity.CredentialHash)
	assert.True(t, first.Identity.Protected)
	assert.Equal(t, roster.RoleAdmin, first.Identity.Role)

	second, err := h.Handle(ctx, BootstrapAdminCommand{Secret: "other"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Identity.ID, second.Identity.ID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventAdminBootstrap, pub.events[0].EventType())
}

func TestBootstrapAdmin_SurvivesFullReplace(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	h := NewBootstrapAdminHandler(st, svc, plainHasher{}, nil, nil)

	res, err := h.Handle(ctx, BootstrapAdminCommand{Secret: "s"})
	require.NoError(t, err)

	_, err = svc.FullReplace(ctx, ingest.StaticSource{SourceName: "again.csv", Data: []byte(batch)})
	require.NoError(t, err)

	again, err := h.Handle(ctx, BootstrapAdminCommand{Secret: "s"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Identity.ID, again.Identity.ID)
}

func TestBootstrapAdmin_Validation(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)

	h := NewBootstrapAdminHandler(st, svc, plainHasher{}, nil, nil)
	_, err := h.Handle(ctx, BootstrapAdminCommand{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, BootstrapAdminCommand{Handle: "Big Boss", Secret: "s"})
	assert.True(t, shared.IsValidation(err))

	failing := NewBootstrapAdminHandler(st, svc, plainHasher{err: errors.New("boom")}, nil, nil)
	_, err = failing.Handle(ctx, BootstrapAdminCommand{Secret: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestBootstrapAdmin_HandleTakenByLearner(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	h := NewBootstrapAdminHandler(st, svc, plainHasher{}, nil, nil)

	_, err := h.Handle(ctx, BootstrapAdminCommand{Handle: "janedoe", Secret: "s"})
	assert.True(t, shared.IsAlreadyExists(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete identity
// ─────────────────────────────────────────────────────────────────────────────

func identityOf(t *testing.T, st store.Store, code string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		l, err := tx.Roster().FindLearnerByCode(ctx, code)
		if err != nil {
			return err
		}
		id = l.IdentityID
		return nil
	}))
	return id
}

func TestDeleteIdentity_LearnerCascades(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	pub := &recordingPublisher{}
	h := NewDeleteIdentityHandler(st, svc, pub, nil)

	res, err := h.Handle(ctx, DeleteIdentityCommand{IdentityID: identityOf(t, st, "S001")})
	require.NoError(t, err)
	assert.Equal(t, "janedoe", res.Handle)
	assert.Equal(t, roster.RoleLearner, res.Role)
	assert.True(t, res.ProfileDeleted)
	assert.Equal(t, 2, res.DeletedMeasurements)

	got := totals(t, st)
	assert.Equal(t, 1, got.Learners)
	assert.Equal(t, 1, got.Measurements)
	assert.Equal(t, 3, got.Identities)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventIdentityDeleted, pub.events[0].EventType())
}

func TestDeleteIdentity_InstructorCascades(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	h := NewDeleteIdentityHandler(st, svc, nil, nil)

	var identityID int64
	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		in, err := tx.Roster().FindInstructorByName(ctx, "Mr Smith")
		if err != nil {
			return err
		}
		identityID = in.IdentityID
		return nil
	}))

	res, err := h.Handle(ctx, DeleteIdentityCommand{IdentityID: identityID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedMeasurements)

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ms, err := tx.Grades().List(ctx, grade.Filter{})
		require.NoError(t, err)
		require.Len(t, ms, 1)
		assert.Equal(t, "Ms Lee", ms[0].InstructorName)
		return nil
	}))
}

func TestDeleteIdentity_RefusesProtected(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)

	admin, err := NewBootstrapAdminHandler(st, svc, plainHasher{}, nil, nil).Handle(ctx, BootstrapAdminCommand{Secret: "s"})
	require.NoError(t, err)
	before := totals(t, st)

	h := NewDeleteIdentityHandler(st, svc, nil, nil)
	_, err = h.Handle(ctx, DeleteIdentityCommand{IdentityID: admin.Identity.ID})
	assert.ErrorIs(t, err, shared.ErrProtectedIdentity)
	assert.True(t, shared.IsForbidden(err))
	assert.Equal(t, before, totals(t, st))
}

func TestDeleteIdentity_NotFoundAndInvalid(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	h := NewDeleteIdentityHandler(st, svc, nil, nil)

	_, err := h.Handle(ctx, DeleteIdentityCommand{IdentityID: 9999})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, DeleteIdentityCommand{})
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Create identity
// ─────────────────────────────────────────────────────────────────────────────

func TestCreateIdentity_Instructor(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	pub := &recordingPublisher{}
	h := NewCreateIdentityHandler(st, svc, plainHasher{}, pub, nil)

	res, err := h.Handle(ctx, CreateIdentityCommand{
		Handle:          "mrbrown",
		Role:            roster.RoleInstructor,
		Secret:          "s3cret",
		EmailDomain:     "tutoring.com",
		DisplayName:     "Mr Brown",
		SubjectAffinity: "Chemistry",
	})
	require.NoError(t, err)
	assert.Equal(t, "mrbrown@tutoring.com", res.Email)
	assert.NotZero(t, res.ProfileID)

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.Roster().GetIdentity(ctx, res.IdentityID)
		require.NoError(t, err)
		assert.Equal(t, "hashed:s3cret", identity.CredentialHash)
		assert.True(t, identity.Active)
		assert.False(t, identity.Protected)

		in, err := tx.Roster().GetInstructor(ctx, res.ProfileID)
		require.NoError(t, err)
		assert.Equal(t, "Mr Brown", in.DisplayName)
		assert.Equal(t, roster.InstructorStatusActive, in.Status)
		return nil
	}))

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventIdentityCreated, pub.events[0].EventType())
}

func TestCreateIdentity_Learner(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	h := NewCreateIdentityHandler(st, svc, plainHasher{}, nil, nil)

	res, err := h.Handle(ctx, CreateIdentityCommand{
		Handle:       "annlee",
		Role:         roster.RoleLearner,
		Secret:       "s",
		Email:        "ann@example.org",
		DisplayName:  "Ann Lee",
		ExternalCode: "S010",
		Cohort:       "2024A",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.org", res.Email)

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.Roster().FindLearnerByCode(ctx, "S010")
		require.NoError(t, err)
		assert.Equal(t, res.IdentityID, l.IdentityID)
		assert.Equal(t, "2024A", l.Cohort)
		return nil
	}))
	assert.Equal(t, 3, totals(t, st).Learners)
}

func TestCreateIdentity_RejectsTakenHandle(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	before := totals(t, st)
	h := NewCreateIdentityHandler(st, svc, plainHasher{}, nil, nil)

	_, err := h.Handle(ctx, CreateIdentityCommand{
		Handle: "janedoe", Role: roster.RoleAdmin, Secret: "s",
	})
	assert.ErrorIs(t, err, shared.ErrHandleTaken)
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, before, totals(t, st))
}

func TestCreateIdentity_TakenCodeRollsBack(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	before := totals(t, st)
	h := NewCreateIdentityHandler(st, svc, plainHasher{}, nil, nil)

	_, err := h.Handle(ctx, CreateIdentityCommand{
		Handle: "janetwo", Role: roster.RoleLearner, Secret: "s",
		DisplayName: "Jane Two", ExternalCode: "S001",
	})
	assert.ErrorIs(t, err, shared.ErrLearnerCodeTaken)
	assert.Equal(t, before, totals(t, st))
}

func TestCreateIdentity_Validation(t *testing.T) {
	ctx := context.Background()
	st, svc := setup(t)
	h := NewCreateIdentityHandler(st, svc, plainHasher{}, nil, nil)

	cases := map[string]CreateIdentityCommand{
		"unknown role":     {Handle: "x", Role: "owner", Secret: "s"},
		"empty handle":     {Role: roster.RoleAdmin, Secret: "s"},
		"raw handle":       {Handle: "Big Boss", Role: roster.RoleAdmin, Secret: "s"},
		"no secret":        {Handle: "x", Role: roster.RoleAdmin},
		"no display name":  {Handle: "x", Role: roster.RoleInstructor, Secret: "s"},
		"no external code": {Handle: "x", Role: roster.RoleLearner, Secret: "s", DisplayName: "X"},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.Handle(ctx, cmd)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}
