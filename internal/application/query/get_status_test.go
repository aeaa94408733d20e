package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/memory"
)

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	h := NewGetStatusHandler(st)

	empty, err := h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Totals{}, empty.Totals)
	assert.Empty(t, empty.AdminHandle)

	require.NoError(t, st.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Roster().CreateIdentity(ctx, &roster.Identity{Handle: "admin", Role: roster.RoleAdmin, Protected: true}); err != nil {
			return err
		}
		return tx.Roster().CreateSubject(ctx, &roster.Subject{Name: "Mathematics"})
	}))

	got, err := h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Totals{Identities: 1, Subjects: 1}, got.Totals)
	assert.Equal(t, "admin", got.AdminHandle)
}
