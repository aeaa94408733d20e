package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE IDENTITY COMMAND
// Removes one account together with its learner or instructor profile and
// every measurement that references that profile. The protected
// administrator cannot be deleted.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteIdentityCommand identifies the account to remove.
type DeleteIdentityCommand struct {
	IdentityID int64
}

// Validate validates the command.
func (c DeleteIdentityCommand) Validate() error {
	if c.IdentityID <= 0 {
		return shared.ValidationError("roster", "DeleteIdentity", "identity_id must be positive")
	}
	return nil
}

// DeleteIdentityResult describes what was removed.
type DeleteIdentityResult struct {
	IdentityID          int64       `json:"identity_id"`
	Handle              string      `json:"handle"`
	Role                roster.Role `json:"role"`
	ProfileDeleted      bool        `json:"profile_deleted"`
	DeletedMeasurements int         `json:"deleted_measurements"`
}

// DeleteIdentityHandler handles the DeleteIdentityCommand.
type DeleteIdentityHandler struct {
	store      store.Store
	serializer Serializer
	events     shared.EventPublisher
	log        *logger.Logger
}

// NewDeleteIdentityHandler creates a new DeleteIdentityHandler.
func NewDeleteIdentityHandler(
	st store.Store,
	serializer Serializer,
	events shared.EventPublisher,
	log *logger.Logger,
) *DeleteIdentityHandler {
	if events == nil {
		events = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DeleteIdentityHandler{
		store:      st,
		serializer: serializer,
		events:     events,
		log:        log.With(logger.Component("delete_identity")),
	}
}

// Handle executes the delete command in one transaction.
func (h *DeleteIdentityHandler) Handle(ctx context.Context, cmd DeleteIdentityCommand) (*DeleteIdentityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &DeleteIdentityResult{IdentityID: cmd.IdentityID}
	err := h.serializer.Exclusive(ctx, func(ctx context.Context) error {
		return h.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			repo := tx.Roster()

			identity, err := repo.GetIdentity(ctx, cmd.IdentityID)
			if err != nil {
				return err
			}
			if identity.Protected {
				return shared.ErrProtectedIdentity
			}
			result.Handle = identity.Handle
			result.Role = identity.Role

			if err := h.deleteProfile(ctx, tx, identity, result); err != nil {
				return err
			}
			return repo.DeleteIdentity(ctx, identity.ID)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("delete_identity: %w", err)
	}

	h.log.Info("identity deleted",
		logger.IdentityID(result.IdentityID),
		logger.String("role", string(result.Role)),
		logger.Int("deleted_measurements", result.DeletedMeasurements),
	)
	event := shared.NewIdentityDeletedEvent(strconv.FormatInt(result.IdentityID, 10), string(result.Role), result.DeletedMeasurements)
	if err := h.events.Publish(event); err != nil {
		h.log.Warn("publish event", logger.Err(err))
	}
	return result, nil
}

// deleteProfile removes the profile bound to identity, if any, and its measurements.
func (h *DeleteIdentityHandler) deleteProfile(ctx context.Context, tx store.Tx, identity *roster.Identity, result *DeleteIdentityResult) error {
	repo := tx.Roster()

	switch identity.Role {
	case roster.RoleLearner:
		learner, err := repo.FindLearnerByIdentity(ctx, identity.ID)
		if shared.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if result.DeletedMeasurements, err = tx.Grades().DeleteByLearner(ctx, learner.ID); err != nil {
			return err
		}
		result.ProfileDeleted = true
		return repo.DeleteLearner(ctx, learner.ID)

	case roster.RoleInstructor:
		instructor, err := repo.FindInstructorByIdentity(ctx, identity.ID)
		if shared.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if result.DeletedMeasurements, err = tx.Grades().DeleteByInstructor(ctx, instructor.ID); err != nil {
			return err
		}
		result.ProfileDeleted = true
		return repo.DeleteInstructor(ctx, instructor.ID)
	}
	return nil
}
