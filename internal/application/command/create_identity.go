package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE IDENTITY COMMAND
// Adds one account by hand, together with the instructor or learner profile
// its role needs. A handle already in use is rejected, never suffixed.
// ══════════════════════════════════════════════════════════════════════════════

// CreateIdentityCommand contains the data for a new account.
type CreateIdentityCommand struct {
	Handle string
	Role   roster.Role

	// Secret is hashed into the credential. Required.
	Secret string

	// Email defaults to Handle@EmailDomain.
	Email       string
	EmailDomain string

	// Profile fields. DisplayName is required for instructors and learners,
	// ExternalCode for learners.
	DisplayName     string
	SubjectAffinity string
	ExternalCode    string
	Cohort          string
}

// Validate validates the command and fills defaults.
func (c *CreateIdentityCommand) Validate() error {
	const op = "CreateIdentity"

	c.Handle = strings.TrimSpace(c.Handle)
	c.DisplayName = strings.TrimSpace(c.DisplayName)
	c.ExternalCode = strings.TrimSpace(c.ExternalCode)

	if !c.Role.IsValid() {
		return shared.ValidationError("roster", op, fmt.Sprintf("unknown role %q", c.Role))
	}
	if c.Handle == "" {
		return shared.ValidationError("roster", op, "handle is required")
	}
	if roster.NormalizeHandle(c.Handle) != c.Handle {
		return shared.ValidationError("roster", op, fmt.Sprintf("handle %q is not normalised", c.Handle))
	}
	if c.Secret == "" {
		return shared.ValidationError("roster", op, "secret is required")
	}
	if c.Role != roster.RoleAdmin && c.DisplayName == "" {
		return shared.ValidationError("roster", op, "display name is required")
	}
	if c.Role == roster.RoleLearner && c.ExternalCode == "" {
		return shared.ValidationError("roster", op, "external code is required for learners")
	}
	if c.Email == "" {
		c.Email = roster.EmailFor(c.Handle, c.EmailDomain)
	}
	return nil
}

// CreateIdentityResult contains the new account and its profile ID.
type CreateIdentityResult struct {
	IdentityID int64       `json:"identity_id"`
	Handle     string      `json:"handle"`
	Email      string      `json:"email"`
	Role       roster.Role `json:"role"`
	ProfileID  int64       `json:"profile_id,omitempty"`
}

// CreateIdentityHandler handles the CreateIdentityCommand.
type CreateIdentityHandler struct {
	store      store.Store
	serializer Serializer
	hasher     CredentialHasher
	events     shared.EventPublisher
	log        *logger.Logger
	now        func() time.Time
}

// NewCreateIdentityHandler creates a new CreateIdentityHandler.
func NewCreateIdentityHandler(
	st store.Store,
	serializer Serializer,
	hasher CredentialHasher,
	events shared.EventPublisher,
	log *logger.Logger,
) *CreateIdentityHandler {
	if events == nil {
		events = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CreateIdentityHandler{
		store:      st,
		serializer: serializer,
		hasher:     hasher,
		events:     events,
		log:        log.With(logger.Component("create_identity")),
		now:        time.Now,
	}
}

// Handle creates the account and its profile in one transaction.
func (h *CreateIdentityHandler) Handle(ctx context.Context, cmd CreateIdentityCommand) (*CreateIdentityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	hash, err := h.hasher.Hash(cmd.Secret)
	if err != nil {
		return nil, fmt.Errorf("create_identity: hash secret: %w", err)
	}

	result := &CreateIdentityResult{Handle: cmd.Handle, Email: cmd.Email, Role: cmd.Role}
	err = h.serializer.Exclusive(ctx, func(ctx context.Context) error {
		return h.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			repo := tx.Roster()

			taken, err := repo.HandleExists(ctx, cmd.Handle)
			if err != nil {
				return err
			}
			if taken {
				return shared.ErrHandleTaken
			}

			now := h.now().UTC()
			identity := roster.Identity{
				Handle:         cmd.Handle,
				Email:          cmd.Email,
				Role:           cmd.Role,
				CredentialHash: hash,
				Active:         true,
				CreatedAt:      now,
			}
			if err := repo.CreateIdentity(ctx, &identity); err != nil {
				return err
			}
			result.IdentityID = identity.ID

			switch cmd.Role {
			case roster.RoleInstructor:
				in := roster.Instructor{
					IdentityID:      identity.ID,
					DisplayName:     cmd.DisplayName,
					SubjectAffinity: cmd.SubjectAffinity,
					Status:          roster.InstructorStatusActive,
					JoinedAt:        now,
				}
				if err := repo.CreateInstructor(ctx, &in); err != nil {
					return err
				}
				result.ProfileID = in.ID
			case roster.RoleLearner:
				l := roster.Learner{
					IdentityID:   identity.ID,
					ExternalCode: cmd.ExternalCode,
					DisplayName:  cmd.DisplayName,
					Cohort:       cmd.Cohort,
					EnrolledAt:   now,
				}
				if err := repo.CreateLearner(ctx, &l); err != nil {
					return err
				}
				result.ProfileID = l.ID
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("identity created",
		logger.IdentityID(result.IdentityID),
		logger.String("handle", result.Handle),
		logger.String("role", result.Role.String()),
	)
	event := shared.NewStoreChangedEvent(shared.EventIdentityCreated, strconv.FormatInt(result.IdentityID, 10), 1)
	if err := h.events.Publish(event); err != nil {
		h.log.Warn("publish event", logger.Err(err))
	}
	return result, nil
}
