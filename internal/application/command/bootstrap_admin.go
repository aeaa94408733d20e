// Package command contains write operations outside batch ingestion (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Serializer runs fn while no ingestion or other store mutation is in
// progress. ingest.Service satisfies it.
type Serializer interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// CredentialHasher hashes account secrets.
type CredentialHasher interface {
	Hash(secret string) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP ADMIN COMMAND
// Creates the protected administrator account when it does not exist yet.
// Running it again is a no-op that returns the existing account.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAdminHandle is the handle of the protected administrator.
const DefaultAdminHandle = "admin"

// BootstrapAdminCommand contains the data for a new administrator.
type BootstrapAdminCommand struct {
	// Handle defaults to DefaultAdminHandle.
	Handle string

	// Secret is hashed into the credential. Required.
	Secret string

	// EmailDomain is used to build the address.
	EmailDomain string
}

// Validate validates the command and fills defaults.
func (c *BootstrapAdminCommand) Validate() error {
	if c.Handle == "" {
		c.Handle = DefaultAdminHandle
	}
	if roster.NormalizeHandle(c.Handle) != c.Handle {
		return shared.ValidationError("roster", "BootstrapAdmin", fmt.Sprintf("handle %q is not normalised", c.Handle))
	}
	if c.Secret == "" {
		return shared.ValidationError("roster", "BootstrapAdmin", "secret is required")
	}
	return nil
}

// BootstrapAdminResult contains the administrator account.
type BootstrapAdminResult struct {
	Identity roster.Identity
	Created  bool
}

// BootstrapAdminHandler handles the BootstrapAdminCommand.
type BootstrapAdminHandler struct {
	store      store.Store
	serializer Serializer
	hasher     CredentialHasher
	events     shared.EventPublisher
	log        *logger.Logger
	now        func() time.Time
}

// NewBootstrapAdminHandler creates a new BootstrapAdminHandler.
func NewBootstrapAdminHandler(
	st store.Store,
	serializer Serializer,
	hasher CredentialHasher,
	events shared.EventPublisher,
	log *logger.Logger,
) *BootstrapAdminHandler {
	if events == nil {
		events = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BootstrapAdminHandler{
		store:      st,
		serializer: serializer,
		hasher:     hasher,
		events:     events,
		log:        log.With(logger.Component("bootstrap_admin")),
		now:        time.Now,
	}
}

// Handle executes the bootstrap command.
func (h *BootstrapAdminHandler) Handle(ctx context.Context, cmd BootstrapAdminCommand) (*BootstrapAdminResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &BootstrapAdminResult{}
	err := h.serializer.Exclusive(ctx, func(ctx context.Context) error {
		return h.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			repo := tx.Roster()

			existing, err := repo.ProtectedAdmin(ctx)
			if err == nil {
				result.Identity = *existing
				return nil
			}
			if !shared.IsNotFound(err) {
				return err
			}

			hash, err := h.hasher.Hash(cmd.Secret)
			if err != nil {
				return fmt.Errorf("bootstrap_admin: hash secret: %w", err)
			}
			admin := roster.Identity{
				Handle:         cmd.Handle,
				Email:          roster.EmailFor(cmd.Handle, cmd.EmailDomain),
				Role:           roster.RoleAdmin,
				CredentialHash: hash,
				Active:         true,
				Protected:      true,
				CreatedAt:      h.now().UTC(),
			}
			if err := repo.CreateIdentity(ctx, &admin); err != nil {
				return fmt.Errorf("bootstrap_admin: %w", err)
			}
			result.Identity = admin
			result.Created = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		h.log.Info("administrator created", logger.IdentityID(result.Identity.ID), logger.String("handle", result.Identity.Handle))
		event := shared.NewStoreChangedEvent(shared.EventAdminBootstrap, strconv.FormatInt(result.Identity.ID, 10), 1)
		if err := h.events.Publish(event); err != nil {
			h.log.Warn("publish event", logger.Err(err))
		}
	}
	return result, nil
}
