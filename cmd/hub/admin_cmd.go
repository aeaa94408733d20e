package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alem-hub/tutoring-hub/internal/application/command"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/persistence/postgres"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Counts of accounts, learners, instructors, subjects and measurements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				status, err := a.status.Handle(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}

type bootstrapOutput struct {
	IdentityID int64  `json:"identity_id"`
	Handle     string `json:"handle"`
	Email      string `json:"email"`
	Created    bool   `json:"created"`
}

func newBootstrapCmd(c *cli) *cobra.Command {
	var handle string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the protected admin account when it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.bootstrap.Handle(ctx, command.BootstrapAdminCommand{
					Handle:      handle,
					Secret:      a.cfg.Ingest.DefaultCredential,
					EmailDomain: a.cfg.Ingest.EmailDomain,
				})
				if err != nil {
					return err
				}
				// хеш пароля не печатаем
				return writeJSON(cmd.OutOrStdout(), bootstrapOutput{
					IdentityID: res.Identity.ID,
					Handle:     res.Identity.Handle,
					Email:      res.Identity.Email,
					Created:    res.Created,
				})
			})
		},
	}

	cmd.Flags().StringVar(&handle, "handle", command.DefaultAdminHandle, "Admin handle")
	return cmd
}

func newAddIdentityCmd(c *cli) *cobra.Command {
	var (
		role  string
		input command.CreateIdentityCommand
	)

	cmd := &cobra.Command{
		Use:   "add-identity HANDLE",
		Short: "Create an account with its instructor or learner profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Handle = args[0]
			input.Role = roster.Role(role)
			return c.run(cmd, func(ctx context.Context, a *app) error {
				req := input
				if req.Secret == "" {
					req.Secret = a.cfg.Ingest.DefaultCredential
				}
				if req.EmailDomain == "" {
					req.EmailDomain = a.cfg.Ingest.EmailDomain
				}
				if req.Role == roster.RoleLearner && req.Cohort == "" {
					req.Cohort = a.cfg.Ingest.DefaultCohort
				}
				res, err := a.createID.Handle(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&role, "role", string(roster.RoleLearner), "Account role: admin, instructor or learner")
	f.StringVar(&input.DisplayName, "name", "", "Display name of the profile")
	f.StringVar(&input.Email, "email", "", "Email (default HANDLE@INGEST_EMAIL_DOMAIN)")
	f.StringVar(&input.ExternalCode, "code", "", "External learner code")
	f.StringVar(&input.Cohort, "cohort", "", "Learner cohort (default from INGEST_DEFAULT_COHORT)")
	f.StringVar(&input.SubjectAffinity, "subject", "", "Instructor subject affinity")
	f.StringVar(&input.Secret, "secret", "", "Initial credential (default from INGEST_DEFAULT_CREDENTIAL)")
	return cmd
}

func newDeleteIdentityCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-identity IDENTITY_ID",
		Short: "Delete an account with its profile and measurements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.deleteID.Handle(ctx, command.DeleteIdentityCommand{IdentityID: id})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

type migrationStatus struct {
	Version   int    `json:"version"`
	Name      string `json:"name"`
	Applied   bool   `json:"applied"`
	AppliedAt string `json:"applied_at,omitempty"`
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *postgres.Migrator) error) error {
		return c.run(cmd, func(ctx context.Context, a *app) error {
			if a.conn == nil {
				return withCode(exitUsage, errors.New("migrations apply to the postgres driver only"))
			}
			return fn(ctx, postgres.NewMigrator(a.conn))
		})
	}

	status := func(cmd *cobra.Command) error {
		return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
			migs, err := m.Status(ctx)
			if err != nil {
				return err
			}
			out := make([]migrationStatus, len(migs))
			for i, mg := range migs {
				out[i] = migrationStatus{Version: mg.Version, Name: mg.Name, Applied: mg.IsApplied}
				if mg.IsApplied {
					out[i].AppliedAt = mg.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				// openApp уже применяет миграции, здесь обычно 0
				return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
					n, err := m.Migrate(ctx)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), map[string]int{"applied": n})
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
					return m.Rollback(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return status(cmd) },
		},
	)
	return cmd
}
