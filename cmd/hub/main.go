// Package main - точка входа CLI Tutoring Hub.
//
// Команды загружают выгрузки оценок (полная замена или слияние),
// строят аналитику по ученикам и преподавателям и обслуживают
// хранилище: миграции, администратор, удаление учётных записей.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/tutoring-hub/config"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXIT CODES
// ══════════════════════════════════════════════════════════════════════════════

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitInput   = 3 // schema, parse or validation errors
	exitStorage = 4
	exitLocked  = 5
)

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var coded *codedError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &coded):
		return coded.code
	case errors.Is(err, shared.ErrLocked):
		return exitLocked
	case shared.IsSchema(err), shared.IsParse(err), shared.IsValidation(err), shared.IsAlreadyExists(err):
		return exitInput
	case shared.IsStorage(err):
		return exitStorage
	default:
		return exitFailure
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(defaultCLI()).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// cli держит фабрику приложения, чтобы тесты могли подменить хранилище.
type cli struct {
	open func(ctx context.Context) (*app, error)
}

func defaultCLI() *cli {
	return &cli{
		open: func(ctx context.Context) (*app, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, withCode(exitUsage, err)
			}
			return openApp(ctx, cfg, newLogger(cfg))
		},
	}
}

// run открывает приложение, выполняет fn с таймаутом команды и закрывает всё.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return c.exec(cmd, true, fn)
}

// serve то же, что run, но без таймаута: для долгоживущих команд.
func (c *cli) serve(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return c.exec(cmd, false, fn)
}

func (c *cli) exec(cmd *cobra.Command, bounded bool, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.log.Warn("close", logger.Err(cerr))
		}
	}()

	if t := a.cfg.App.CommandTimeout; bounded && t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return fn(logger.WithContext(ctx, a.log), a)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "hub",
		Short:         "Tutoring performance hub: grade ingestion and analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newImportCmd(c),
		newWipeCmd(c),
		newTrendsCmd(c),
		newImpactCmd(c),
		newRecommendCmd(c),
		newChartCmd(c),
		newTopicsCmd(c),
		newInstructorsCmd(c),
		newLearnersCmd(c),
		newInstructorLearnersCmd(c),
		newInstructorSubjectsCmd(c),
		newStatusCmd(c),
		newBootstrapCmd(c),
		newAddIdentityCmd(c),
		newDeleteIdentityCmd(c),
		newMigrateCmd(c),
		newServeMetricsCmd(c),
	)
	return root
}

// writeJSON печатает результат команды.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
