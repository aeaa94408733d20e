package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
	"github.com/alem-hub/tutoring-hub/internal/infrastructure/source"
)

type importOptions struct {
	s3    bool
	s3Key string
}

func newImportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Ingest grade exports",
	}
	cmd.AddCommand(newImportReplaceCmd(c), newImportRefreshCmd(c))
	return cmd
}

func newImportReplaceCmd(c *cli) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "replace [FILE]",
		Short: "Delete all data except the admin, then load one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				sources, err := resolveSources(ctx, a, args, opts)
				if err != nil {
					return err
				}
				if len(sources) != 1 {
					return withCode(exitUsage, fmt.Errorf("replace takes exactly one batch, got %d", len(sources)))
				}
				report, err := a.ingest.FullReplace(ctx, sources[0])
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil && err == nil {
						err = werr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.s3Key, "s3-key", "", "Read the batch from this object key in the configured bucket")
	return cmd
}

func newImportRefreshCmd(c *cli) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "refresh [PATTERN...]",
		Short: "Merge batches into the store, skipping duplicate measurements",
		Long: "Merge batches into the store, skipping duplicate measurements.\n" +
			"Each batch commits on its own; a batch with a bad header is skipped.\n" +
			"Without arguments the SOURCE_GLOBS patterns are used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				sources, err := resolveSources(ctx, a, args, opts)
				if err != nil {
					return err
				}
				report, err := a.ingest.MergeRefresh(ctx, sources)
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil && err == nil {
						err = werr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&opts.s3, "s3", false, "Also read every .csv object under the configured bucket prefix")
	cmd.Flags().StringVar(&opts.s3Key, "s3-key", "", "Also read this object key from the configured bucket")
	return cmd
}

// resolveSources собирает источники: аргументы, затем S3.
// Без аргументов и S3 используются глобы из конфигурации.
func resolveSources(ctx context.Context, a *app, args []string, opts importOptions) ([]ingest.Source, error) {
	patterns := args
	useS3 := opts.s3 || opts.s3Key != ""
	if len(patterns) == 0 && !useS3 {
		patterns = a.cfg.Sources.Globs
	}

	var out []ingest.Source
	if len(patterns) > 0 {
		files, err := source.Glob(patterns...)
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		out = append(out, files...)
	}

	if useS3 {
		if a.s3 == nil {
			return nil, withCode(exitUsage, errors.New("S3_BUCKET is not configured"))
		}
		if opts.s3Key != "" {
			out = append(out, a.s3.Object(opts.s3Key))
		}
		if opts.s3 {
			objects, err := a.s3.List(ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, objects...)
		}
	}

	if len(out) == 0 {
		return nil, withCode(exitUsage, errors.New("no batch sources: pass files or configure SOURCE_GLOBS"))
	}
	return out, nil
}

func newWipeCmd(c *cli) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all measurements, subjects and non-admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return withCode(exitUsage, errors.New("wipe deletes all data; pass --yes to confirm"))
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				report, err := a.ingest.Wipe(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the wipe")
	return cmd
}
