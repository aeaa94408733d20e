package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alem-hub/tutoring-hub/internal/application/analytics"
	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/pkg/timeutil"
)

// scopeFlags выбирает область аналитики. Без флагов - все оценки.
type scopeFlags struct {
	learner    int64
	instructor int64
	identity   int64
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.learner, "learner", 0, "Restrict to one learner ID")
	cmd.Flags().Int64Var(&f.instructor, "instructor", 0, "Restrict to one instructor ID")
	cmd.Flags().Int64Var(&f.identity, "identity", 0, "Use the scope of this account: admin sees all, others see their own")
	cmd.MarkFlagsMutuallyExclusive("learner", "instructor", "identity")
}

func (f *scopeFlags) resolve(ctx context.Context, a *app) (grade.Scope, error) {
	switch {
	case f.learner < 0 || f.instructor < 0 || f.identity < 0:
		return grade.Scope{}, withCode(exitUsage, errors.New("scope IDs must be positive"))
	case f.identity > 0:
		return a.analytics.ResolveScope(ctx, f.identity)
	case f.learner > 0:
		return grade.LearnerScope(f.learner), nil
	case f.instructor > 0:
		return grade.InstructorScope(f.instructor), nil
	}
	return grade.AllScope(), nil
}

// viewFlags сужают вывод отчёта и фиксируют момент, от которого считается окно.
type viewFlags struct {
	dimension string
	asOf      string
}

func (f *viewFlags) register(cmd *cobra.Command, windowed bool) {
	cmd.Flags().StringVar(&f.dimension, "dimension", "", "Print one dimension only: day_of_week, teacher_name or topic")
	if windowed {
		cmd.Flags().StringVar(&f.asOf, "as-of", "", "End the window at this date (YYYY-MM-DD) instead of now")
	}
}

// service возвращает сервис аналитики с часами, закреплёнными на --as-of.
func (f *viewFlags) service(a *app) (*analytics.Service, error) {
	if f.asOf == "" {
		return a.analytics, nil
	}
	at, err := timeutil.ParseDate(f.asOf)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return a.analytics.AsOf(at), nil
}

// only оставляет в отчёте одно измерение, если задан --dimension.
func only[R ~map[grade.Dimension]V, V any](f *viewFlags, report R) (R, error) {
	if f.dimension == "" {
		return report, nil
	}
	d, err := grade.ParseDimension(f.dimension)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return R{d: report[d]}, nil
}

func newTrendsCmd(c *cli) *cobra.Command {
	var (
		scope scopeFlags
		view  viewFlags
		days  int
	)

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Average score by day, instructor and topic over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				s, err := scope.resolve(ctx, a)
				if err != nil {
					return err
				}
				svc, err := view.service(a)
				if err != nil {
					return err
				}
				report, err := svc.Trends(ctx, s, days)
				if err != nil {
					return err
				}
				report, err = only(&view, report)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	scope.register(cmd)
	view.register(cmd, true)
	cmd.Flags().IntVar(&days, "days", 0, "Window in days (default from ANALYTICS_TREND_WINDOW_DAYS)")
	return cmd
}

func newImpactCmd(c *cli) *cobra.Command {
	var (
		scope scopeFlags
		view  viewFlags
	)

	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Deviation of each day, instructor and topic from the global average",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				s, err := scope.resolve(ctx, a)
				if err != nil {
					return err
				}
				report, err := a.analytics.Impact(ctx, s)
				if err != nil {
					return err
				}
				report, err = only(&view, report)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	scope.register(cmd)
	view.register(cmd, false)
	return cmd
}

func newRecommendCmd(c *cli) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Up to five recommendations for the scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				s, err := scope.resolve(ctx, a)
				if err != nil {
					return err
				}
				recs, err := a.analytics.Recommendations(ctx, s)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			})
		},
	}

	scope.register(cmd)
	return cmd
}

func newChartCmd(c *cli) *cobra.Command {
	var (
		scope scopeFlags
		view  viewFlags
		days  int
	)

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Chart series of the latest measurements with per-dimension averages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				s, err := scope.resolve(ctx, a)
				if err != nil {
					return err
				}
				svc, err := view.service(a)
				if err != nil {
					return err
				}
				series, err := svc.ChartData(ctx, s, days)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), series)
			})
		},
	}

	scope.register(cmd)
	cmd.Flags().StringVar(&view.asOf, "as-of", "", "End the window at this date (YYYY-MM-DD) instead of now")
	cmd.Flags().IntVar(&days, "days", 0, "Window in days (default from ANALYTICS_CHART_WINDOW_DAYS)")
	return cmd
}

func newTopicsCmd(c *cli) *cobra.Command {
	return instructorViewCmd(c, "topics INSTRUCTOR_ID", "Per-topic average and count for one instructor",
		func(ctx context.Context, a *app, id int64) (any, error) { return a.analytics.InstructorTopics(ctx, id) })
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER SUMMARIES
// ══════════════════════════════════════════════════════════════════════════════

func newInstructorsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "instructors",
		Short: "Every instructor with average, impact and learner count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				rows, err := a.analytics.InstructorRoster(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func newLearnersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "learners",
		Short: "Every learner with their average score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				rows, err := a.analytics.LearnerRoster(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func newInstructorLearnersCmd(c *cli) *cobra.Command {
	return instructorViewCmd(c, "instructor-learners INSTRUCTOR_ID", "Learners of one instructor with their average under them",
		func(ctx context.Context, a *app, id int64) (any, error) { return a.analytics.InstructorLearners(ctx, id) })
}

func newInstructorSubjectsCmd(c *cli) *cobra.Command {
	return instructorViewCmd(c, "instructor-subjects INSTRUCTOR_ID", "Subjects of one instructor with their average",
		func(ctx context.Context, a *app, id int64) (any, error) { return a.analytics.InstructorSubjects(ctx, id) })
}

// instructorViewCmd строит команду с единственным аргументом INSTRUCTOR_ID.
func instructorViewCmd(c *cli, use, short string, view func(ctx context.Context, a *app, id int64) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				out, err := view(ctx, a, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}
