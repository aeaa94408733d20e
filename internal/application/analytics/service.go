// Package analytics contains the read path: trends, impact analysis,
// recommendations and chart data over committed measurements.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/tutoring-hub/internal/domain/grade"
	"github.com/alem-hub/tutoring-hub/internal/domain/roster"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
	"github.com/alem-hub/tutoring-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION & DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the default analysis windows.
type Config struct {
	TrendWindowDays int
	ChartWindowDays int
}

// DefaultConfig returns the stock windows.
func DefaultConfig() Config {
	return Config{TrendWindowDays: 30, ChartWindowDays: 90}
}

// ResultCache stores computed results until the next committed change.
// Results live under a generation that every invalidation replaces.
type ResultCache interface {
	// Get decodes the cached value into dest and reports whether it was
	// found, together with the generation it looked in.
	Get(ctx context.Context, key string, dest any) (generation string, found bool, err error)

	// Set stores value under key in the given generation. A result computed
	// from a snapshot older than the current generation is thus never served.
	Set(ctx context.Context, generation, key string, value any) error

	// Invalidate drops every cached result.
	Invalidate(ctx context.Context) error
}

// QueryRecorder receives analytics metrics.
type QueryRecorder interface {
	QueryServed(query string, cacheHit bool, duration time.Duration)
}

type nopQueryRecorder struct{}

func (nopQueryRecorder) QueryServed(string, bool, time.Duration) {}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service answers analytics queries.
type Service struct {
	store   store.Store
	cfg     Config
	cache   ResultCache
	metrics QueryRecorder
	log     *logger.Logger
	now     timeutil.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches results. Without it every query reads the store.
func WithCache(c ResultCache) Option { return func(s *Service) { s.cache = c } }

// WithQueryRecorder reports metrics.
func WithQueryRecorder(r QueryRecorder) Option { return func(s *Service) { s.metrics = r } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock sets the time source for analysis windows.
func WithClock(now timeutil.Clock) Option { return func(s *Service) { s.now = now } }

// NewService creates an analytics service over st.
func NewService(st store.Store, cfg Config, opts ...Option) *Service {
	if cfg.TrendWindowDays <= 0 {
		cfg.TrendWindowDays = DefaultConfig().TrendWindowDays
	}
	if cfg.ChartWindowDays <= 0 {
		cfg.ChartWindowDays = DefaultConfig().ChartWindowDays
	}
	s := &Service{
		store:   st,
		cfg:     cfg,
		metrics: nopQueryRecorder{},
		log:     logger.Nop(),
		now:     timeutil.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("analytics"))
	return s
}

// HandleEvent drops cached results after any committed change.
// It is meant to be subscribed to every store event.
func (s *Service) HandleEvent(event shared.Event) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(context.Background()); err != nil {
		return fmt.Errorf("invalidate analytics cache after %s: %w", event.EventType(), err)
	}
	s.log.Debug("analytics cache invalidated", logger.String("event_type", string(event.EventType())))
	return nil
}

// Trends aggregates the scoped measurements of the last windowDays days
// along every dimension. windowDays <= 0 selects the default window.
func (s *Service) Trends(ctx context.Context, scope grade.Scope, windowDays int) (TrendReport, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.TrendWindowDays
	}
	since := s.windowStart(windowDays)
	key := fmt.Sprintf("trends:%s:%d:%s", scope.CacheKey(), windowDays, timeutil.FormatDate(since))

	return cached(ctx, s, "trends", key, func(ctx context.Context) (TrendReport, error) {
		var ms []grade.Measurement
		err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			ms, err = tx.Grades().List(ctx, scope.Normalized().Filter(since))
			return err
		})
		if err != nil {
			return nil, err
		}
		return BuildTrends(ms), nil
	})
}

// Impact compares every scoped group with the average of the whole store.
func (s *Service) Impact(ctx context.Context, scope grade.Scope) (ImpactReport, error) {
	key := fmt.Sprintf("impact:%s", scope.CacheKey())

	return cached(ctx, s, "impact", key, func(ctx context.Context) (ImpactReport, error) {
		var (
			ms     []grade.Measurement
			global float64
		)
		err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			if global, _, err = tx.Grades().GlobalAverage(ctx); err != nil {
				return err
			}
			ms, err = tx.Grades().List(ctx, scope.Normalized().Filter(time.Time{}))
			return err
		})
		if err != nil {
			return nil, err
		}
		return BuildImpact(ms, global), nil
	})
}

// Recommendations returns at most MaxRecommendations items for scope,
// based on its trends over the default window.
func (s *Service) Recommendations(ctx context.Context, scope grade.Scope) ([]Recommendation, error) {
	trends, err := s.Trends(ctx, scope, s.cfg.TrendWindowDays)
	if err != nil {
		return nil, err
	}
	return Generate(scope, trends), nil
}

// ChartData returns the chart series for the last windowDays days. An empty
// window falls back to all scoped measurements; with none at all the fixed
// zero series is returned.
func (s *Service) ChartData(ctx context.Context, scope grade.Scope, windowDays int) (ChartSeries, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.ChartWindowDays
	}
	since := s.windowStart(windowDays)
	key := fmt.Sprintf("chart:%s:%d:%s", scope.CacheKey(), windowDays, timeutil.FormatDate(since))

	return cached(ctx, s, "chart", key, func(ctx context.Context) (ChartSeries, error) {
		var (
			ms    []grade.Measurement
			names map[int64]string
		)
		err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
			scope := scope.Normalized()
			var err error
			ms, err = tx.Grades().List(ctx, scope.Filter(since))
			if err != nil {
				return err
			}
			if len(ms) == 0 {
				if ms, err = tx.Grades().List(ctx, scope.Filter(time.Time{})); err != nil {
					return err
				}
			}
			if len(ms) == 0 {
				return nil
			}
			names, err = subjectNames(ctx, tx.Roster())
			return err
		})
		if err != nil {
			return ChartSeries{}, err
		}
		return BuildChart(ms, names), nil
	})
}

// TopicSummary is the per-topic result of one instructor.
type TopicSummary struct {
	Topic   string  `json:"topic"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// InstructorTopics summarises every topic an instructor has graded,
// ordered by topic. Averages are rounded to 1 decimal place.
func (s *Service) InstructorTopics(ctx context.Context, instructorID int64) ([]TopicSummary, error) {
	var ms []grade.Measurement
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Roster().GetInstructor(ctx, instructorID); err != nil {
			return err
		}
		var err error
		ms, err = tx.Grades().List(ctx, grade.Filter{InstructorID: instructorID})
		return err
	})
	if err != nil {
		return nil, err
	}

	groups := Aggregate(ms, grade.DimensionTopic)
	out := make([]TopicSummary, 0, len(groups))
	for topic, g := range groups {
		out = append(out, TopicSummary{Topic: topic, Average: Round(g.Average, 1), Count: g.Count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// ResolveScope maps an identity onto the scope it may see: admins see
// everything, instructors and learners see their own measurements.
func (s *Service) ResolveScope(ctx context.Context, identityID int64) (grade.Scope, error) {
	var scope grade.Scope
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := tx.Roster()
		identity, err := repo.GetIdentity(ctx, identityID)
		if err != nil {
			return err
		}
		switch identity.Role {
		case roster.RoleAdmin:
			scope = grade.AllScope()
		case roster.RoleInstructor:
			in, err := repo.FindInstructorByIdentity(ctx, identity.ID)
			if err != nil {
				return err
			}
			scope = grade.InstructorScope(in.ID)
		case roster.RoleLearner:
			l, err := repo.FindLearnerByIdentity(ctx, identity.ID)
			if err != nil {
				return err
			}
			scope = grade.LearnerScope(l.ID)
		default:
			return shared.NewDomainError("analytics", "ResolveScope", shared.ErrForbidden,
				fmt.Sprintf("role %q has no analytics scope", identity.Role))
		}
		return nil
	})
	return scope, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// AsOf returns a copy of the service whose windows end at t.
// The copy shares the store and the cache.
func (s *Service) AsOf(t time.Time) *Service {
	c := *s
	c.now = timeutil.Fixed(t)
	return &c
}

func (s *Service) windowStart(days int) time.Time {
	return timeutil.WindowStart(s.now(), days)
}

func subjectNames(ctx context.Context, repo roster.Repository) (map[int64]string, error) {
	subjects, err := repo.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(subjects))
	for _, sub := range subjects {
		names[sub.ID] = sub.Name
	}
	return names, nil
}

// cached serves key from the result cache, computing and storing it on a miss.
// Cache failures are logged and the query falls through to the store.
func cached[T any](ctx context.Context, s *Service, query, key string, compute func(context.Context) (T, error)) (T, error) {
	started := time.Now()

	generation, cacheable := "", false
	if s.cache != nil {
		var hit T
		gen, found, err := s.cache.Get(ctx, key, &hit)
		if err != nil {
			s.log.Warn("analytics cache read failed", logger.String("key", key), logger.Err(err))
		}
		if found && err == nil {
			s.metrics.QueryServed(query, true, time.Since(started))
			return hit, nil
		}
		generation, cacheable = gen, err == nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	// a result is only stored under a generation the read actually saw
	if cacheable {
		if err := s.cache.Set(ctx, generation, key, value); err != nil {
			s.log.Warn("analytics cache write failed", logger.String("key", key), logger.Err(err))
		}
	}
	s.metrics.QueryServed(query, false, time.Since(started))
	s.log.Debug("analytics query computed", logger.String("query", query), logger.String("key", key))
	return value, nil
}
