package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time

	// String returns the expression the schedule was built from.
	String() string
}

// ParseSchedule accepts "@every <duration>", a descriptor such as "@hourly"
// or "@daily", or a 5-field cron expression. Intervals keep sub-second
// precision.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil, fmt.Errorf("empty schedule")
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		return Every(d)
	}
	return ParseCron(spec)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule. The interval must be positive.
func Every(interval time.Duration) (*IntervalSchedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// Standard 5-field expressions and the @hourly/@daily style descriptors,
// parsed by robfig/cron. When both day fields are restricted a time matches
// either of them.
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a parsed cron expression.
type CronSchedule struct {
	raw  string
	spec cron.Schedule
}

// ParseCron parses a 5-field cron expression or a descriptor such as @daily.
func ParseCron(expr string) (*CronSchedule, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{raw: expr, spec: spec}, nil
}

// Next returns the first matching minute after t, or the zero time when
// nothing matches within five years (e.g. "0 0 31 2 *").
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.spec.Next(t)
}

func (c *CronSchedule) String() string { return c.raw }
