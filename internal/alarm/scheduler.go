package alarm

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "mhcal/internal/log"
)

// DefaultSpec checks for due alarms every minute.
const DefaultSpec = "* * * * *"

// Notifier receives due alarms.
type Notifier func(Alarm)

// Observer is told about every delivered alarm.
type Observer interface {
	AlarmFired()
}

// Scheduler rebuilds the table and delivers due alarms on a cron schedule.
type Scheduler struct {
	table    *Table
	schedule cron.Schedule
	notify   Notifier
	observer Observer
	logger   *appLog.Logger
	loc      *time.Location
	now      func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithObserver(o Observer) SchedulerOption { return func(s *Scheduler) { s.observer = o } }

func WithLogger(l *appLog.Logger) SchedulerOption { return func(s *Scheduler) { s.logger = l } }

func WithClock(now func() time.Time) SchedulerOption { return func(s *Scheduler) { s.now = now } }

// NewScheduler parses spec as a standard five-field cron expression.
func NewScheduler(table *Table, spec string, notify Notifier, opts ...SchedulerOption) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("alarm: bad schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		table:    table,
		schedule: sched,
		notify:   notify,
		loc:      table.loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tick rebuilds the table and delivers what is due. It returns the number
// of alarms delivered.
func (s *Scheduler) Tick() int {
	now := s.now()
	pending := s.table.Rebuild(now)
	due := s.table.Due(now)
	s.logger.Debug("alarm tick", "pending", pending, "due", len(due))
	for _, a := range due {
		s.logger.Info("alarm",
			"uid", a.Entry.UID,
			"subject", a.Entry.Subject,
			"event", a.Event.Format(time.RFC3339),
		)
		if s.notify != nil {
			s.notify(a)
		}
		if s.observer != nil {
			s.observer.AlarmFired()
		}
	}
	return len(due)
}

// Run ticks once immediately and then on the schedule until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.Tick() }))

	s.Tick()
	c.Start()
	s.logger.Info("alarm scheduler started", "next", s.schedule.Next(s.now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("alarm scheduler stopped")
	return nil
}

// cronLogger adapts *appLog.Logger to cron.Logger; cron's chatty info
// messages go to DEBUG.
type cronLogger struct {
	l *appLog.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, err, kv...)
}
