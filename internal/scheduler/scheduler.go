// Package scheduler wraps cron for the app's recurring jobs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"todo-reminders/internal/config"
)

// Scheduler wraps cron-based jobs.
type Scheduler struct {
	cron *cron.Cron
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *Scheduler) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := BuildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration. Sub-second
// intervals run through cron's ConstantDelaySchedule directly.
func (s *Scheduler) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	if interval < time.Second {
		return s.cron.Schedule(subSecond{interval}, cron.FuncJob(job)), nil
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %s", interval), job)
}

func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// BuildDailySpec converts HH:MM into a seconds-enabled cron spec.
func BuildDailySpec(timeStr string) (string, error) {
	hour, minute, err := config.ParseClock(timeStr)
	if err != nil {
		return "", err
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// subSecond fires every d; cron's ConstantDelaySchedule rounds below a second.
type subSecond struct {
	d time.Duration
}

func (s subSecond) Next(t time.Time) time.Time {
	return t.Add(s.d)
}
