package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"todo-reminders/internal/config"
	"todo-reminders/internal/reminder"
	"todo-reminders/internal/repository"
	"todo-reminders/internal/scheduler"
	"todo-reminders/internal/service"
	"todo-reminders/internal/work"
)

// app holds the wired object graph shared by every command.
type app struct {
	cfg config.Config
	log *log.Logger
	now func() time.Time

	db         *gorm.DB
	tasks      *repository.TaskRepository
	categories *repository.CategoryRepository
	workItems  *repository.WorkRepository
	sched      *scheduler.Scheduler
	work       *work.Manager
	coord      *service.Coordinator
	digest     *service.DigestService
}

func openApp(cfg config.Config, lg *log.Logger, now func() time.Time) (*app, error) {
	db, err := repository.NewDB(cfg.DatabaseURL, lg)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	tracker := repository.NewTracker()
	taskRepo := repository.NewTaskRepository(db, tracker, lg)
	categoryRepo := repository.NewCategoryRepository(db, tracker, lg)
	workRepo := repository.NewWorkRepository(db)

	sched := scheduler.New(time.Local)
	manager := work.NewManager(workRepo, sched, work.Options{
		PollInterval: cfg.PollInterval.Duration,
		Concurrency:  cfg.Workers,
		MaxAttempts:  cfg.MaxAttempts,
		Clock:        now,
		Logger:       lg,
	})

	coord := service.NewCoordinator(taskRepo, categoryRepo, reminder.NewScheduler(manager, lg), service.Options{
		Clock:  now,
		Logger: lg,
	})

	return &app{
		cfg:        cfg,
		log:        lg,
		now:        now,
		db:         db,
		tasks:      taskRepo,
		categories: categoryRepo,
		workItems:  workRepo,
		sched:      sched,
		work:       manager,
		coord:      coord,
		digest:     service.NewDigestService(taskRepo, categoryRepo),
	}, nil
}

// Close shuts the coordinator and work manager down before the database they
// write to.
func (a *app) Close() {
	a.coord.Close()
	a.work.Stop()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
