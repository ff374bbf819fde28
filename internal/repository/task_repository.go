package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"todo-reminders/internal/logging"
	"todo-reminders/internal/model"
)

// TaskRepository handles CRUD and live queries for tasks.
type TaskRepository struct {
	db      *gorm.DB
	tracker *Tracker
	log     *log.Logger
}

func NewTaskRepository(db *gorm.DB, tracker *Tracker, lg *log.Logger) *TaskRepository {
	if lg == nil {
		lg = logging.Discard()
	}
	return &TaskRepository{db: db, tracker: tracker, log: lg.With("component", "tasks")}
}

// Insert stores task, sets its generated id and returns it.
func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) (uint, error) {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	r.tracker.Notify(tableTask)
	return task.ID, nil
}

// Update writes every mutable column of task by primary key. A missing row is
// left missing.
func (r *TaskRepository) Update(ctx context.Context, task model.Task) error {
	err := r.db.WithContext(ctx).Model(&task).
		Select("Name", "IsDone", "CategoryID", "DueDate").
		Updates(&task).Error
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	r.tracker.Notify(tableTask)
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, task model.Task) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, task.ID).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	r.tracker.Notify(tableTask)
	return nil
}

// UpdateStatus flips only the is_done column.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id uint, isDone bool) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).
		Update("is_done", isDone).Error; err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	r.tracker.Notify(tableTask)
	return nil
}

// FindByID returns nil without error when no task has the id.
func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).First(&task, id).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find task: %w", err)
	}
}

func (r *TaskRepository) ListAll(ctx context.Context) ([]model.Task, error) {
	return r.find(ctx, "list tasks", nil)
}

func (r *TaskRepository) ListByCategory(ctx context.Context, categoryID uint) ([]model.Task, error) {
	return r.find(ctx, "list tasks by category", func(db *gorm.DB) *gorm.DB {
		return db.Where("category_id = ?", categoryID)
	})
}

func (r *TaskRepository) ListPending(ctx context.Context) ([]model.Task, error) {
	return r.find(ctx, "list pending tasks", func(db *gorm.DB) *gorm.DB {
		return db.Where("is_done = ?", false)
	})
}

// ListDue returns unfinished tasks whose due date is at or before currentTime
// (epoch milliseconds).
func (r *TaskRepository) ListDue(ctx context.Context, currentTime int64) ([]model.Task, error) {
	return r.find(ctx, "list due tasks", func(db *gorm.DB) *gorm.DB {
		return db.Where("due_date <= ? AND is_done = ?", currentTime, false)
	})
}

// All is the live list of every task.
func (r *TaskRepository) All(ctx context.Context) *Subscription[model.Task] {
	return subscribe(ctx, r.tracker, r.log, "all_tasks", []string{tableTask}, r.ListAll)
}

func (r *TaskRepository) ByCategory(ctx context.Context, categoryID uint) *Subscription[model.Task] {
	name := "tasks_by_category_" + strconv.FormatUint(uint64(categoryID), 10)
	return subscribe(ctx, r.tracker, r.log, name, []string{tableTask}, func(ctx context.Context) ([]model.Task, error) {
		return r.ListByCategory(ctx, categoryID)
	})
}

func (r *TaskRepository) Pending(ctx context.Context) *Subscription[model.Task] {
	return subscribe(ctx, r.tracker, r.log, "pending_tasks", []string{tableTask}, r.ListPending)
}

// Due is the live form of ListDue for a fixed currentTime.
func (r *TaskRepository) Due(ctx context.Context, currentTime int64) *Subscription[model.Task] {
	return subscribe(ctx, r.tracker, r.log, "due_tasks", []string{tableTask}, func(ctx context.Context) ([]model.Task, error) {
		return r.ListDue(ctx, currentTime)
	})
}

func (r *TaskRepository) find(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) ([]model.Task, error) {
	db := r.db.WithContext(ctx)
	if scope != nil {
		db = scope(db)
	}
	var tasks []model.Task
	if err := db.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tasks, nil
}
