package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"todo-reminders/internal/model"
)

// WorkRepository persists deferred work items.
type WorkRepository struct {
	db *gorm.DB
}

func NewWorkRepository(db *gorm.DB) *WorkRepository {
	return &WorkRepository{db: db}
}

func (r *WorkRepository) Create(ctx context.Context, item *model.WorkItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create work item: %w", err)
	}
	return nil
}

// ClaimDue moves up to limit enqueued items with run_at <= now into the running
// state, bumping their attempt counter, and returns them oldest first.
func (r *WorkRepository) ClaimDue(ctx context.Context, now int64, limit int) ([]model.WorkItem, error) {
	var claimed []model.WorkItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []model.WorkItem
		if err := tx.Where("state = ? AND run_at <= ?", model.WorkEnqueued, now).
			Order("run_at ASC, created_at ASC").
			Limit(limit).
			Find(&due).Error; err != nil {
			return err
		}
		for _, item := range due {
			res := tx.Model(&model.WorkItem{}).
				Where("id = ? AND state = ?", item.ID, model.WorkEnqueued).
				Updates(map[string]interface{}{
					"state":    model.WorkRunning,
					"attempts": gorm.Expr("attempts + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			item.State = model.WorkRunning
			item.Attempts++
			claimed = append(claimed, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim work items: %w", err)
	}
	return claimed, nil
}

// Finish records a terminal state for a running item.
func (r *WorkRepository) Finish(ctx context.Context, id string, state model.WorkState, lastErr string) error {
	if err := r.db.WithContext(ctx).Model(&model.WorkItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": state, "last_error": lastErr}).Error; err != nil {
		return fmt.Errorf("finish work item: %w", err)
	}
	return nil
}

// Requeue puts a running item back in the queue to run at runAt.
func (r *WorkRepository) Requeue(ctx context.Context, id string, runAt int64, lastErr string) error {
	if err := r.db.WithContext(ctx).Model(&model.WorkItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":      model.WorkEnqueued,
			"run_at":     runAt,
			"last_error": lastErr,
		}).Error; err != nil {
		return fmt.Errorf("requeue work item: %w", err)
	}
	return nil
}

// ResetRunning returns items orphaned in the running state (the process died
// mid-run) to the queue.
func (r *WorkRepository) ResetRunning(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.WorkItem{}).Where("state = ?", model.WorkRunning).
		Update("state", model.WorkEnqueued)
	if res.Error != nil {
		return 0, fmt.Errorf("reset running work items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *WorkRepository) ListByState(ctx context.Context, state model.WorkState) ([]model.WorkItem, error) {
	var items []model.WorkItem
	if err := r.db.WithContext(ctx).Where("state = ?", state).Order("run_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return items, nil
}

// Get returns nil without error when no item has the id.
func (r *WorkRepository) Get(ctx context.Context, id string) (*model.WorkItem, error) {
	var item model.WorkItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	switch {
	case err == nil:
		return &item, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find work item: %w", err)
	}
}
