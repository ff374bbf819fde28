package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"todo-reminders/internal/logging"
	"todo-reminders/internal/model"
)

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db      *gorm.DB
	tracker *Tracker
	log     *log.Logger
}

func NewCategoryRepository(db *gorm.DB, tracker *Tracker, lg *log.Logger) *CategoryRepository {
	if lg == nil {
		lg = logging.Discard()
	}
	return &CategoryRepository{db: db, tracker: tracker, log: lg.With("component", "categories")}
}

// Insert stores category and returns its generated id.
func (r *CategoryRepository) Insert(ctx context.Context, category *model.Category) (uint, error) {
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	r.tracker.Notify(tableCategory)
	return category.ID, nil
}

func (r *CategoryRepository) Update(ctx context.Context, category model.Category) error {
	if err := r.db.WithContext(ctx).Model(&category).Select("Name").Updates(&category).Error; err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	r.tracker.Notify(tableCategory)
	return nil
}

// Delete removes the category; its tasks go with it.
func (r *CategoryRepository) Delete(ctx context.Context, category model.Category) error {
	if err := r.db.WithContext(ctx).Delete(&model.Category{}, category.ID).Error; err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	r.tracker.Notify(tableCategory, tableTask)
	return nil
}

// GetByID returns nil without error when no category has the id.
func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).First(&category, id).Error
	switch {
	case err == nil:
		return &category, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find category: %w", err)
	}
}

func (r *CategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// All is the live list of categories.
func (r *CategoryRepository) All(ctx context.Context) *Subscription[model.Category] {
	return subscribe(ctx, r.tracker, r.log, "all_categories", []string{tableCategory}, r.List)
}
