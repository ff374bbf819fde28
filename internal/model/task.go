package model

import "time"

// Task represents a single to-do item.
type Task struct {
	ID         uint `gorm:"primaryKey"`
	Name       string
	IsDone     bool  `gorm:"default:false"`
	CategoryID *uint `gorm:"index"`
	// DueDate is epoch milliseconds; nil means no reminder.
	DueDate *int64
}

func (Task) TableName() string {
	return "task_table"
}

// DueAt converts DueDate to a time in the local zone.
func (t Task) DueAt() (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*t.DueDate), true
}

// WithDone returns a copy of the task with IsDone replaced.
func (t Task) WithDone(isDone bool) Task {
	t.IsDone = isDone
	return t
}

// Millis converts t to the epoch-millisecond form stored in DueDate.
func Millis(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}
