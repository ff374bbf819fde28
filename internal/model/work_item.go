package model

import "time"

// WorkState is the lifecycle state of a deferred work item.
type WorkState string

const (
	WorkEnqueued  WorkState = "enqueued"
	WorkRunning   WorkState = "running"
	WorkSucceeded WorkState = "succeeded"
	WorkFailed    WorkState = "failed"
)

// WorkItem is one persisted unit of deferred work.
type WorkItem struct {
	ID        string `gorm:"primaryKey"`
	Worker    string
	Input     string
	RunAt     int64     `gorm:"index"`
	State     WorkState `gorm:"index"`
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WorkItem) TableName() string {
	return "work_items"
}

// RunTime returns RunAt as a time value.
func (w WorkItem) RunTime() time.Time {
	return time.UnixMilli(w.RunAt)
}
