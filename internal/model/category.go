package model

// Category groups tasks by area (work, home, errands, etc.).
type Category struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"not null"`
}

// TableName keeps the table name stable across renames of the Go type.
func (Category) TableName() string {
	return "category_table"
}
