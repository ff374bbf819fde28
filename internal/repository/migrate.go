package repository

import (
	"fmt"

	"gorm.io/gorm"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are applied in ascending version order.
var migrations = []migration{
	{
		version: 1,
		name:    "create task and category tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS category_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS task_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				is_done INTEGER NOT NULL DEFAULT 0,
				category_id INTEGER REFERENCES category_table(id) ON DELETE CASCADE,
				due_date INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_task_table_category_id ON task_table(category_id)`,
		},
	},
	{
		version: 2,
		name:    "add legacy_flag to task_table",
		stmts: []string{
			`ALTER TABLE task_table ADD COLUMN legacy_flag INTEGER DEFAULT 0`,
		},
	},
	{
		version: 3,
		name:    "create work_items",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS work_items (
				id TEXT PRIMARY KEY,
				worker TEXT NOT NULL,
				input TEXT NOT NULL DEFAULT '{}',
				run_at INTEGER NOT NULL,
				state TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				created_at DATETIME,
				updated_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_work_items_state_run_at ON work_items(state, run_at)`,
		},
	},
}

// LatestVersion is the schema version a freshly migrated database reports.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion reads PRAGMA user_version.
func SchemaVersion(db *gorm.DB) (int, error) {
	var version int
	if err := db.Raw("PRAGMA user_version").Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the schema up to LatestVersion, one transaction per step.
func Migrate(db *gorm.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current > LatestVersion() {
		return fmt.Errorf("schema version %d is newer than supported %d", current, LatestVersion())
	}
	return migrateTo(db, current, LatestVersion())
}

func migrateTo(db *gorm.DB, from, to int) error {
	for _, m := range migrations {
		if m.version <= from || m.version > to {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, stmt := range m.stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}
