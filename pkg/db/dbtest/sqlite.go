// Package dbtest opens throwaway in-memory SQLite databases carrying the
// application schema, for repository and service tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Amount columns are TEXT so decimal values round-trip without float affinity.
var schema = []string{
	`CREATE TABLE members (
		member_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		handle TEXT,
		role TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE billing_cycles (
		id TEXT PRIMARY KEY,
		total_amount TEXT NOT NULL,
		split_amount TEXT NOT NULL,
		due_date DATETIME NOT NULL,
		is_active BOOLEAN NOT NULL,
		late_fee_applied BOOLEAN NOT NULL,
		created_by TEXT NOT NULL,
		closed_at DATETIME,
		version INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX billing_cycles_one_active ON billing_cycles (is_active) WHERE is_active`,
	`CREATE TABLE billing_cycle_members (
		cycle_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		handle TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (cycle_id, member_id)
	)`,
	`CREATE TABLE cycle_payments (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reference TEXT NOT NULL,
		source TEXT NOT NULL,
		recorded_by TEXT,
		paid_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX cycle_payments_cycle_member_key ON cycle_payments (cycle_id, member_id)`,
	`CREATE UNIQUE INDEX cycle_payments_cycle_reference_key ON cycle_payments (cycle_id, reference)`,
}

// Open returns a fresh database with the schema applied. The pool is capped at
// one connection so concurrent tests queue instead of hitting shared-cache
// table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:utilitysplit_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
