// Package testkit opens throwaway databases for package tests.
package testkit

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/comanda/internal/migration"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB returns an in-memory sqlite database named after the test with the
// full schema migrated.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
