//go:build integration

package db

import (
	"os"
	"testing"

	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/models"
)

// These tests run against real servers named by LOCALLM_TEST_MYSQL_DSN and
// LOCALLM_TEST_POSTGRES_DSN. Each is skipped when its variable is unset.

func connectFromEnv(t *testing.T, driver, env string) config.DatabaseConfig {
	t.Helper()
	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("%s not set", env)
	}
	return config.DatabaseConfig{Driver: driver, DSN: dsn}
}

func testDuplicateAgainst(t *testing.T, cfg config.DatabaseConfig) {
	t.Helper()
	gdb, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := Reset(gdb); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	first := models.Setting{Key: models.KeyTopP, Scope: models.ScopeGlobal, Value: "0.9", ValueType: models.TypeFloat}
	if err := gdb.Create(&first).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := models.Setting{Key: models.KeyTopP, Scope: models.ScopeGlobal, Value: "0.5", ValueType: models.TypeFloat}
	if err := gdb.Create(&dup).Error; !IsDuplicate(err) {
		t.Fatalf("duplicate insert err = %v, want duplicate", err)
	}

	id := int64(3)
	scoped := models.Setting{Key: models.KeyTopP, Scope: models.ScopeChat, ScopeID: &id, Value: "0.5", ValueType: models.TypeFloat}
	if err := gdb.Create(&scoped).Error; err != nil {
		t.Fatalf("scoped insert: %v", err)
	}
}

func TestIntegration_MySQL(t *testing.T) {
	testDuplicateAgainst(t, connectFromEnv(t, "mysql", "LOCALLM_TEST_MYSQL_DSN"))
}

func TestIntegration_Postgres(t *testing.T) {
	testDuplicateAgainst(t, connectFromEnv(t, "postgres", "LOCALLM_TEST_POSTGRES_DSN"))
}
