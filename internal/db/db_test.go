package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.DatabaseConfig{
		Host: "10.0.0.5", Port: 3307, Name: "llm", User: "app", Password: "pw",
	})
	for _, want := range []string{"app:pw@tcp(10.0.0.5:3307)/llm?", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("MySQLDSN() = %q, want to contain %q", dsn, want)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, Name: "llm", User: "app", Password: "p w", SSLMode: "disable",
	})
	for _, want := range []string{"host=db", "port=5432", "dbname=llm", "sslmode=disable", "user=app", `password="p w"`} {
		if !strings.Contains(dsn, want) {
			t.Errorf("PostgresDSN() = %q, want to contain %q", dsn, want)
		}
	}
}

func TestPostgresDSN_NoCredentials(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{Host: "db", Port: 5432, Name: "llm", SSLMode: "require"})
	if strings.Contains(dsn, "user=") || strings.Contains(dsn, "password=") {
		t.Errorf("PostgresDSN() = %q, want no credentials", dsn)
	}
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		name   string
	}{
		{"sqlite", "sqlite"},
		{"mysql", "mysql"},
		{"postgres", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Path: ":memory:", Host: "h", Port: 1, Name: "n"})
			if err != nil {
				t.Fatalf("Dialector: %v", err)
			}
			if d.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.name)
			}
		})
	}
}

func TestDialector_Unsupported(t *testing.T) {
	if _, err := Dialector(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !db.Migrator().HasTable(m) {
			t.Errorf("table for %T missing", m)
		}
	}
	if !db.Migrator().HasIndex(&models.Setting{}, "ux_settings_scope_key") {
		t.Error("ux_settings_scope_key index missing")
	}
}

func TestReset_EmptiesTables(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	db.Create(&models.Conversation{Title: "t", ModelType: models.ModelTypeText, ModelName: "llama-7b"})

	if err := Reset(db); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	var n int64
	db.Model(&models.Conversation{}).Count(&n)
	if n != 0 {
		t.Errorf("conversations = %d after reset, want 0", n)
	}
}

func TestOpen_TranslatesDuplicate(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	s := models.Setting{Key: models.KeyTopK, Scope: models.ScopeGlobal, Value: "5", ValueType: models.TypeInteger}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := models.Setting{Key: models.KeyTopK, Scope: models.ScopeGlobal, Value: "6", ValueType: models.TypeInteger}
	err := db.Create(&dup).Error
	if !IsDuplicate(err) {
		t.Fatalf("second insert err = %v, want duplicate", err)
	}
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm", gorm.ErrDuplicatedKey, true},
		{"mysql 1062", &mysqldriver.MySQLError{Number: 1062}, true},
		{"mysql other", &mysqldriver.MySQLError{Number: 1146}, false},
		{"postgres 23505", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "42P01"}, false},
		{"sqlite text", errors.New("UNIQUE constraint failed: settings.scope"), true},
		{"wrapped", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicate(tt.err); got != tt.want {
				t.Errorf("IsDuplicate(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql deadlock", &mysqldriver.MySQLError{Number: 1213}, true},
		{"mysql lock wait", &mysqldriver.MySQLError{Number: 1205}, true},
		{"mysql dup", &mysqldriver.MySQLError{Number: 1062}, false},
		{"mysql invalid conn", mysqldriver.ErrInvalidConn, true},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg connection", &pgconn.PgError{Code: "08006"}, true},
		{"pg syntax", &pgconn.PgError{Code: "42601"}, false},
		{"sqlite locked", errors.New("database is locked"), true},
		{"not found", gorm.ErrRecordNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) != nil")
	}
	if err := Classify(gorm.ErrRecordNotFound); err != gorm.ErrRecordNotFound {
		t.Errorf("Classify(not found) = %v, want passthrough", err)
	}
	if err := Classify(gorm.ErrDuplicatedKey); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Classify(dup) = %v, want ErrConflict", err)
	}
	err := Classify(errors.New("disk full"))
	if !errors.Is(err, apperr.ErrDatabase) {
		t.Errorf("Classify(other) = %v, want ErrDatabase", err)
	}
	if errors.Is(Classify(err), apperr.ErrConflict) {
		t.Error("reclassifying must not change kind")
	}
}

// ---------------------------------------------------------------------------
// Retry
// ---------------------------------------------------------------------------

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, Multiplier: 1.5}
}

func TestRetryPolicy_RetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return &mysqldriver.MySQLError{Number: 1213, Message: "deadlock"}
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, apperr.ErrDatabase) {
		t.Errorf("err = %v, want ErrDatabase", err)
	}
	var me *mysqldriver.MySQLError
	if !errors.As(err, &me) {
		t.Errorf("err = %v, want underlying MySQLError preserved", err)
	}
}

func TestRetryPolicy_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return gorm.ErrDuplicatedKey
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestRetryPolicy_NotFoundPassesThrough(t *testing.T) {
	err := fastPolicy(3).Do(context.Background(), func() error { return gorm.ErrRecordNotFound })
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestRetryPolicy_NilRunsOnce(t *testing.T) {
	var p *RetryPolicy
	calls := 0
	_ = p.Do(context.Background(), func() error {
		calls++
		return errors.New("database is locked")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.DatabaseConfig{RetryAttempts: 5, RetryInitialInterval: time.Second})
	if p.MaxAttempts != 5 || p.InitialInterval != time.Second || p.Multiplier != DefaultMultiplier {
		t.Errorf("policy = %+v", p)
	}
	d := RetryPolicyFromConfig(config.DatabaseConfig{})
	if d.MaxAttempts != DefaultMaxAttempts || d.InitialInterval != DefaultInitialInterval {
		t.Errorf("default policy = %+v", d)
	}
}
