package settings

import (
	"sync"
	"testing"
	"time"

	"github.com/zulandar/locallm/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb := openBareDB(t)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// openBareDB returns an in-memory database with no tables.
func openBareDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}

// testClock hands out strictly increasing times one second apart.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T, gdb *gorm.DB) *Store {
	t.Helper()
	s, err := NewStore(StoreOpts{
		DB:    gdb,
		Retry: &db.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond},
		Clock: newTestClock().Now,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func newTestService(t *testing.T, gdb *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(ServiceOpts{Store: newTestStore(t, gdb)})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func int64p(v int64) *int64 { return &v }
