package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/locallm/internal/db"
	"github.com/zulandar/locallm/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
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
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
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

func testOpts(gdb *gorm.DB, clock *testClock) StoreOpts {
	return StoreOpts{
		DB:    gdb,
		Retry: &db.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond},
		Clock: clock.Now,
	}
}

func newTestStores(t *testing.T, gdb *gorm.DB) (*Store, *MessageStore) {
	t.Helper()
	clock := newTestClock()
	cs, err := NewStore(testOpts(gdb, clock))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ms, err := NewMessageStore(testOpts(gdb, clock))
	if err != nil {
		t.Fatalf("NewMessageStore: %v", err)
	}
	return cs, ms
}

// staticPrompter is a SystemPrompter returning a fixed value.
type staticPrompter struct {
	prompt string
	err    error
	calls  int
}

func (p *staticPrompter) DefaultSystemPrompt(context.Context) (string, error) {
	p.calls++
	return p.prompt, p.err
}

func newTestManager(t *testing.T, gdb *gorm.DB, prompts SystemPrompter) *Manager {
	t.Helper()
	cs, ms := newTestStores(t, gdb)
	m, err := NewManager(ManagerOpts{Conversations: cs, Messages: ms, Prompts: prompts})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func createConv(t *testing.T, cs *Store, title string) *models.Conversation {
	t.Helper()
	c := &models.Conversation{Title: title, ModelType: models.ModelTypeText, ModelName: "falcon-40b-instruct"}
	if err := cs.Create(context.Background(), c); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}

func addMsg(t *testing.T, ms *MessageStore, convID uint, role models.Role, content string) *models.Message {
	t.Helper()
	m := &models.Message{ConversationID: convID, Role: role, Content: content}
	if err := ms.Create(context.Background(), m); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func uintp(v uint) *uint { return &v }
