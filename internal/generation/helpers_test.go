package generation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/db"
	"github.com/zulandar/locallm/internal/settings"
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

// fakeBackend records calls and answers with a canned reply.
type fakeBackend struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	params  []Params
	delay   time.Duration
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, p)
	return f.reply, f.err
}

func (f *fakeBackend) GenerateImage(_ context.Context, _, model, resolution string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://img.test/" + model + "/" + resolution, nil
}

func (f *fakeBackend) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func testGenerationConfig() config.GenerationConfig {
	return config.GenerationConfig{
		ModelType:         "text",
		ModelName:         "falcon-40b-instruct",
		ImageModel:        "stable-diffusion-v1",
		MaxLength:         1000,
		Temperature:       0.7,
		TopP:              0.9,
		TopK:              50,
		RepetitionPenalty: 1.1,
	}
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	settings *settings.Service
	manager  *conversation.Manager
	backend  *fakeBackend
}

func newFixture(t *testing.T, backend *fakeBackend, cfg config.GenerationConfig) *fixture {
	t.Helper()
	gdb := openTestDB(t)
	retry := &db.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond}

	sstore, err := settings.NewStore(settings.StoreOpts{DB: gdb, Retry: retry})
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	ssvc, err := settings.NewService(settings.ServiceOpts{Store: sstore})
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	cs, err := conversation.NewStore(conversation.StoreOpts{DB: gdb, Retry: retry})
	if err != nil {
		t.Fatalf("conversation store: %v", err)
	}
	ms, err := conversation.NewMessageStore(conversation.StoreOpts{DB: gdb, Retry: retry})
	if err != nil {
		t.Fatalf("message store: %v", err)
	}
	mgr, err := conversation.NewManager(conversation.ManagerOpts{Conversations: cs, Messages: ms, Prompts: ssvc})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	svc, err := NewService(ServiceOpts{Manager: mgr, Settings: ssvc, Backend: backend, Config: cfg})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{db: gdb, svc: svc, settings: ssvc, manager: mgr, backend: backend}
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func uintp(v uint) *uint        { return &v }
