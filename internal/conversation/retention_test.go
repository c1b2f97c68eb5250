package conversation

import (
	"context"
	"testing"
	"time"
)

func TestNextCronDuration(t *testing.T) {
	now := time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC)
	if d := nextCronDuration("0 3 * * *", now); d != 30*time.Minute {
		t.Errorf("d = %v, want 30m", d)
	}
	if d := nextCronDuration("not a cron", now); d != 0 {
		t.Errorf("invalid expr d = %v, want 0", d)
	}
}

func TestNewSweeper_Validation(t *testing.T) {
	cs, _ := newTestStores(t, openTestDB(t))
	tests := []struct {
		name string
		opts SweeperOpts
	}{
		{"no store", SweeperOpts{Schedule: "0 3 * * *", MaxAge: time.Hour}},
		{"bad schedule", SweeperOpts{Store: cs, Schedule: "whenever", MaxAge: time.Hour}},
		{"zero age", SweeperOpts{Store: cs, Schedule: "0 3 * * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSweeper(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSweeper_SweepOnce(t *testing.T) {
	cs, _ := newTestStores(t, openTestDB(t))
	ctx := context.Background()
	old := createConv(t, cs, "old")

	s, err := NewSweeper(SweeperOpts{
		Store:    cs,
		Schedule: "0 3 * * *",
		MaxAge:   24 * time.Hour,
		Clock:    func() time.Time { return old.UpdatedAt.Add(48 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	n, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	cs, _ := newTestStores(t, openTestDB(t))
	s, err := NewSweeper(SweeperOpts{Store: cs, Schedule: "0 3 * * *", MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
