package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPromptCache_LoadsOnce(t *testing.T) {
	var c PromptCache
	var loads int32
	load := func(context.Context) (string, error) {
		atomic.AddInt32(&loads, 1)
		return "p", nil
	}
	for i := 0; i < 3; i++ {
		got, err := c.Get(context.Background(), load)
		if err != nil || got != "p" {
			t.Fatalf("Get = %q, %v", got, err)
		}
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestPromptCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	var c PromptCache
	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return "shared", nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), load)
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = v
		}(i)
	}
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("results[%d] = %q, want shared", i, v)
		}
	}
}

func TestPromptCache_InvalidateDuringLoadDropsResult(t *testing.T) {
	var c PromptCache
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)

	go func() {
		v, _ := c.Get(context.Background(), func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate()
	close(release)
	if v := <-done; v != "stale" {
		t.Errorf("in-flight caller got %q, want stale", v)
	}
	if _, ok := c.Peek(); ok {
		t.Fatal("load that raced an invalidation was stored")
	}

	got, err := c.Get(context.Background(), func(context.Context) (string, error) { return "fresh", nil })
	if err != nil || got != "fresh" {
		t.Errorf("Get after invalidate = %q, %v; want fresh", got, err)
	}
}

func TestPromptCache_ErrorLeavesSlotEmpty(t *testing.T) {
	var c PromptCache
	boom := errors.New("boom")
	if _, err := c.Get(context.Background(), func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, ok := c.Peek(); ok {
		t.Error("error result was cached")
	}
}

func TestPromptCache_InvalidateForcesReload(t *testing.T) {
	var c PromptCache
	values := []string{"first", "second"}
	i := 0
	load := func(context.Context) (string, error) {
		v := values[i]
		i++
		return v, nil
	}
	if v, _ := c.Get(context.Background(), load); v != "first" {
		t.Fatalf("got %q", v)
	}
	c.Invalidate()
	if v, _ := c.Get(context.Background(), load); v != "second" {
		t.Errorf("got %q, want second", v)
	}
}
