package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoExecutesFunction(t *testing.T) {
	g := New()

	val, err := g.Do(context.Background(), "key", func() (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.(int) != 42 {
		t.Errorf("got %v, want 42", val)
	}
}

func TestDoDeduplicatesConcurrentCalls(t *testing.T) {
	g := New()

	var calls int64
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]interface{}, 5)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = g.Do(context.Background(), "key", func() (interface{}, error) {
			atomic.AddInt64(&calls, 1)
			close(started)
			<-release
			return "shared", nil
		})
	}()
	<-started

	for i := 1; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = g.Do(context.Background(), "key", func() (interface{}, error) {
				t.Error("duplicate caller must not execute")
				return nil, nil
			})
		}()
	}

	// Give the duplicates time to register as waiters.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("expected 1 execution, got %d", got)
	}
	for i, result := range results {
		if result != "shared" {
			t.Errorf("caller %d got %v, want shared", i, result)
		}
	}
}

func TestDoPropagatesError(t *testing.T) {
	g := New()
	boom := errors.New("boom")

	started := make(chan struct{})
	release := make(chan struct{})

	var waiterErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		g.Do(context.Background(), "key", func() (interface{}, error) {
			close(started)
			<-release
			return nil, boom
		})
	}()
	<-started

	go func() {
		defer wg.Done()
		_, waiterErr = g.Do(context.Background(), "key", func() (interface{}, error) {
			return nil, nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if waiterErr != boom {
		t.Errorf("waiter got %v, want the owner's error", waiterErr)
	}
}

func TestDoRemovesKeyOnSettle(t *testing.T) {
	g := New()

	var calls int64
	fn := func() (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return nil, nil
	}

	g.Do(context.Background(), "key", fn)
	if g.InFlight("key") {
		t.Error("key must be removed once the call settles")
	}

	g.Do(context.Background(), "key", fn)
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("a caller arriving after settle must execute fresh, got %d calls", got)
	}
}

func TestDoWaiterCancellation(t *testing.T) {
	g := New()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go g.Do(context.Background(), "key", func() (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Do(ctx, "key", func() (interface{}, error) {
		return nil, nil
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !g.InFlight("key") {
		t.Error("the owning call must survive a waiter's cancellation")
	}
}

func TestForget(t *testing.T) {
	g := New()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go g.Do(context.Background(), "key", func() (interface{}, error) {
		close(started)
		<-release
		return "first", nil
	})
	<-started

	g.Forget("key")

	val, err := g.Do(context.Background(), "key", func() (interface{}, error) {
		return "second", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "second" {
		t.Errorf("forgotten key must execute fresh, got %v", val)
	}
}
