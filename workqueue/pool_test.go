package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSubmitRunsTasks(t *testing.T) {
	p := New(4, 16, zerolog.Nop())
	p.Start(context.Background())

	var ran atomic.Int32
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		if err := p.Submit(key, func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit(%s): %v", key, err)
		}
	}
	wg.Wait()

	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ran.Load() != 3 {
		t.Fatalf("ran %d tasks, want 3", ran.Load())
	}
}

func TestDuplicateKeyRejectedWhileRunning(t *testing.T) {
	p := New(2, 4, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit("payment-1", func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := p.Submit("payment-1", func(context.Context) error { return nil }); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if !p.Busy("payment-1") {
		t.Fatalf("key should be busy")
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for p.Busy("payment-1") {
		if time.Now().After(deadline) {
			t.Fatal("key never released")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Submit("payment-1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("key should be accepted again: %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	p := New(1, 1, zerolog.Nop())
	// not started: the single slot fills up and stays full
	if err := p.Submit("a", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("b", func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	p := New(1, 2, zerolog.Nop())
	p.Start(context.Background())

	done := make(chan struct{})
	_ = p.Submit("boom", func(context.Context) error { panic("kaboom") })
	_ = p.Submit("after", func(context.Context) error { close(done); return nil })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStopRejectsNewTasks(t *testing.T) {
	p := New(1, 1, zerolog.Nop())
	p.Start(context.Background())
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("x", func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestStopCancelsOnDeadline(t *testing.T) {
	p := New(1, 1, zerolog.Nop())
	p.Start(context.Background())

	started := make(chan struct{})
	_ = p.Submit("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
