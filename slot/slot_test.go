package slot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSlot_SetThenContent(t *testing.T) {
	s := New()
	if s.IsSet() {
		t.Fatal("new slot should be empty")
	}

	if err := s.Set("#EXTM3U\n"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := s.Content()
	if !ok || got != "#EXTM3U\n" {
		t.Errorf("Content() = %q, %v", got, ok)
	}
}

func TestSlot_WaiterOrdering(t *testing.T) {
	s := New()

	var order []int
	var seen []string
	for i := range 3 {
		s.Notify(func(c string) {
			order = append(order, i)
			seen = append(seen, c)
		})
	}
	if s.Pending() != 3 {
		t.Fatalf("expected 3 pending waiters, got %d", s.Pending())
	}

	if err := s.Set("X"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("waiters resolved out of order: %v", order)
	}
	for i, c := range seen {
		if c != "X" {
			t.Errorf("waiter %d observed %q, want X", i, c)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("waiter list should be cleared, got %d", s.Pending())
	}
}

func TestSlot_SetTwiceSameContent(t *testing.T) {
	s := New()

	calls := 0
	s.Notify(func(string) { calls++ })

	if err := s.Set("X"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := s.Set("X"); err != nil {
		t.Fatalf("second set with same content should be safe: %v", err)
	}

	if calls != 1 {
		t.Errorf("waiter resolved %d times, want 1", calls)
	}
}

func TestSlot_SetDifferentContentRejected(t *testing.T) {
	s := New()

	if err := s.Set("X"); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := s.Set("Y")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, _ := s.Content()
	if got != "X" {
		t.Errorf("content overwritten: %q", got)
	}
}

func TestSlot_NotifyAfterSetRunsImmediately(t *testing.T) {
	s := New()
	_ = s.Set("X")

	var got string
	s.Notify(func(c string) { got = c })
	if got != "X" {
		t.Errorf("expected immediate resolve with X, got %q", got)
	}
}

func TestSlot_NotifyCancel(t *testing.T) {
	s := New()

	called := false
	cancel := s.Notify(func(string) { called = true })
	cancel()
	_ = s.Set("X")

	if called {
		t.Error("canceled waiter should not be resolved")
	}
}

func TestSlot_AwaitBlocksUntilSet(t *testing.T) {
	s := New()

	const n = 3
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Await(t.Context())
			if err != nil {
				t.Errorf("await %d: %v", i, err)
				return
			}
			results[i] = c
		}()
	}

	waitPending(t, s, n)

	if err := s.Set("X"); err != nil {
		t.Fatalf("set: %v", err)
	}
	wg.Wait()

	for i, r := range results {
		if r != "X" {
			t.Errorf("awaiter %d got %q", i, r)
		}
	}
}

func TestSlot_AwaitAlreadySet(t *testing.T) {
	s := New()
	_ = s.Set("X")

	got, err := s.Await(t.Context())
	if err != nil || got != "X" {
		t.Fatalf("Await() = %q, %v", got, err)
	}
}

func TestSlot_AwaitContextCanceled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(t.Context())

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Await(ctx)
		errCh <- err
	}()

	waitPending(t, s, 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return after cancel")
	}

	if s.Pending() != 0 {
		t.Errorf("canceled waiter should be removed, %d pending", s.Pending())
	}
}

func TestSlot_ResetDropsWaiters(t *testing.T) {
	s := New()

	called := false
	s.Notify(func(string) { called = true })

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Await(t.Context())
		errCh <- err
	}()
	waitPending(t, s, 2)

	s.Reset()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrReset) {
			t.Errorf("expected ErrReset, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return after reset")
	}

	// Set after reset starts a fresh cycle; dropped waiters stay unresolved.
	if err := s.Set("Y"); err != nil {
		t.Fatalf("set after reset: %v", err)
	}
	if called {
		t.Error("dropped waiter should never be resolved")
	}
}

func TestSlot_ResetClearsContent(t *testing.T) {
	s := New()
	_ = s.Set("X")
	s.Reset()

	if s.IsSet() {
		t.Error("reset should clear content")
	}
}

// waitPending polls until n waiters are registered.
func waitPending(t *testing.T, s *Slot, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d waiters (have %d)", n, s.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}
