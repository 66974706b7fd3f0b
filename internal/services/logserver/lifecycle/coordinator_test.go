package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
)

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Created, Initializing, true},
		{Initializing, Listening, true},
		{Initializing, Stopped, true},
		{Listening, ShuttingDown, true},
		{ShuttingDown, Stopped, true},
		{Created, Listening, false},
		{Listening, Initializing, false},
		{Stopped, Listening, false},
		{ShuttingDown, Listening, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTransitionRejectsSkippingStates(t *testing.T) {
	c := New(t.Logf)
	err := c.Transition(Listening)
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("transition error = %v, want INVALID_STATE", err)
	}
	if c.State() != Created {
		t.Fatalf("state = %s, want created", c.State())
	}
}

func TestRequestStopIsIdempotent(t *testing.T) {
	c := listening(t)
	var announced int
	c.OnStop(func(string) error {
		announced++
		return nil
	})
	closer := &countingCloser{}
	c.CloseOnStop("listener", closer)

	if !c.RequestStop("quit key") {
		t.Fatal("first RequestStop should report true")
	}
	if c.RequestStop("signal") {
		t.Fatal("second RequestStop should report false")
	}

	if announced != 1 {
		t.Fatalf("announced %d times, want 1", announced)
	}
	if closer.count() != 1 {
		t.Fatalf("listener closed %d times, want 1", closer.count())
	}
	if c.Reason() != "quit key" {
		t.Fatalf("reason = %q, want %q", c.Reason(), "quit key")
	}
	if c.State() != ShuttingDown {
		t.Fatalf("state = %s, want shutting_down", c.State())
	}
}

func TestRequestStopConcurrentCallsAnnounceOnce(t *testing.T) {
	c := listening(t)
	var mu sync.Mutex
	announced := 0
	c.OnStop(func(string) error {
		mu.Lock()
		announced++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RequestStop("race")
		}()
	}
	wg.Wait()

	if announced != 1 {
		t.Fatalf("announced %d times, want 1", announced)
	}
}

func TestRequestStopOrder(t *testing.T) {
	c := listening(t)
	var events []string
	c.OnStop(func(string) error {
		if c.Context().Err() != nil {
			events = append(events, "announce after cancel")
		} else {
			events = append(events, "announce")
		}
		return nil
	})
	c.CloseOnStop("listener", closerFunc(func() error {
		if c.Context().Err() == nil {
			events = append(events, "close before cancel")
		} else {
			events = append(events, "close listener")
		}
		return nil
	}))
	c.CloseOnFinish("log file", closerFunc(func() error {
		events = append(events, "close log file")
		return nil
	}))

	c.RequestStop("quit key")
	if diff := cmp.Diff([]string{"announce", "close listener"}, events); diff != "" {
		t.Fatalf("stop events mismatch (-want +got):\n%s", diff)
	}

	c.Finish()
	want := []string{"announce", "close listener", "close log file"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("finish events mismatch (-want +got):\n%s", diff)
	}
	if c.State() != Stopped {
		t.Fatalf("state = %s, want stopped", c.State())
	}
}

func TestAnnounceFailureDoesNotBlockTeardown(t *testing.T) {
	c := listening(t)
	c.OnStop(func(string) error { return errors.New("queue closed") })
	closer := &countingCloser{}
	c.CloseOnStop("listener", closer)

	c.RequestStop("signal")

	if c.Context().Err() == nil {
		t.Fatal("expected running context to be cancelled")
	}
	if closer.count() != 1 {
		t.Fatalf("listener closed %d times, want 1", closer.count())
	}
}

func TestStopBeforeListeningSkipsAnnouncementAndBlocksStartup(t *testing.T) {
	c := New(t.Logf)
	if err := c.Transition(Initializing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	announced := false
	c.OnStop(func(string) error {
		announced = true
		return nil
	})

	c.RequestStop("signal")
	if announced {
		t.Fatal("shutdown should not be announced before listening")
	}
	if err := c.Transition(Listening); err == nil {
		t.Fatal("expected startup to be refused after stop")
	}
}

func TestFinishReleasesEverythingOnce(t *testing.T) {
	c := New(t.Logf)
	if err := c.Transition(Initializing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	stopCloser := &countingCloser{}
	finishCloser := &countingCloser{}
	c.CloseOnStop("listener", stopCloser)
	c.CloseOnFinish("log file", finishCloser)

	c.Finish()
	c.Finish()

	if stopCloser.count() != 1 || finishCloser.count() != 1 {
		t.Fatalf("closes = %d/%d, want 1/1", stopCloser.count(), finishCloser.count())
	}
	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("stopped channel not closed")
	}
	if c.RequestStop("late") {
		t.Fatal("RequestStop after Finish should report false")
	}
}

func TestContextCancelledByStop(t *testing.T) {
	c := listening(t)
	if err := c.Context().Err(); err != nil {
		t.Fatalf("context err = %v while listening", err)
	}
	c.RequestStop("quit key")
	if c.Context().Err() == nil {
		t.Fatal("expected cancelled context after stop")
	}
	if c.State() != ShuttingDown {
		t.Fatalf("state = %s, want shutting down", c.State())
	}
}

func listening(t *testing.T) *Coordinator {
	t.Helper()
	c := New(t.Logf)
	for _, s := range []State{Initializing, Listening} {
		if err := c.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	return c
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type countingCloser struct {
	mu sync.Mutex
	n  int
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingCloser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
