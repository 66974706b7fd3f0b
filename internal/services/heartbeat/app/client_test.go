package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewValidates(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing name", cfg: Config{Port: 9000, Period: time.Second}},
		{name: "multi-line name", cfg: Config{Name: "a\nb", Port: 9000, Period: time.Second}},
		{name: "port zero", cfg: Config{Name: "a", Port: 0, Period: time.Second}},
		{name: "port too large", cfg: Config{Name: "a", Port: 70000, Period: time.Second}},
		{name: "zero period", cfg: Config{Name: "a", Port: 9000}},
		{name: "negative count", cfg: Config{Name: "a", Port: 9000, Period: time.Second, Count: -1}},
		{name: "unknown mode", cfg: Config{Name: "a", Port: 9000, Period: time.Second, Mode: "burst"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPersistentSendsNoticesAndHeartbeats(t *testing.T) {
	srv := newLineServer(t)
	c := newClient(t, Config{Name: "alpha", Port: srv.port(), Period: 5 * time.Millisecond, Count: 3})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := srv.waitLines(t, 5)

	want := []string{
		"[2024-03-01 12:00:00] client alpha started",
		"[2024-03-01 12:00:00] alpha",
		"[2024-03-01 12:00:00] alpha",
		"[2024-03-01 12:00:00] alpha",
		"[2024-03-01 12:00:00] client alpha stopped",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
	if c.Sent() != 3 {
		t.Fatalf("sent = %d, want 3", c.Sent())
	}
	if n := srv.connections(); n != 1 {
		t.Fatalf("connections = %d, want 1", n)
	}
}

func TestRedialOpensConnectionPerHeartbeat(t *testing.T) {
	srv := newLineServer(t)
	c := newClient(t, Config{Name: "beta", Port: srv.port(), Period: 5 * time.Millisecond, Count: 3, Mode: ModeRedial})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := srv.waitLines(t, 3)
	for _, line := range lines {
		if line != "[2024-03-01 12:00:00] beta" {
			t.Fatalf("line = %q", line)
		}
	}
	if n := srv.connections(); n != 3 {
		t.Fatalf("connections = %d, want 3", n)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newLineServer(t)
	c := newClient(t, Config{Name: "gamma", Port: srv.port(), Period: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	srv.waitLines(t, 3)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
	if c.Sent() < 2 {
		t.Fatalf("sent = %d, want at least 2", c.Sent())
	}
}

func TestConnectRetriesWithBackoff(t *testing.T) {
	srv := newLineServer(t)
	var attempts int
	dialer := &net.Dialer{}
	c := newClient(t, Config{
		Name:   "delta",
		Port:   srv.port(),
		Period: 5 * time.Millisecond,
		Count:  1,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return dialer.DialContext(ctx, network, addr)
		},
	})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestConnectGivesUpAfterDialTries(t *testing.T) {
	var attempts int
	c := newClient(t, Config{
		Name:      "epsilon",
		Port:      9,
		Period:    5 * time.Millisecond,
		DialTries: 2,
		Dial: func(context.Context, string, string) (net.Conn, error) {
			attempts++
			return nil, errors.New("connection refused")
		},
	})

	err := c.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("run error = %v, want connection refused", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModePersistent {
		t.Fatalf("ParseMode(\"\") = %q, %v", m, err)
	}
	if m, err := ParseMode("REDIAL"); err != nil || m != ModeRedial {
		t.Fatalf("ParseMode(REDIAL) = %q, %v", m, err)
	}
}

func newClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.Clock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local) }
	cfg.Logf = t.Logf
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// lineServer records every line it receives, in arrival order.
type lineServer struct {
	ln    net.Listener
	mu    sync.Mutex
	lines []string
	conns int
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &lineServer{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go s.accept()
	return s
}

func (s *lineServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *lineServer) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go func() {
			defer conn.Close()
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				s.mu.Lock()
				s.lines = append(s.lines, scanner.Text())
				s.mu.Unlock()
			}
		}()
	}
}

func (s *lineServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *lineServer) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.lines) >= n {
			out := append([]string(nil), s.lines...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("received fewer than %d lines", n)
	return nil
}
