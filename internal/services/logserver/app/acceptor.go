package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
	"github.com/louisbranch/heartlog/internal/platform/timeouts"
	"golang.org/x/net/netutil"
)

// ConnHandler serves one accepted connection. It owns conn and must close it.
type ConnHandler func(ctx context.Context, conn net.Conn, id string)

// AcceptorConfig describes the listening socket.
type AcceptorConfig struct {
	Host string
	Port int
	// MaxConns bounds concurrently open connections; zero means unbounded.
	MaxConns int
	// Poll bounds each wait for an incoming connection.
	Poll time.Duration
	Logf func(string, ...any)
}

// Acceptor owns the listening socket and tracks the handlers it spawned.
type Acceptor struct {
	tcp      *net.TCPListener
	listener net.Listener
	poll     time.Duration
	logf     func(string, ...any)

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error

	mu       sync.Mutex
	conns    map[string]net.Conn
	draining bool
	wg       sync.WaitGroup
	seq      atomic.Uint64
}

// Listen binds the configured address. An unavailable port is a bind error;
// anything else is a listen error.
func Listen(cfg AcceptorConfig) (*Acceptor, error) {
	if cfg.Poll <= 0 {
		cfg.Poll = timeouts.AcceptPoll
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, classifyListenError(addr, err)
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, apperrors.New(apperrors.CodeListen, fmt.Sprintf("listen on %s: unexpected listener %T", addr, ln))
	}

	a := &Acceptor{
		tcp:      tcp,
		listener: ln,
		poll:     cfg.Poll,
		logf:     cfg.Logf,
		conns:    make(map[string]net.Conn),
	}
	if cfg.MaxConns > 0 {
		a.listener = netutil.LimitListener(ln, cfg.MaxConns)
	}
	return a, nil
}

func classifyListenError(addr string, err error) error {
	switch {
	case errors.Is(err, syscall.EADDRINUSE),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EADDRNOTAVAIL):
		return apperrors.Wrap(apperrors.CodeBind, "bind "+addr, err)
	default:
		return apperrors.Wrap(apperrors.CodeListen, "listen on "+addr, err)
	}
}

// Addr returns the bound address.
func (a *Acceptor) Addr() net.Addr {
	return a.tcp.Addr()
}

// Serve accepts connections until ctx ends or the acceptor is closed. Each
// connection is handed to handle on its own goroutine. Accept failures are
// logged and retried; an error is returned only when the accept deadline
// can no longer be armed.
func (a *Acceptor) Serve(ctx context.Context, handle ConnHandler) error {
	for ctx.Err() == nil {
		if err := a.tcp.SetDeadline(time.Now().Add(a.poll)); err != nil {
			if a.closed.Load() {
				return nil
			}
			return apperrors.Wrap(apperrors.CodeAccept, "arm accept deadline", err)
		}

		conn, err := a.listener.Accept()
		if err != nil {
			if a.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			a.logf("%v", apperrors.Wrap(apperrors.CodeAccept, "accept connection", err))
			a.pause(ctx)
			continue
		}
		if ctx.Err() != nil {
			_ = conn.Close()
			return nil
		}

		id := fmt.Sprintf("conn-%d", a.seq.Add(1))
		if !a.track(id, conn) {
			_ = conn.Close()
			return nil
		}
		go func() {
			defer a.untrack(id)
			handle(ctx, conn, id)
		}()
	}
	return nil
}

func (a *Acceptor) pause(ctx context.Context) {
	timer := time.NewTimer(a.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (a *Acceptor) track(id string, conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.draining {
		return false
	}
	a.conns[id] = conn
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(id string) {
	a.mu.Lock()
	delete(a.conns, id)
	a.mu.Unlock()
	a.wg.Done()
}

// ActiveConnections reports how many handlers are running.
func (a *Acceptor) ActiveConnections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// Close closes the listening socket. It is safe to call more than once.
func (a *Acceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.closeErr = a.listener.Close()
	})
	return a.closeErr
}

// Drain gives running handlers grace to finish reading what their peers
// already sent, then cuts their reads and waits for them to exit.
func (a *Acceptor) Drain(grace time.Duration) {
	deadline := time.Now().Add(grace)
	a.mu.Lock()
	a.draining = true
	for _, conn := range a.conns {
		_ = conn.SetReadDeadline(deadline)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
