// Package client implements the heartbeat reporting agent: it connects to a
// log server and sends a timestamped line carrying its name every period.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/heartlog/internal/platform/config"
	"github.com/louisbranch/heartlog/internal/platform/timeouts"
	"github.com/louisbranch/heartlog/internal/wire"
)

// DefaultHost is the server address clients report to.
const DefaultHost = "127.0.0.1"

// DefaultDialTries bounds connection attempts per dial.
const DefaultDialTries = 5

// Mode selects how the client uses connections.
type Mode string

const (
	// ModePersistent keeps one connection for the client's lifetime.
	ModePersistent Mode = "persistent"
	// ModeRedial opens a fresh connection for every heartbeat.
	ModeRedial Mode = "redial"
)

// ParseMode validates a mode name.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "", ModePersistent:
		return ModePersistent, nil
	case ModeRedial:
		return ModeRedial, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want persistent or redial)", raw)
	}
}

// DialFunc opens a connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config describes one heartbeat client.
type Config struct {
	Name   string
	Host   string
	Port   int
	Period time.Duration
	Mode   Mode
	// Count stops the client after that many heartbeats; zero runs until
	// the context ends.
	Count       int
	DialTimeout time.Duration
	DialTries   uint
	Dial        DialFunc
	Clock       func() time.Time
	Logf        func(string, ...any)
}

// Client sends heartbeats to a log server.
type Client struct {
	name        string
	addr        string
	period      time.Duration
	mode        Mode
	count       int
	dialTimeout time.Duration
	dialTries   uint
	dial        DialFunc
	clock       func() time.Time
	logf        func(string, ...any)

	sent atomic.Int64
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("client name is required")
	}
	if strings.ContainsAny(name, "\r\n") {
		return nil, errors.New("client name must be a single line")
	}
	if cfg.Port < 1 || cfg.Port > config.MaxPort {
		return nil, fmt.Errorf("server port %d out of range 1-%d", cfg.Port, config.MaxPort)
	}
	if cfg.Period <= 0 {
		return nil, errors.New("period must be positive")
	}
	if cfg.Count < 0 {
		return nil, errors.New("count must not be negative")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = timeouts.Dial
	}
	if cfg.DialTries == 0 {
		cfg.DialTries = DefaultDialTries
	}
	if cfg.Dial == nil {
		cfg.Dial = (&net.Dialer{}).DialContext
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Client{
		name:        name,
		addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		period:      cfg.Period,
		mode:        mode,
		count:       cfg.Count,
		dialTimeout: cfg.DialTimeout,
		dialTries:   cfg.DialTries,
		dial:        cfg.Dial,
		clock:       cfg.Clock,
		logf:        cfg.Logf,
	}, nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Sent reports how many heartbeats were delivered.
func (c *Client) Sent() int64 {
	return c.sent.Load()
}

// Run sends heartbeats until ctx ends or Count is reached. A cancelled
// context is a normal stop.
func (c *Client) Run(ctx context.Context) error {
	var err error
	if c.mode == ModeRedial {
		err = c.runRedial(ctx)
	} else {
		err = c.runPersistent(ctx)
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) runPersistent(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if conn != nil {
			c.notice(conn, "stopped")
			_ = conn.Close()
		}
	}()
	c.notice(conn, "started")

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		if err := c.send(conn); err != nil {
			c.logf("%s: send heartbeat: %v; reconnecting", c.name, err)
			_ = conn.Close()
			if conn, err = c.connect(ctx); err != nil {
				return err
			}
			continue
		}
		if c.done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Client) runRedial(ctx context.Context) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		if err := c.sendOnce(ctx); err != nil {
			return err
		}
		if c.done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Client) sendOnce(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return c.send(conn)
}

func (c *Client) done() bool {
	return c.count > 0 && c.sent.Load() >= int64(c.count)
}

func (c *Client) send(w io.Writer) error {
	if _, err := io.WriteString(w, wire.Line(c.clock(), c.name)); err != nil {
		return err
	}
	c.sent.Add(1)
	return nil
}

// notice sends a lifecycle line; failures are only logged.
func (c *Client) notice(conn net.Conn, event string) {
	line := wire.Line(c.clock(), fmt.Sprintf("client %s %s", c.name, event))
	if _, err := io.WriteString(conn, line); err != nil {
		c.logf("%s: send %s notice: %v", c.name, event, err)
	}
}

// connect dials the server, retrying with exponential backoff.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = min(100*time.Millisecond, c.period)
	policy.MaxInterval = max(time.Second, c.period)

	conn, err := backoff.Retry(ctx, func() (net.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
		return c.dial(dialCtx, "tcp", c.addr)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.dialTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logf("%s: connect %s: %v; retrying in %v", c.name, c.addr, err, next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	return conn, nil
}
