// Package input watches the server's standard input for the quit key.
package input

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/louisbranch/heartlog/internal/platform/timeouts"
)

// DefaultQuitKey stops the server when typed on stdin.
const DefaultQuitKey = 'q'

// KeySource yields single keystrokes.
type KeySource interface {
	// Poll waits up to timeout for one key. ok is false when the wait timed
	// out. io.EOF means no more input will arrive.
	Poll(timeout time.Duration) (key byte, ok bool, err error)
	Close() error
}

// Config controls the listener.
type Config struct {
	QuitKey  byte
	Interval time.Duration
	// OnQuit is called once when the quit key is read.
	OnQuit func(reason string) bool
	Logf   func(string, ...any)
}

// Listener polls a key source until the quit key arrives, input ends, or
// its context is cancelled.
type Listener struct {
	source   KeySource
	quitKey  byte
	interval time.Duration
	onQuit   func(reason string) bool
	logf     func(string, ...any)
}

// New creates a listener that owns source and closes it when Run returns.
func New(source KeySource, cfg Config) *Listener {
	if cfg.QuitKey == 0 {
		cfg.QuitKey = DefaultQuitKey
	}
	if cfg.Interval <= 0 {
		cfg.Interval = timeouts.InputPoll
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Listener{
		source:   source,
		quitKey:  cfg.QuitKey,
		interval: cfg.Interval,
		onQuit:   cfg.OnQuit,
		logf:     cfg.Logf,
	}
}

// Run blocks until the quit key is read, stdin reaches EOF, or ctx ends.
// Only the quit key requests a stop.
func (l *Listener) Run(ctx context.Context) error {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.logf("restore stdin: %v", err)
		}
	}()

	for ctx.Err() == nil {
		key, ok, err := l.source.Poll(l.interval)
		if err != nil {
			if errors.Is(err, io.EOF) {
				l.logf("stdin closed; press-to-quit disabled")
			} else {
				l.logf("read stdin: %v", err)
			}
			return nil
		}
		if !ok || key != l.quitKey {
			continue
		}
		if l.onQuit != nil {
			l.onQuit("quit key")
		}
		return nil
	}
	return nil
}
