package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
)

type resource struct {
	name   string
	closer io.Closer
}

// Coordinator is the single owner of the server's lifecycle. Its context is
// the running flag: it is cancelled exactly once, when a stop is requested.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	stopping bool
	reason   string
	announce func(reason string) error
	onStop   []resource
	onFinish []resource

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	logf    func(string, ...any)
}

// New creates a coordinator in the Created state.
func New(logf func(string, ...any)) *Coordinator {
	if logf == nil {
		logf = log.Printf
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		state:   Created,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		logf:    logf,
	}
}

// Context is cancelled when a stop is requested.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns the reason passed to the first RequestStop.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Stopped is closed once Finish has released every resource.
func (c *Coordinator) Stopped() <-chan struct{} {
	return c.stopped
}

// Transition moves the coordinator along the startup path. ShuttingDown and
// Stopped are reached through RequestStop and Finish.
func (c *Coordinator) Transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !CanTransition(c.state, to) || to == ShuttingDown || to == Stopped {
		return apperrors.New(apperrors.CodeInvalidState, fmt.Sprintf("invalid lifecycle transition %s -> %s", c.state, to))
	}
	if to == Listening && c.stopping {
		return apperrors.New(apperrors.CodeInvalidState, "stop requested during startup")
	}
	c.state = to
	return nil
}

// OnStop registers the hook that writes the shutdown notice. It only runs
// when the stop interrupts a listening server.
func (c *Coordinator) OnStop(announce func(reason string) error) {
	c.mu.Lock()
	c.announce = announce
	c.mu.Unlock()
}

// CloseOnStop registers a resource released as soon as a stop is requested,
// such as the listening socket.
func (c *Coordinator) CloseOnStop(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	c.mu.Lock()
	c.onStop = append(c.onStop, resource{name: name, closer: closer})
	c.mu.Unlock()
}

// CloseOnFinish registers a resource released by Finish, after every unit
// has exited. Resources close in registration order.
func (c *Coordinator) CloseOnFinish(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	c.mu.Lock()
	c.onFinish = append(c.onFinish, resource{name: name, closer: closer})
	c.mu.Unlock()
}

// RequestStop announces the shutdown, clears the running flag and closes the
// stop-time resources, in that order. Only the first call has an effect; it
// reports whether this call was the one that stopped the server.
func (c *Coordinator) RequestStop(reason string) bool {
	c.mu.Lock()
	if c.stopping || c.state == Stopped {
		c.mu.Unlock()
		return false
	}
	c.stopping = true
	c.reason = reason
	wasListening := c.state == Listening
	if wasListening {
		c.state = ShuttingDown
	}
	announce := c.announce
	closers := c.onStop
	c.onStop = nil
	c.mu.Unlock()

	if wasListening && announce != nil {
		if err := announce(reason); err != nil {
			c.logf("announce shutdown: %v", err)
		}
	}
	c.cancel()
	c.closeAll(closers)
	return true
}

// Finish releases every remaining resource and enters Stopped. Callers must
// only invoke it after all long-lived units have exited.
func (c *Coordinator) Finish() {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return
	}
	if c.state == Listening {
		c.mu.Unlock()
		c.RequestStop("finish")
		c.mu.Lock()
	}
	pending := append(c.onStop, c.onFinish...)
	c.onStop, c.onFinish = nil, nil
	c.stopping = true
	c.state = Stopped
	c.mu.Unlock()

	c.cancel()
	c.closeAll(pending)
	close(c.stopped)
}

func (c *Coordinator) closeAll(resources []resource) {
	for _, r := range resources {
		if err := r.closer.Close(); err != nil && !alreadyClosed(err) {
			c.logf("close %s: %v", r.name, err)
		}
	}
}

func alreadyClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}
