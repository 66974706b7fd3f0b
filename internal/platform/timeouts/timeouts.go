// Package timeouts defines shared timeout and polling constants used across
// the log server, its clients and the harness.
package timeouts

import "time"

// AcceptPoll bounds each wait of the acceptor for an incoming connection.
const AcceptPoll = 10 * time.Millisecond

// SinkFlush is the interval between log sink drains.
const SinkFlush = 100 * time.Millisecond

// InputPoll bounds each wait for a keystroke on standard input.
const InputPoll = 100 * time.Millisecond

// HandlerGrace limits how long connection handlers may keep reading after a
// stop request before their connections are cut.
const HandlerGrace = 500 * time.Millisecond

// ArchiveWrite caps a single archive batch append.
const ArchiveWrite = 2 * time.Second

// Dial caps a single connection attempt to a log server.
const Dial = 2 * time.Second

// HealthWait bounds how long a launcher waits for a health endpoint to
// report SERVING.
const HealthWait = 10 * time.Second

// Shutdown limits how long telemetry and health servers wait while stopping.
const Shutdown = 5 * time.Second
