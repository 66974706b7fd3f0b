// Package server wires the log server runtime: the acceptor and its
// connection handlers, the log sink worker, the keyboard listener, and the
// optional health endpoint and entry archive, all under one lifecycle
// coordinator.
package server
