// Package logsink decouples network receipt from disk I/O.
//
// Connection handlers push entries onto a Queue; a single Sink worker wakes on
// a fixed interval, drains the whole queue in one locked swap, and writes the
// batch to the console, the log file and the optional archive before
// flushing. The worker performs a final drain when its context ends so
// entries queued just before a stop are not lost.
package logsink
