package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
	platformotel "github.com/louisbranch/heartlog/internal/platform/otel"
	"github.com/louisbranch/heartlog/internal/services/logserver/logsink"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultReadBufferSize bounds a single read from a client.
const DefaultReadBufferSize = 1024

// Framing selects how client bytes become log entries.
type Framing string

const (
	// FramingRaw enqueues the bytes of each read as one entry.
	FramingRaw Framing = "raw"
	// FramingLine reassembles newline-terminated messages across reads.
	FramingLine Framing = "line"
)

// ParseFraming validates a framing name.
func ParseFraming(raw string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FramingRaw:
		return FramingRaw, nil
	case FramingLine:
		return FramingLine, nil
	default:
		return "", fmt.Errorf("unknown framing %q (want raw or line)", raw)
	}
}

// Handler turns one client connection into log entries.
type Handler struct {
	queue   *logsink.Queue
	bufSize int
	framing Framing
	clock   func() time.Time
	logf    func(string, ...any)
	tracer  trace.Tracer
}

// NewHandler creates a handler enqueueing into queue.
func NewHandler(queue *logsink.Queue, bufSize int, framing Framing, clock func() time.Time, logf func(string, ...any)) *Handler {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	if framing == "" {
		framing = FramingRaw
	}
	if clock == nil {
		clock = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Handler{
		queue:   queue,
		bufSize: bufSize,
		framing: framing,
		clock:   clock,
		logf:    logf,
		tracer:  platformotel.Tracer("logserver/handler"),
	}
}

// Serve reads conn until the peer closes it, a read fails or the read
// deadline set during shutdown passes. It always closes conn.
func (h *Handler) Serve(ctx context.Context, conn net.Conn, id string) {
	_, span := h.tracer.Start(ctx, "logserver.connection", trace.WithAttributes(
		attribute.String("logserver.connection.id", id),
		semconv.NetworkPeerAddress(conn.RemoteAddr().String()),
	))
	defer span.End()
	defer conn.Close()

	var (
		count int
		err   error
	)
	if h.framing == FramingLine {
		count, err = h.readLines(conn, id)
	} else {
		count, err = h.readRaw(conn, id)
	}
	span.SetAttributes(attribute.Int("logserver.connection.messages", count))

	err = classifyReadError(err)
	switch {
	case errors.Is(err, apperrors.ErrConnectionClosed):
	case errors.Is(err, logsink.ErrQueueClosed):
		h.logf("%s: dropped data after log queue closed", id)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logf("%s: %v", id, err)
	}
}

func (h *Handler) readRaw(conn net.Conn, id string) (int, error) {
	buf := make([]byte, h.bufSize)
	count := 0
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if qerr := h.enqueue(string(buf[:n]), id); qerr != nil {
				return count, qerr
			}
			count++
		}
		if err != nil {
			return count, err
		}
	}
}

// readLines caps a message at the reader size; a longer line is enqueued
// in buffer-sized pieces.
func (h *Handler) readLines(conn net.Conn, id string) (int, error) {
	reader := bufio.NewReaderSize(conn, h.bufSize)
	count := 0
	for {
		line, err := reader.ReadSlice('\n')
		if len(line) > 0 {
			if qerr := h.enqueue(string(line), id); qerr != nil {
				return count, qerr
			}
			count++
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return count, err
		}
	}
}

func (h *Handler) enqueue(text, id string) error {
	return h.queue.Enqueue(logsink.NewEntry(text, id, h.clock()))
}

// classifyReadError maps the error that ended a handler. EOF and the
// shutdown read deadline are normal closure.
func classifyReadError(err error) error {
	if errors.Is(err, logsink.ErrQueueClosed) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeConnectionClosed, "connection closed", err)
	}
	return apperrors.Wrap(apperrors.CodeConnectionRead, "read from client", err)
}
