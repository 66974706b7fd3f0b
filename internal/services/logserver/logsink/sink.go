package logsink

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
	platformotel "github.com/louisbranch/heartlog/internal/platform/otel"
	"github.com/louisbranch/heartlog/internal/platform/timeouts"
	"github.com/louisbranch/heartlog/internal/services/logserver/storage"
	"github.com/louisbranch/heartlog/internal/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ServerSource marks entries generated by the server itself.
const ServerSource = "server"

// Config controls sink destinations and pacing.
type Config struct {
	// Interval is the pause between drains.
	Interval time.Duration
	// Console mirrors every written entry when set.
	Console io.Writer
	// Archive receives every flushed batch when set.
	Archive storage.ArchiveStore
	// RunID tags archived entries with the server run that wrote them.
	RunID string
	Clock func() time.Time
	Logf  func(string, ...any)
}

// Stats counts what the sink has written.
type Stats struct {
	Entries     int64
	Bytes       int64
	Batches     int64
	WriteErrors int64
}

// Sink is the single consumer of a Queue.
type Sink struct {
	queue    *Queue
	dest     io.Writer
	console  io.Writer
	archive  storage.ArchiveStore
	runID    string
	interval time.Duration
	clock    func() time.Time
	logf     func(string, ...any)
	tracer   trace.Tracer

	// mu serializes flushes so batches reach the destination in drain order.
	mu    sync.Mutex
	stats Stats
}

// New creates a sink writing queue entries to dest.
func New(queue *Queue, dest io.Writer, cfg Config) *Sink {
	if queue == nil {
		queue = NewQueue()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = timeouts.SinkFlush
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Sink{
		queue:    queue,
		dest:     dest,
		console:  cfg.Console,
		archive:  cfg.Archive,
		runID:    cfg.RunID,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logf:     cfg.Logf,
		tracer:   platformotel.Tracer("logserver/logsink"),
	}
}

// Queue returns the queue this sink drains.
func (s *Sink) Queue() *Queue {
	return s.queue
}

// Log enqueues a server-generated, timestamped entry.
func (s *Sink) Log(text string) error {
	now := s.clock()
	return s.queue.Enqueue(NewEntry(wire.Line(now, text), ServerSource, now))
}

// Run drains the queue every interval until ctx ends, then drains once more
// and returns.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			s.logSummary()
			return nil
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Flush performs one drain pass and returns the number of entries written.
func (s *Sink) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.queue.Drain()
	if len(batch) == 0 {
		return 0
	}

	_, span := s.tracer.Start(context.Background(), "logsink.flush",
		trace.WithAttributes(attribute.Int("logsink.batch_size", len(batch))),
	)
	defer span.End()

	var written int64
	for _, entry := range batch {
		if s.console != nil {
			if _, err := io.WriteString(s.console, entry.Text); err != nil {
				s.logf("%v", apperrors.Wrap(apperrors.CodeLogWrite, "mirror entry to console", err))
			}
		}
		if s.dest == nil {
			continue
		}
		n, err := io.WriteString(s.dest, entry.Text)
		written += int64(n)
		if err != nil {
			s.writeFailed(span, apperrors.Wrap(apperrors.CodeLogWrite, "write entry", err))
		}
	}
	if flusher, ok := s.dest.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			s.writeFailed(span, apperrors.Wrap(apperrors.CodeLogWrite, "flush log", err))
		}
	}
	s.archiveBatch(span, batch)

	s.stats.Entries += int64(len(batch))
	s.stats.Bytes += written
	s.stats.Batches++
	return len(batch)
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sink) archiveBatch(span trace.Span, batch []Entry) {
	if s.archive == nil {
		return
	}
	records := make([]storage.ArchivedEntry, 0, len(batch))
	for _, entry := range batch {
		records = append(records, storage.ArchivedEntry{
			RunID:      s.runID,
			Source:     entry.Source,
			Text:       entry.Text,
			ReceivedAt: entry.ReceivedAt,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.ArchiveWrite)
	defer cancel()
	if err := s.archive.AppendEntries(ctx, records); err != nil {
		s.writeFailed(span, apperrors.Wrap(apperrors.CodeArchive, fmt.Sprintf("archive %d entries", len(records)), err))
	}
}

// writeFailed must be called with s.mu held.
func (s *Sink) writeFailed(span trace.Span, err error) {
	s.stats.WriteErrors++
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logf("%v", err)
}

func (s *Sink) logSummary() {
	stats := s.Stats()
	p := message.NewPrinter(language.English)
	s.logf("%s", p.Sprintf("log sink flushed %d entries (%d bytes) in %d batches, %d write errors",
		stats.Entries, stats.Bytes, stats.Batches, stats.WriteErrors))
}
