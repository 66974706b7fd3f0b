package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/louisbranch/heartlog/internal/platform/errors"
	"github.com/louisbranch/heartlog/internal/platform/id"
	"github.com/louisbranch/heartlog/internal/platform/timeouts"
	"github.com/louisbranch/heartlog/internal/services/logserver/input"
	"github.com/louisbranch/heartlog/internal/services/logserver/lifecycle"
	"github.com/louisbranch/heartlog/internal/services/logserver/logsink"
	"github.com/louisbranch/heartlog/internal/services/logserver/storage"
	logsqlite "github.com/louisbranch/heartlog/internal/services/logserver/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// HealthService is the health check name reported while accepting.
	HealthService = "logserver.acceptor"

	startMessage = "Starting the server"
	stopMessage  = "Shutting down the server"
)

// Config holds the runtime settings of one server instance.
type Config struct {
	Host string
	Port int
	// LogPath defaults to log.txt in the working directory.
	LogPath string
	// HealthAddr enables the gRPC health endpoint when set.
	HealthAddr string
	// DBPath enables the sqlite entry archive when set.
	DBPath         string
	MaxConns       int
	ReadBufferSize int
	Framing        Framing
	AcceptPoll     time.Duration
	FlushInterval  time.Duration
	InputPoll      time.Duration
	HandlerGrace   time.Duration
	QuitKey        byte
	// Keys overrides the keyboard source. When nil and Interactive is set,
	// standard input is used.
	Keys        input.KeySource
	Interactive bool
	// Console mirrors written entries; nil means standard output.
	Console io.Writer
	Clock   func() time.Time
	Logf    func(string, ...any)
}

// Server is one log server run. It is not reusable after it stops.
type Server struct {
	cfg   Config
	coord *lifecycle.Coordinator
	runID string

	acceptor   *Acceptor
	queue      *logsink.Queue
	sink       *logsink.Sink
	handler    *Handler
	keys       *input.Listener
	archive    *logsqlite.Store
	grpcServer *grpc.Server
	health     *health.Server
	healthLn   net.Listener

	startOnce sync.Once
	err       error
}

// New prepares a server; nothing is opened until Start.
func New(cfg Config) *Server {
	if cfg.LogPath == "" {
		cfg.LogPath = logsink.DefaultPath
	}
	if cfg.AcceptPoll <= 0 {
		cfg.AcceptPoll = timeouts.AcceptPoll
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = timeouts.SinkFlush
	}
	if cfg.InputPoll <= 0 {
		cfg.InputPoll = timeouts.InputPoll
	}
	if cfg.HandlerGrace <= 0 {
		cfg.HandlerGrace = timeouts.HandlerGrace
	}
	if cfg.QuitKey == 0 {
		cfg.QuitKey = input.DefaultQuitKey
	}
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Server{
		cfg:   cfg,
		coord: lifecycle.New(cfg.Logf),
	}
}

// Run starts a server and blocks until it stops.
func Run(ctx context.Context, cfg Config) error {
	srv := New(cfg)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	return srv.Wait()
}

// Start acquires every resource and launches the server's units. On error
// everything acquired so far is released and the server is Stopped.
// Cancelling ctx requests a stop.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := errors.New("server already started")
	s.startOnce.Do(func() {
		err = s.start(ctx)
		if err != nil {
			s.err = err
			s.coord.Finish()
		}
	})
	return err
}

func (s *Server) start(ctx context.Context) error {
	if err := s.coord.Transition(lifecycle.Initializing); err != nil {
		return err
	}
	runID, err := id.NewID()
	if err != nil {
		return err
	}
	s.runID = runID

	// Bind before touching the log file so a busy port leaves no file behind.
	s.acceptor, err = Listen(AcceptorConfig{
		Host:     s.cfg.Host,
		Port:     s.cfg.Port,
		MaxConns: s.cfg.MaxConns,
		Poll:     s.cfg.AcceptPoll,
		Logf:     s.cfg.Logf,
	})
	if err != nil {
		return err
	}
	s.coord.CloseOnStop("listener", s.acceptor)

	file, err := logsink.OpenFile(s.cfg.LogPath)
	if err != nil {
		return err
	}
	s.coord.CloseOnFinish("log file", file)

	var archive storage.ArchiveStore
	if s.cfg.DBPath != "" {
		store, err := logsqlite.Open(s.cfg.DBPath)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeArchive, "open entry archive", err)
		}
		s.archive = store
		archive = store
		s.coord.CloseOnFinish("entry archive", store)
	}

	s.queue = logsink.NewQueue()
	s.sink = logsink.New(s.queue, file, logsink.Config{
		Interval: s.cfg.FlushInterval,
		Console:  s.cfg.Console,
		Archive:  archive,
		RunID:    s.runID,
		Clock:    s.cfg.Clock,
		Logf:     s.cfg.Logf,
	})
	s.handler = NewHandler(s.queue, s.cfg.ReadBufferSize, s.cfg.Framing, s.cfg.Clock, s.cfg.Logf)

	if s.cfg.HealthAddr != "" {
		if err := s.startHealth(); err != nil {
			return err
		}
	}

	if err := s.startKeys(); err != nil {
		s.cfg.Logf("keyboard shutdown disabled: %v", err)
	}

	s.coord.OnStop(func(reason string) error {
		s.cfg.Logf("stopping log server: %s", reason)
		return s.sink.Log(stopMessage)
	})
	if err := s.sink.Log(startMessage); err != nil {
		return err
	}
	if err := s.coord.Transition(lifecycle.Listening); err != nil {
		return err
	}
	if s.health != nil {
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	s.cfg.Logf("log server listening at %v (run %s)", s.acceptor.Addr(), s.runID)

	stopOnCancel := context.AfterFunc(ctx, func() {
		s.coord.RequestStop("context cancelled")
	})
	go func() {
		defer stopOnCancel()
		s.err = s.run()
		s.cfg.Logf("log server stopped: %s", s.coord.Reason())
		s.coord.Finish()
	}()
	return nil
}

func (s *Server) startHealth() error {
	ln, err := net.Listen("tcp", s.cfg.HealthAddr)
	if err != nil {
		return classifyListenError(s.cfg.HealthAddr, err)
	}
	s.healthLn = ln
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	go func() {
		if err := s.grpcServer.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.cfg.Logf("serve health: %v", err)
		}
	}()
	s.coord.CloseOnStop("health status", closerFunc(func() error {
		s.health.Shutdown()
		return nil
	}))
	s.coord.CloseOnFinish("health server", closerFunc(func() error {
		stopGRPC(s.grpcServer, timeouts.Shutdown)
		return nil
	}))
	return nil
}

func (s *Server) startKeys() error {
	source := s.cfg.Keys
	if source == nil {
		if !s.cfg.Interactive {
			return nil
		}
		var err error
		source, err = input.Stdin()
		if err != nil {
			return err
		}
	}
	s.coord.CloseOnFinish("keyboard", source)
	s.keys = input.New(source, input.Config{
		QuitKey:  s.cfg.QuitKey,
		Interval: s.cfg.InputPoll,
		OnQuit:   s.coord.RequestStop,
		Logf:     s.cfg.Logf,
	})
	return nil
}

// run supervises the long-lived units. The sink outlives the acceptor so
// its final drain sees every entry the handlers enqueued.
func (s *Server) run() error {
	stopCtx := s.coord.Context()
	sinkCtx, cancelSink := context.WithCancel(context.Background())

	var g errgroup.Group
	g.Go(func() error {
		defer cancelSink()
		err := s.acceptor.Serve(stopCtx, s.handler.Serve)
		if err != nil {
			s.cfg.Logf("acceptor failed: %v", err)
			s.coord.RequestStop("acceptor failure")
		}
		if n := s.acceptor.ActiveConnections(); n > 0 {
			s.cfg.Logf("waiting up to %v for %d open connections", s.cfg.HandlerGrace, n)
		}
		s.acceptor.Drain(s.cfg.HandlerGrace)
		s.queue.Close()
		return err
	})
	g.Go(func() error {
		return s.sink.Run(sinkCtx)
	})
	if s.keys != nil {
		g.Go(func() error {
			return s.keys.Run(stopCtx)
		})
	}
	return g.Wait()
}

// RequestStop asks the server to shut down. Only the first call has an
// effect.
func (s *Server) RequestStop() bool {
	return s.coord.RequestStop("stop requested")
}

// Wait blocks until the server is stopped and returns the error that ended
// it, if any.
func (s *Server) Wait() error {
	<-s.coord.Stopped()
	return s.err
}

// Done is closed once the server is stopped.
func (s *Server) Done() <-chan struct{} {
	return s.coord.Stopped()
}

// State reports the lifecycle state.
func (s *Server) State() lifecycle.State {
	return s.coord.State()
}

// Addr returns the bound log address, or "" before Start.
func (s *Server) Addr() string {
	if s.acceptor == nil {
		return ""
	}
	return s.acceptor.Addr().String()
}

// Port returns the bound log port, or 0 before Start.
func (s *Server) Port() int {
	addr := s.Addr()
	if addr == "" {
		return 0
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// HealthAddr returns the bound health address, or "" when disabled.
func (s *Server) HealthAddr() string {
	if s.healthLn == nil {
		return ""
	}
	return s.healthLn.Addr().String()
}

// RunID identifies this run in the entry archive.
func (s *Server) RunID() string {
	return s.runID
}

// Stats returns the sink counters.
func (s *Server) Stats() logsink.Stats {
	if s.sink == nil {
		return logsink.Stats{}
	}
	return s.sink.Stats()
}

func stopGRPC(srv *grpc.Server, timeout time.Duration) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		srv.Stop()
		<-stopped
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
