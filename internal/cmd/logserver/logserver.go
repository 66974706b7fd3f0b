// Package logserver parses log server flags and launches the service.
package logserver

import (
	"context"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/heartlog/internal/platform/cmd"
	"github.com/louisbranch/heartlog/internal/platform/config"
	server "github.com/louisbranch/heartlog/internal/services/logserver/app"
)

// Usage is the positional synopsis printed on argument errors.
const Usage = "[flags] <port>"

// Options holds the server settings shared by every command that runs a
// log server.
type Options struct {
	Host          string        `env:"HEARTLOG_LOGSERVER_HOST"`
	LogPath       string        `env:"HEARTLOG_LOGSERVER_LOG_PATH" envDefault:"log.txt"`
	HealthPort    int           `env:"HEARTLOG_LOGSERVER_HEALTH_PORT" envDefault:"0"`
	DBPath        string        `env:"HEARTLOG_LOGSERVER_DB_PATH"`
	MaxConns      int           `env:"HEARTLOG_LOGSERVER_MAX_CONNS" envDefault:"0"`
	ReadBuffer    int           `env:"HEARTLOG_LOGSERVER_READ_BUFFER" envDefault:"1024"`
	Framing       string        `env:"HEARTLOG_LOGSERVER_FRAMING" envDefault:"raw"`
	AcceptPoll    time.Duration `env:"HEARTLOG_LOGSERVER_ACCEPT_POLL" envDefault:"10ms"`
	FlushInterval time.Duration `env:"HEARTLOG_LOGSERVER_FLUSH_INTERVAL" envDefault:"100ms"`
	InputPoll     time.Duration `env:"HEARTLOG_LOGSERVER_INPUT_POLL" envDefault:"100ms"`
	HandlerGrace  time.Duration `env:"HEARTLOG_LOGSERVER_HANDLER_GRACE" envDefault:"500ms"`
	QuitKey       string        `env:"HEARTLOG_LOGSERVER_QUIT_KEY" envDefault:"q"`
	Interactive   bool          `env:"HEARTLOG_LOGSERVER_INTERACTIVE" envDefault:"true"`
}

// Bind registers the option flags over the current values.
func (o *Options) Bind(fs *flag.FlagSet) {
	fs.StringVar(&o.Host, "host", o.Host, "Interface to listen on (empty for all)")
	fs.StringVar(&o.LogPath, "log-path", o.LogPath, "Append-only log file")
	fs.IntVar(&o.HealthPort, "health-port", o.HealthPort, "gRPC health port (0 disables)")
	fs.StringVar(&o.DBPath, "db-path", o.DBPath, "SQLite entry archive (empty disables)")
	fs.IntVar(&o.MaxConns, "max-conns", o.MaxConns, "Maximum concurrent client connections (0 is unbounded)")
	fs.IntVar(&o.ReadBuffer, "read-buffer", o.ReadBuffer, "Bytes read from a client per call")
	fs.StringVar(&o.Framing, "framing", o.Framing, "Entry framing: raw or line")
	fs.DurationVar(&o.AcceptPoll, "accept-poll", o.AcceptPoll, "Bounded wait for incoming connections")
	fs.DurationVar(&o.FlushInterval, "flush-interval", o.FlushInterval, "Pause between log sink drains")
	fs.DurationVar(&o.InputPoll, "input-poll", o.InputPoll, "Bounded wait for a keystroke")
	fs.DurationVar(&o.HandlerGrace, "handler-grace", o.HandlerGrace, "Time handlers may keep reading after a stop")
	fs.StringVar(&o.QuitKey, "quit-key", o.QuitKey, "Key that stops the server")
	fs.BoolVar(&o.Interactive, "interactive", o.Interactive, "Watch stdin for the quit key")
}

// ServerConfig validates the options and builds a runtime config bound to
// port.
func (o Options) ServerConfig(port int) (server.Config, error) {
	framing, err := server.ParseFraming(o.Framing)
	if err != nil {
		return server.Config{}, err
	}
	if len(o.QuitKey) != 1 {
		return server.Config{}, fmt.Errorf("quit key must be a single character, got %q", o.QuitKey)
	}
	if o.HealthPort < 0 || o.HealthPort > config.MaxPort {
		return server.Config{}, fmt.Errorf("health port %d out of range 0-%d", o.HealthPort, config.MaxPort)
	}
	if o.HealthPort != 0 && o.HealthPort == port {
		return server.Config{}, fmt.Errorf("health port must differ from the log port %d", port)
	}
	if o.MaxConns < 0 {
		return server.Config{}, fmt.Errorf("max conns must not be negative")
	}
	if o.ReadBuffer <= 0 {
		return server.Config{}, fmt.Errorf("read buffer must be greater than zero")
	}

	cfg := server.Config{
		Host:           o.Host,
		Port:           port,
		LogPath:        o.LogPath,
		DBPath:         o.DBPath,
		MaxConns:       o.MaxConns,
		ReadBufferSize: o.ReadBuffer,
		Framing:        framing,
		AcceptPoll:     o.AcceptPoll,
		FlushInterval:  o.FlushInterval,
		InputPoll:      o.InputPoll,
		HandlerGrace:   o.HandlerGrace,
		QuitKey:        o.QuitKey[0],
		Interactive:    o.Interactive,
	}
	if o.HealthPort > 0 {
		cfg.HealthAddr = net.JoinHostPort(o.Host, strconv.Itoa(o.HealthPort))
	}
	return cfg, nil
}

// Config holds log server command configuration.
type Config struct {
	Options
	Port   int
	Server server.Config `env:"-"`
}

// ParseConfig parses environment, flags and the positional port into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Bind(fs)
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	positional, err := entrypoint.Positional(fs, "port")
	if err != nil {
		return Config{}, err
	}
	if cfg.Port, err = config.ParsePort(positional[0]); err != nil {
		return Config{}, err
	}
	if cfg.Server, err = cfg.ServerConfig(cfg.Port); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the log server and blocks until it stops.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLogServer, func(ctx context.Context) error {
		return server.Run(ctx, cfg.Server)
	})
}
