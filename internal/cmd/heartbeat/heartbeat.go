// Package heartbeat parses heartbeat client flags and launches the client.
package heartbeat

import (
	"context"
	"flag"
	"strings"

	entrypoint "github.com/louisbranch/heartlog/internal/platform/cmd"
	"github.com/louisbranch/heartlog/internal/platform/config"
	client "github.com/louisbranch/heartlog/internal/services/heartbeat/app"
)

// Usage is the positional synopsis printed on argument errors.
const Usage = "[flags] <clientName> <serverPort> <periodSeconds>"

// Config holds heartbeat command configuration.
type Config struct {
	Host      string `env:"HEARTLOG_HEARTBEAT_HOST" envDefault:"127.0.0.1"`
	Mode      string `env:"HEARTLOG_HEARTBEAT_MODE" envDefault:"persistent"`
	Count     int    `env:"HEARTLOG_HEARTBEAT_COUNT" envDefault:"0"`
	DialTries uint   `env:"HEARTLOG_HEARTBEAT_DIAL_TRIES" envDefault:"5"`

	Client client.Config `env:"-"`
}

// ParseConfig parses environment, flags and positional arguments.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Log server host")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Connection mode: persistent or redial")
	fs.IntVar(&cfg.Count, "count", cfg.Count, "Stop after this many heartbeats (0 runs until interrupted)")
	fs.UintVar(&cfg.DialTries, "dial-tries", cfg.DialTries, "Connection attempts before giving up")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	positional, err := entrypoint.Positional(fs, "clientName", "serverPort", "periodSeconds")
	if err != nil {
		return Config{}, err
	}
	port, err := config.ParsePort(positional[1])
	if err != nil {
		return Config{}, err
	}
	period, err := config.ParsePeriodSeconds(positional[2])
	if err != nil {
		return Config{}, err
	}
	mode, err := client.ParseMode(cfg.Mode)
	if err != nil {
		return Config{}, err
	}
	cfg.Client = client.Config{
		Name:      strings.TrimSpace(positional[0]),
		Host:      cfg.Host,
		Port:      port,
		Period:    period,
		Mode:      mode,
		Count:     cfg.Count,
		DialTries: cfg.DialTries,
	}
	if _, err := client.New(cfg.Client); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run sends heartbeats until ctx ends or the count is reached.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceHeartbeat, func(ctx context.Context) error {
		c, err := client.New(cfg.Client)
		if err != nil {
			return err
		}
		return c.Run(ctx)
	})
}
