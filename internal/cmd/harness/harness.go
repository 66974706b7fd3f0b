// Package harness parses harness flags and launches a log server together
// with its heartbeat clients.
package harness

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/louisbranch/heartlog/internal/cmd/logserver"
	entrypoint "github.com/louisbranch/heartlog/internal/platform/cmd"
	"github.com/louisbranch/heartlog/internal/platform/config"
	harness "github.com/louisbranch/heartlog/internal/services/harness/app"
	client "github.com/louisbranch/heartlog/internal/services/heartbeat/app"
)

// Usage is the positional synopsis printed on argument errors.
const Usage = "[flags] <serverPort> [<clientName> <clientPort> <periodSeconds>]..."

// Config holds harness command configuration.
type Config struct {
	logserver.Options
	Mode         string `env:"HEARTLOG_HARNESS_MODE" envDefault:"persistent"`
	Count        int    `env:"HEARTLOG_HARNESS_COUNT" envDefault:"0"`
	ExitWhenDone bool   `env:"HEARTLOG_HARNESS_EXIT_WHEN_DONE" envDefault:"false"`

	Harness harness.Config `env:"-"`
}

// ParseConfig parses environment, flags, the server port and client triples.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Bind(fs)
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Client connection mode: persistent or redial")
	fs.IntVar(&cfg.Count, "count", cfg.Count, "Heartbeats per client (0 runs until interrupted)")
	fs.BoolVar(&cfg.ExitWhenDone, "exit-when-done", cfg.ExitWhenDone, "Stop the server once every client finished")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	groups, err := entrypoint.Groups(fs, 1, 3, "clientName", "clientPort", "periodSeconds")
	if err != nil {
		return Config{}, err
	}
	serverPort, err := config.ParsePort(fs.Arg(0))
	if err != nil {
		return Config{}, err
	}
	serverCfg, err := cfg.ServerConfig(serverPort)
	if err != nil {
		return Config{}, err
	}
	mode, err := client.ParseMode(cfg.Mode)
	if err != nil {
		return Config{}, err
	}

	specs := make([]harness.ClientSpec, 0, len(groups))
	for _, group := range groups {
		port, err := config.ParseOptionalPort(group[1])
		if err != nil {
			return Config{}, err
		}
		period, err := config.ParsePeriodSeconds(group[2])
		if err != nil {
			return Config{}, err
		}
		specs = append(specs, harness.ClientSpec{
			Name:   strings.TrimSpace(group[0]),
			Port:   port,
			Period: period,
		})
	}

	cfg.Harness = harness.Config{
		Server:              serverCfg,
		Clients:             specs,
		Mode:                mode,
		Count:               cfg.Count,
		StopWhenClientsDone: cfg.ExitWhenDone,
	}
	return cfg, nil
}

// Run starts the server and clients and blocks until the server stops.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceHarness, func(ctx context.Context) error {
		result, err := harness.Run(ctx, cfg.Harness)
		for _, spec := range cfg.Harness.Clients {
			if result.Received == nil {
				log.Printf("client %s sent %d heartbeats", spec.Name, result.Sent[spec.Name])
				continue
			}
			log.Printf("client %s sent %d heartbeats, %d archived", spec.Name, result.Sent[spec.Name], result.Received[spec.Name])
		}
		return err
	})
}
