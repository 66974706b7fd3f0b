// Package harness runs a log server and a set of heartbeat clients in one
// process.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/heartlog/internal/platform/grpc"
	"github.com/louisbranch/heartlog/internal/platform/timeouts"
	client "github.com/louisbranch/heartlog/internal/services/heartbeat/app"
	server "github.com/louisbranch/heartlog/internal/services/logserver/app"
	logsqlite "github.com/louisbranch/heartlog/internal/services/logserver/storage/sqlite"
	"github.com/louisbranch/heartlog/internal/wire"
	"golang.org/x/sync/errgroup"
)

// ClientSpec describes one heartbeat client. Port zero targets the
// in-process server.
type ClientSpec struct {
	Name   string
	Port   int
	Period time.Duration
}

// Config describes a harness run.
type Config struct {
	Server  server.Config
	Clients []ClientSpec
	Mode    client.Mode
	// Count limits heartbeats per client; zero runs until stopped.
	Count int
	// StopWhenClientsDone stops the server once every client has returned.
	StopWhenClientsDone bool
	HealthWait          time.Duration
	Logf                func(string, ...any)
}

// archiveTallyLimit caps how many archived entries a run summary reads.
const archiveTallyLimit = 1 << 20

// Result summarizes a finished run.
type Result struct {
	Sent map[string]int64
	// Received counts archived heartbeats per client. It is nil unless the
	// server archive is enabled.
	Received map[string]int64
}

// Run starts the server, waits for it to be ready, then runs every client
// until ctx ends or the server stops.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.HealthWait <= 0 {
		cfg.HealthWait = timeouts.HealthWait
	}
	if cfg.Server.Logf == nil {
		cfg.Server.Logf = cfg.Logf
	}

	srv := server.New(cfg.Server)
	if err := srv.Start(ctx); err != nil {
		return Result{}, err
	}
	if err := waitReady(ctx, srv, cfg); err != nil {
		srv.RequestStop()
		_ = srv.Wait()
		return Result{}, err
	}

	clients, err := buildClients(cfg, srv.Port())
	if err != nil {
		srv.RequestStop()
		_ = srv.Wait()
		return Result{}, err
	}

	clientCtx, cancelClients := context.WithCancel(ctx)
	defer cancelClients()
	go func() {
		select {
		case <-srv.Done():
			cancelClients()
		case <-clientCtx.Done():
		}
	}()

	var g errgroup.Group
	for _, c := range clients {
		g.Go(func() error {
			if err := c.Run(clientCtx); err != nil {
				cfg.Logf("client %s: %v", c.Name(), err)
				return fmt.Errorf("client %s: %w", c.Name(), err)
			}
			return nil
		})
	}
	clientErr := g.Wait()
	if cfg.StopWhenClientsDone {
		srv.RequestStop()
	}
	serverErr := srv.Wait()

	result := Result{Sent: make(map[string]int64, len(clients))}
	for _, c := range clients {
		result.Sent[c.Name()] += c.Sent()
	}
	var tallyErr error
	if cfg.Server.DBPath != "" {
		result.Received, tallyErr = tallyArchive(cfg.Server.DBPath, srv.RunID(), clients)
	}
	return result, errors.Join(serverErr, clientErr, tallyErr)
}

// tallyArchive counts the heartbeats each client got into the archive during
// run runID. Start and stop notices are not heartbeats.
func tallyArchive(dbPath, runID string, clients []*client.Client) (map[string]int64, error) {
	store, err := logsqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	entries, err := store.ListEntries(context.Background(), runID, archiveTallyLimit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	received := make(map[string]int64, len(clients))
	for _, c := range clients {
		received[c.Name()] = 0
	}
	// A raw-framed entry may hold several heartbeats from one read.
	for _, entry := range entries {
		for _, line := range strings.Split(entry.Text, "\n") {
			_, text, ok := wire.ParseStamp(line, time.Local)
			if !ok {
				continue
			}
			if _, known := received[text]; known {
				received[text]++
			}
		}
	}
	return received, nil
}

func waitReady(ctx context.Context, srv *server.Server, cfg Config) error {
	addr := srv.HealthAddr()
	if addr == "" {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, cfg.HealthWait)
	defer cancel()
	if err := platformgrpc.WaitServing(waitCtx, addr, server.HealthService, cfg.Logf); err != nil {
		return fmt.Errorf("wait for log server: %w", err)
	}
	return nil
}

func buildClients(cfg Config, serverPort int) ([]*client.Client, error) {
	clients := make([]*client.Client, 0, len(cfg.Clients))
	for i, spec := range cfg.Clients {
		port := spec.Port
		if port == 0 {
			port = serverPort
		}
		c, err := client.New(client.Config{
			Name:   spec.Name,
			Port:   port,
			Period: spec.Period,
			Mode:   cfg.Mode,
			Count:  cfg.Count,
			Logf:   cfg.Logf,
		})
		if err != nil {
			return nil, fmt.Errorf("client %d (%s): %w", i+1, spec.Name, err)
		}
		clients = append(clients, c)
	}
	return clients, nil
}
