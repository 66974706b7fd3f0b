// Package main starts a heartbeat reporting client.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	heartbeatcmd "github.com/louisbranch/heartlog/internal/cmd/heartbeat"
	"github.com/louisbranch/heartlog/internal/platform/config"
)

func main() {
	fs := flag.NewFlagSet("heartbeat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := heartbeatcmd.ParseConfig(fs, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		fs.SetOutput(os.Stderr)
		config.PrintUsage(fs, "heartbeat", heartbeatcmd.Usage)
		return
	}
	if err != nil {
		config.ExitUsage("heartbeat", heartbeatcmd.Usage, err)
	}
	log.SetPrefix("[HEARTBEAT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := heartbeatcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("heartbeat client failed: %v", err)
	}
}
