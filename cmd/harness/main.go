// Package main starts a log server with heartbeat clients in one process.
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

	harnesscmd "github.com/louisbranch/heartlog/internal/cmd/harness"
	"github.com/louisbranch/heartlog/internal/platform/config"
)

func main() {
	fs := flag.NewFlagSet("harness", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := harnesscmd.ParseConfig(fs, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		fs.SetOutput(os.Stderr)
		config.PrintUsage(fs, "harness", harnesscmd.Usage)
		return
	}
	if err != nil {
		config.ExitUsage("harness", harnesscmd.Usage, err)
	}
	log.SetPrefix("[HARNESS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := harnesscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("harness failed: %v", err)
	}
}
