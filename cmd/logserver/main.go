// Package main starts the log aggregation server process lifecycle.
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

	logservercmd "github.com/louisbranch/heartlog/internal/cmd/logserver"
	"github.com/louisbranch/heartlog/internal/platform/config"
)

func main() {
	fs := flag.NewFlagSet("logserver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := logservercmd.ParseConfig(fs, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		fs.SetOutput(os.Stderr)
		config.PrintUsage(fs, "logserver", logservercmd.Usage)
		return
	}
	if err != nil {
		config.ExitUsage("logserver", logservercmd.Usage, err)
	}
	log.SetPrefix("[LOGSERVER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logservercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
