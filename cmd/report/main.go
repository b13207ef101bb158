// Package main prints the verified report of a stored session.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	reportcmd "github.com/louisbranch/duet/internal/cmd/report"
	"github.com/louisbranch/duet/internal/platform/config"
)

func main() {
	cfg, err := reportcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := reportcmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
