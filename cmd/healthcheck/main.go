// Package main exits zero when the duet server reports SERVING.
package main

import (
	"context"
	"flag"
	"os"

	healthcmd "github.com/louisbranch/duet/internal/cmd/healthcheck"
	"github.com/louisbranch/duet/internal/platform/config"
)

func main() {
	cfg, err := healthcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	if err := healthcmd.Run(context.Background(), cfg); err != nil {
		config.Exitf("unhealthy: %v", err)
	}
}
