// Package healthcheck probes a running duet server's gRPC health endpoint.
package healthcheck

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/duet/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/duet/internal/platform/grpc"
	duetapp "github.com/louisbranch/duet/internal/services/duet/app"
)

// Config holds healthcheck command configuration.
type Config struct {
	Addr    string        `env:"DUET_HEALTH_ADDR" envDefault:"localhost:8081"`
	Service string        `env:"DUET_HEALTH_SERVICE"`
	Timeout time.Duration `env:"DUET_HEALTH_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Service: duetapp.HealthService}
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The gRPC health server address")
	fs.StringVar(&cfg.Service, "service", cfg.Service, "The health service name to check")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "How long to wait for SERVING")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run waits until the server reports SERVING or the timeout passes.
func Run(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return platformgrpc.WaitForHealth(ctx, cfg.Addr, cfg.Service)
}
