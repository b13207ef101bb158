// Package app wires the duet service: storage, procedures, fan-out, the
// watchdog, the HTTP API and the health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	platformgrpc "github.com/louisbranch/duet/internal/platform/grpc"
	"github.com/louisbranch/duet/internal/platform/logging"
	"github.com/louisbranch/duet/internal/platform/timeouts"
	"github.com/louisbranch/duet/internal/services/duet/api/httpapi"
	"github.com/louisbranch/duet/internal/services/duet/broadcast"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/integration/analysis"
	"github.com/louisbranch/duet/internal/services/duet/integration/ranking"
	"github.com/louisbranch/duet/internal/services/duet/procedures"
	"github.com/louisbranch/duet/internal/services/duet/storage/sqlite"
	"github.com/louisbranch/duet/internal/services/duet/watchdog"
)

// HealthService is the gRPC health service name reported while serving.
const HealthService = "duet.sessions"

const (
	defaultHTTPAddr   = ":8080"
	defaultHealthPort = 8081
	defaultDBPath     = "data/duet.db"
)

// RuntimeConfig controls the duet process.
type RuntimeConfig struct {
	HTTPAddr    string
	HealthPort  int
	DBPath      string
	TokenSecret string
	TokenTTL    time.Duration

	TargetRounds      int
	ReconcileInterval time.Duration
	SweepInterval     time.Duration
	Liveness          time.Duration
	EvaluationStall   time.Duration
	Countdown         time.Duration

	RankingURL     string
	RankingKey     string
	RankingTimeout time.Duration

	AnalysisBaseURL    string
	AnalysisKey        string
	AnalysisModel      string
	AnalysisMaxRetries int

	Logger *zap.Logger
}

// Runtime holds the wired components of one process.
type Runtime struct {
	store    *sqlite.Store
	bus      *eventbus.Bus
	service  *procedures.Service
	hub      *broadcast.Hub
	watchdog *watchdog.Watchdog
	api      *httpapi.API
	logger   *zap.Logger
	detach   []func()
}

// New opens storage, seeds the prompt catalog and wires every component.
// Close releases what New opened.
func New(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	logger := logging.OrNop(cfg.Logger)
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(ctx, cfg.DBPath, sqlite.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	catalog, err := prompt.DefaultCatalog()
	if err == nil {
		err = store.SeedPrompts(ctx, catalog)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed prompts: %w", err)
	}

	tokens, err := httpapi.NewTokens(cfg.TokenSecret, cfg.TokenTTL, nil)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var ranker prompt.Ranker
	if url := strings.TrimSpace(cfg.RankingURL); url != "" {
		ranker = ranking.New(url, cfg.RankingKey, &http.Client{})
	} else {
		logger.Info("ranking capability not configured, prompts are picked at random")
	}
	selector := prompt.NewSelector(store, ranker, logger.Named("selector"))
	if cfg.RankingTimeout > 0 {
		selector.Timeout = cfg.RankingTimeout
	}

	bus := eventbus.New(logger.Named("events"))
	opts := []procedures.Option{
		procedures.WithPublisher(bus),
		procedures.WithLogger(logger.Named("procedures")),
		procedures.WithTargetRounds(cfg.TargetRounds),
		procedures.WithLiveness(cfg.Liveness),
		procedures.WithEvaluationStall(cfg.EvaluationStall),
		procedures.WithCountdown(cfg.Countdown),
	}
	if strings.TrimSpace(cfg.AnalysisKey) != "" || strings.TrimSpace(cfg.AnalysisBaseURL) != "" {
		opts = append(opts, procedures.WithAnalyzer(analysis.New(analysis.Config{
			BaseURL:    cfg.AnalysisBaseURL,
			APIKey:     cfg.AnalysisKey,
			Model:      cfg.AnalysisModel,
			MaxRetries: cfg.AnalysisMaxRetries,
		})))
	}
	service := procedures.New(store, selector, opts...)

	hub := broadcast.NewHub(store, logger.Named("broadcast"), broadcast.WithPinger(service))
	wd := watchdog.New(service, store,
		watchdog.WithInterval(cfg.ReconcileInterval),
		watchdog.WithSweepInterval(cfg.SweepInterval),
		watchdog.WithLogger(logger.Named("watchdog")),
	)

	return &Runtime{
		store:    store,
		bus:      bus,
		service:  service,
		hub:      hub,
		watchdog: wd,
		api:      httpapi.New(service, hub, tokens, logger.Named("http")),
		logger:   logger,
		detach:   []func(){hub.Attach(bus), wd.Attach(bus)},
	}, nil
}

// Close detaches event subscribers, stops the rooms and closes storage.
func (r *Runtime) Close() error {
	for _, detach := range r.detach {
		detach()
	}
	r.hub.Close()
	return r.store.Close()
}

// Serve runs the HTTP API, the health server and the watchdog until ctx ends
// or one of them fails, then shuts all of them down.
func (r *Runtime) Serve(ctx context.Context, httpListener, healthListener net.Listener) error {
	httpServer := &http.Server{
		Handler:           r.api.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	grpcServer, healthServer := platformgrpc.NewHealthServer(HealthService)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("http server listening", zap.Stringer("addr", httpListener.Addr()))
		if err := httpServer.Serve(httpListener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.logger.Info("health server listening", zap.Stringer("addr", healthListener.Addr()))
		if err := grpcServer.Serve(healthListener); err != nil {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return r.watchdog.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		if err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Run builds a runtime, listens on the configured addresses and serves until
// ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultHealthPort
	}

	rt, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.logger.Warn("close runtime", zap.Error(err))
		}
	}()

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	return rt.Serve(ctx, httpListener, healthListener)
}
