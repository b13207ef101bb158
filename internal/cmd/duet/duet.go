// Package duet parses duet server flags and launches the runtime.
package duet

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/duet/internal/platform/cmd"
	"github.com/louisbranch/duet/internal/platform/logging"
	duetapp "github.com/louisbranch/duet/internal/services/duet/app"
)

// Config holds duet server configuration.
type Config struct {
	HTTPAddr    string        `env:"DUET_HTTP_ADDR" envDefault:":8080"`
	HealthPort  int           `env:"DUET_HEALTH_PORT" envDefault:"8081"`
	DBPath      string        `env:"DUET_DB_PATH" envDefault:"data/duet.db"`
	TokenSecret string        `env:"DUET_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"DUET_TOKEN_TTL" envDefault:"12h"`

	TargetRounds      int           `env:"DUET_TARGET_ROUNDS" envDefault:"6"`
	ReconcileInterval time.Duration `env:"DUET_RECONCILE_INTERVAL" envDefault:"2s"`
	SweepInterval     time.Duration `env:"DUET_SWEEP_INTERVAL" envDefault:"30s"`
	Liveness          time.Duration `env:"DUET_LIVENESS" envDefault:"20s"`
	EvaluationStall   time.Duration `env:"DUET_EVALUATION_STALL" envDefault:"45s"`
	Countdown         time.Duration `env:"DUET_LEVEL_COUNTDOWN" envDefault:"3s"`

	RankingURL     string        `env:"DUET_RANKING_URL"`
	RankingKey     string        `env:"DUET_RANKING_KEY"`
	RankingTimeout time.Duration `env:"DUET_RANKING_TIMEOUT" envDefault:"1500ms"`

	AnalysisBaseURL    string `env:"DUET_ANALYSIS_BASE_URL"`
	AnalysisKey        string `env:"DUET_ANALYSIS_KEY"`
	AnalysisModel      string `env:"DUET_ANALYSIS_MODEL" envDefault:"gpt-4o-mini"`
	AnalysisMaxRetries int    `env:"DUET_ANALYSIS_MAX_RETRIES" envDefault:"2"`

	LogLevel       string `env:"DUET_LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"DUET_LOG_DEVELOPMENT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The gRPC health server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The duet SQLite database path")
	fs.IntVar(&cfg.TargetRounds, "target-rounds", cfg.TargetRounds, "Default rounds per session")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "Watchdog reconcile interval")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Watchdog active session sweep interval")
	fs.DurationVar(&cfg.Liveness, "liveness", cfg.Liveness, "Ping silence before a participant is disconnected")
	fs.DurationVar(&cfg.EvaluationStall, "evaluation-stall", cfg.EvaluationStall, "Evaluation soft deadline before a forced advance")
	fs.DurationVar(&cfg.Countdown, "level-countdown", cfg.Countdown, "Countdown before an agreed level unlocks")
	fs.StringVar(&cfg.RankingURL, "ranking-url", cfg.RankingURL, "Prompt ranking endpoint; empty picks prompts at random")
	fs.DurationVar(&cfg.RankingTimeout, "ranking-timeout", cfg.RankingTimeout, "Prompt ranking call timeout")
	fs.StringVar(&cfg.AnalysisBaseURL, "analysis-base-url", cfg.AnalysisBaseURL, "OpenAI-compatible analysis base URL")
	fs.StringVar(&cfg.AnalysisModel, "analysis-model", cfg.AnalysisModel, "Analysis chat model")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the duet runtime.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceDuet, logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceDuet, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		logger.Info("starting", zap.String("http_addr", cfg.HTTPAddr), zap.Int("health_port", cfg.HealthPort))
		return duetapp.Run(ctx, duetapp.RuntimeConfig{
			HTTPAddr:           cfg.HTTPAddr,
			HealthPort:         cfg.HealthPort,
			DBPath:             cfg.DBPath,
			TokenSecret:        cfg.TokenSecret,
			TokenTTL:           cfg.TokenTTL,
			TargetRounds:       cfg.TargetRounds,
			ReconcileInterval:  cfg.ReconcileInterval,
			SweepInterval:      cfg.SweepInterval,
			Liveness:           cfg.Liveness,
			EvaluationStall:    cfg.EvaluationStall,
			Countdown:          cfg.Countdown,
			RankingURL:         cfg.RankingURL,
			RankingKey:         cfg.RankingKey,
			RankingTimeout:     cfg.RankingTimeout,
			AnalysisBaseURL:    cfg.AnalysisBaseURL,
			AnalysisKey:        cfg.AnalysisKey,
			AnalysisModel:      cfg.AnalysisModel,
			AnalysisMaxRetries: cfg.AnalysisMaxRetries,
			Logger:             logger,
		})
	})
}
