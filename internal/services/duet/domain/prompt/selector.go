package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/duet/internal/platform/timeouts"
)

// RankRequest is what the ranking capability receives.
type RankRequest struct {
	SessionID     string
	Level         int
	Language      string
	UsedPromptIDs []string
	Candidates    []Prompt
}

// Ranker is the external ranking capability. Implementations are unreliable
// and may time out or return ids outside the candidate set.
type Ranker interface {
	Rank(ctx context.Context, req RankRequest) (Ranking, error)
}

// Inventory lists prompts for a level and language.
type Inventory interface {
	ListPrompts(ctx context.Context, level int, language string) ([]Prompt, error)
}

// Request describes the session round a prompt is needed for.
type Request struct {
	SessionID string
	Round     int
	Level     int
	Language  string
	Used      []string
}

// Selector wires the pure selection to its capabilities.
type Selector struct {
	Ranker    Ranker
	Inventory Inventory
	Timeout   time.Duration
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// NewSelector builds a selector with default timeout and telemetry.
func NewSelector(inventory Inventory, ranker Ranker, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		Ranker:    ranker,
		Inventory: inventory,
		Timeout:   timeouts.RankingCall,
		Logger:    logger,
		Tracer:    otel.Tracer("github.com/louisbranch/duet/internal/services/duet/domain/prompt"),
	}
}

// Next returns exactly one unused prompt for the request, or ErrExhausted.
func (s *Selector) Next(ctx context.Context, req Request) (Choice, error) {
	if s == nil || s.Inventory == nil {
		return Choice{}, errors.New("prompt selector is not configured")
	}
	tracer := s.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/louisbranch/duet/internal/services/duet/domain/prompt")
	}
	ctx, span := tracer.Start(ctx, "prompt.Select", trace.WithAttributes(
		attribute.String("duet.session_id", req.SessionID),
		attribute.Int("duet.round", req.Round),
		attribute.Int("duet.level", req.Level),
	))
	defer span.End()

	inventory, err := s.inventory(ctx, req)
	if err != nil {
		return Choice{}, err
	}
	remaining := Remaining(inventory, req.Used)
	if len(remaining) == 0 {
		return Choice{}, ErrExhausted
	}

	ranking := s.rank(ctx, req, remaining)
	choice, err := Select(inventory, req.Used, ranking, Seed(req.SessionID, req.Round))
	if err != nil {
		return Choice{}, err
	}
	span.SetAttributes(
		attribute.String("duet.prompt_id", choice.Prompt.ID),
		attribute.String("duet.prompt_source", string(choice.Source)),
	)
	if choice.Source == SourceFallback && s.Ranker != nil {
		s.logger().Info("prompt ranking fell back",
			zap.String("session_id", req.SessionID),
			zap.Int("round", req.Round),
			zap.String("reason", choice.Rationale),
		)
	}
	return choice, nil
}

func (s *Selector) inventory(ctx context.Context, req Request) ([]Prompt, error) {
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}
	prompts, err := s.Inventory.ListPrompts(ctx, req.Level, language)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	if len(prompts) == 0 && language != DefaultLanguage {
		prompts, err = s.Inventory.ListPrompts(ctx, req.Level, DefaultLanguage)
		if err != nil {
			return nil, fmt.Errorf("list default prompts: %w", err)
		}
	}
	return prompts, nil
}

func (s *Selector) rank(ctx context.Context, req Request, candidates []Prompt) *Ranking {
	if s.Ranker == nil {
		return nil
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = timeouts.RankingCall
	}
	rankCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ranking, err := s.Ranker.Rank(rankCtx, RankRequest{
		SessionID:     req.SessionID,
		Level:         req.Level,
		Language:      req.Language,
		UsedPromptIDs: req.Used,
		Candidates:    candidates,
	})
	if err != nil {
		s.logger().Warn("prompt ranking failed", zap.String("session_id", req.SessionID), zap.Error(err))
		return &Ranking{Err: err}
	}
	return &ranking
}

func (s *Selector) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
