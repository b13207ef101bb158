package procedures

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/platform/timeouts"
	"github.com/louisbranch/duet/internal/services/duet/domain/command"
	"github.com/louisbranch/duet/internal/services/duet/domain/consensus"
	"github.com/louisbranch/duet/internal/services/duet/domain/engine"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
	"github.com/louisbranch/duet/internal/services/duet/domain/report"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

// Store is the persistence the procedures need.
type Store interface {
	storage.SessionStore
	storage.ActionStore
	storage.ResponseStore
	storage.VoteStore
	storage.PromptStore
}

// Analyzer is the relationship-analysis capability.
type Analyzer interface {
	Analyze(ctx context.Context, r report.Report) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes domain events to p.
func WithPublisher(p eventbus.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithAnalyzer enables the written analysis.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Service) {
		s.analyzer = a
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLiveness sets how long a participant may go without a ping.
func WithLiveness(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.liveness = d
		}
	}
}

// WithEvaluationStall sets the evaluation soft deadline.
func WithEvaluationStall(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.evaluationStall = d
		}
	}
}

// WithTargetRounds sets the default number of rounds for new sessions.
func WithTargetRounds(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.targetRounds = n
		}
	}
}

// WithCountdown sets the level unlock countdown.
func WithCountdown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.countdown = d
		}
	}
}

// Service implements the procedures over a store.
type Service struct {
	store     Store
	selector  *prompt.Selector
	publisher eventbus.Publisher
	analyzer  Analyzer
	logger    *zap.Logger
	now       func() time.Time

	liveness        time.Duration
	evaluationStall time.Duration
	targetRounds    int
	countdown       time.Duration

	engine engine.Handler
	voter  *consensus.Voter
	resync singleflight.Group
}

// New builds a service. The selector picks prompts for every turn advance.
func New(store Store, selector *prompt.Selector, opts ...Option) *Service {
	s := &Service{
		store:           store,
		selector:        selector,
		logger:          zap.NewNop(),
		now:             time.Now,
		liveness:        timeouts.Liveness,
		evaluationStall: timeouts.EvaluationStall,
		targetRounds:    session.DefaultTargetRounds,
		countdown:       consensus.DefaultCountdown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.engine = engine.Handler{
		Store:     store,
		Publisher: s.publisher,
		Now:       s.now,
		Logger:    s.logger,
	}
	s.voter = &consensus.Voter{Store: store, Countdown: s.countdown, Now: s.now}
	return s
}

func (s *Service) publish(evt eventbus.Event) {
	if s.publisher != nil {
		s.publisher.Publish(evt)
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// execute builds and runs one engine command.
func (s *Service) execute(ctx context.Context, typ command.Type, sessionID, actorID, requestID string, payload any) (engine.Result, error) {
	cmd, err := command.New(typ, sessionID, actorID, requestID, payload)
	if err != nil {
		return engine.Result{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid command", err)
	}
	return s.engine.Execute(ctx, cmd)
}

// loadMember loads a session and checks participantID belongs to it.
func (s *Service) loadMember(ctx context.Context, sessionID, participantID string) (session.State, error) {
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return session.State{}, err
	}
	if !state.IsParticipant(participantID) {
		return session.State{}, apperrors.New(apperrors.CodeParticipantUnknown,
			"participant "+participantID+" is not in session "+sessionID)
	}
	return state, nil
}

// normalizeLanguage reduces a BCP 47 tag to its base language.
func normalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return prompt.DefaultLanguage
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return prompt.DefaultLanguage
	}
	base, _ := tag.Base()
	return base.String()
}
