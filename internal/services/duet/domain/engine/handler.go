package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/command"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

// ErrStoreRequired indicates a handler without a store.
var ErrStoreRequired = errors.New("engine store is required")

const defaultMaxAttempts = 5

// Store is the persistence the engine needs.
type Store interface {
	LoadSession(ctx context.Context, sessionID string) (session.State, error)
	ActionsByRequest(ctx context.Context, sessionID, requestID string) ([]action.Action, error)
	CommitActions(ctx context.Context, prev, next session.State, actions []action.Action) ([]action.Action, error)
}

// Handler executes commands against the store.
type Handler struct {
	Store       Store
	Publisher   eventbus.Publisher
	Now         func() time.Time
	Logger      *zap.Logger
	Tracer      trace.Tracer
	MaxAttempts uint
	// BackOff builds the retry policy for lost races. Nil uses a short
	// exponential policy.
	BackOff func() backoff.BackOff
}

// Result captures execution outcomes.
type Result struct {
	Decision command.Decision
	State    session.State
	// Actions are the committed actions with seq and hashes assigned.
	Actions []action.Action
	// Duplicate is set when the request id was already applied; Actions then
	// holds the originally committed actions.
	Duplicate bool
}

// Execute decides cmd against current state and commits the outcome.
// Rejections are returned as platform errors carrying the rejection code.
func (h Handler) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	if h.Store == nil {
		return Result{}, ErrStoreRequired
	}
	ctx, span := h.tracer().Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("duet.session_id", cmd.SessionID),
		attribute.String("duet.command", string(cmd.Type)),
	))
	defer span.End()

	maxAttempts := h.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	result, err := backoff.Retry(ctx, func() (Result, error) {
		return h.attempt(ctx, cmd)
	},
		backoff.WithBackOff(h.backOff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			h.logger().Debug("retrying command after conflict",
				zap.String("session_id", cmd.SessionID),
				zap.String("command", string(cmd.Type)),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if code := apperrors.CodeOf(err); code != apperrors.CodeUnknown {
			span.SetAttributes(attribute.String("duet.error_code", string(code)))
		}
		span.SetStatus(otelcodes.Error, err.Error())
		return Result{}, err
	}

	if !result.Duplicate && h.Publisher != nil {
		h.Publisher.PublishAll(eventbus.FromActions(cmd.SessionID, result.Actions))
	}
	span.SetAttributes(attribute.Int("duet.actions", len(result.Actions)))
	return result, nil
}

func (h Handler) attempt(ctx context.Context, cmd command.Command) (Result, error) {
	if cmd.RequestID != "" {
		if cmd.ActorID != command.ActorSystem && command.ReservedRequestID(cmd.RequestID) {
			return Result{}, backoff.Permanent(apperrors.WithMetadata(apperrors.CodeInvalidArgument,
				"request id "+cmd.RequestID+" is reserved", map[string]string{"RequestID": cmd.RequestID}))
		}
		existing, err := h.Store.ActionsByRequest(ctx, cmd.SessionID, cmd.RequestID)
		if err != nil {
			return Result{}, backoff.Permanent(fmt.Errorf("lookup request %s: %w", cmd.RequestID, err))
		}
		if len(existing) > 0 {
			if first := existing[0]; first.Command != string(cmd.Type) || first.ActorID != cmd.ActorID {
				return Result{}, backoff.Permanent(apperrors.WithMetadata(apperrors.CodeInvalidArgument,
					fmt.Sprintf("request id %s was already used by %s for %s", cmd.RequestID, first.ActorID, first.Command),
					map[string]string{"RequestID": cmd.RequestID}))
			}
			state, err := h.Store.LoadSession(ctx, cmd.SessionID)
			if err != nil {
				return Result{}, backoff.Permanent(err)
			}
			return Result{State: state, Actions: existing, Duplicate: true}, nil
		}
	}

	state, err := h.Store.LoadSession(ctx, cmd.SessionID)
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}
	decision := session.Decide(state, cmd, h.now)
	if decision.Rejected() {
		return Result{}, backoff.Permanent(RejectionError(decision.Rejections[0]))
	}
	if len(decision.Actions) == 0 {
		return Result{Decision: decision, State: state}, nil
	}

	actions := make([]action.Action, len(decision.Actions))
	for i, a := range decision.Actions {
		a.Seq = state.LastSeq + uint64(i) + 1
		actions[i] = a
	}
	next, err := session.FoldAll(state, actions)
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("fold %s: %w", cmd.Type, err))
	}
	committed, err := h.Store.CommitActions(ctx, state, next, actions)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Result{}, err
		}
		return Result{}, backoff.Permanent(fmt.Errorf("commit %s: %w", cmd.Type, err))
	}
	return Result{Decision: decision, State: next, Actions: committed}, nil
}

// RejectionError converts a decider rejection into a platform error.
func RejectionError(r command.Rejection) error {
	code := apperrors.Code(r.Code)
	if code == "" {
		code = apperrors.CodeUnknown
	}
	return apperrors.New(code, r.Message)
}

// IsNoop reports whether err is a rejection a forced command treats as
// "someone else already moved the session on".
func IsNoop(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeRoundMismatch, apperrors.CodePhaseMismatch,
		apperrors.CodeSessionAlreadyFinished, apperrors.CodeSessionNotActive:
		return true
	}
	return false
}

func (h Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func (h Handler) backOff() backoff.BackOff {
	if h.BackOff != nil {
		return h.BackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return b
}

func (h Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h Handler) tracer() trace.Tracer {
	if h.Tracer == nil {
		return otel.Tracer("github.com/louisbranch/duet/internal/services/duet/domain/engine")
	}
	return h.Tracer
}
