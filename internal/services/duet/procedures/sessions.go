package procedures

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/platform/id"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/eventbus"
	"github.com/louisbranch/duet/internal/services/duet/storage"
)

const (
	joinCodeAttempts = 5
	maxActionPage    = 500

	// ReasonParticipantJoined is the resync reason sent when the second seat
	// is taken.
	ReasonParticipantJoined = "participant_joined"
	// ReasonForced is the resync reason of a participant-requested resync.
	ReasonForced = "forced"
)

// CreateRequest opens a new session.
type CreateRequest struct {
	DisplayName  string
	Language     string
	TargetRounds int
}

// JoinRequest takes the second seat of a waiting session.
type JoinRequest struct {
	JoinCode    string
	DisplayName string
}

// Seat is a participant's place in a session.
type Seat struct {
	SessionID     string
	ParticipantID string
	JoinCode      string
	State         session.State
}

// View is a session as seen by one participant.
type View struct {
	State    session.State
	ViewerID string
	Phase    session.Phase
}

func displayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.New(apperrors.CodeDisplayNameEmpty, "display name is required")
	}
	return name, nil
}

// CreateAndJoin creates a waiting session seated with its first participant.
func (s *Service) CreateAndJoin(ctx context.Context, req CreateRequest) (Seat, error) {
	name, err := displayName(req.DisplayName)
	if err != nil {
		return Seat{}, err
	}
	target := req.TargetRounds
	if target == 0 {
		target = s.targetRounds
	}
	if target < session.MinTargetRounds || target > session.MaxTargetRounds {
		return Seat{}, apperrors.WithMetadata(apperrors.CodeTargetRoundsRange,
			fmt.Sprintf("target rounds %d outside [%d, %d]", target, session.MinTargetRounds, session.MaxTargetRounds),
			map[string]string{"TargetRounds": fmt.Sprint(target)})
	}

	sessionID, err := id.NewID()
	if err != nil {
		return Seat{}, fmt.Errorf("generate session id: %w", err)
	}
	participantID, err := id.NewID()
	if err != nil {
		return Seat{}, fmt.Errorf("generate participant id: %w", err)
	}
	now := s.clock()
	first := session.Participant{
		ID:          participantID,
		SessionID:   sessionID,
		Ordinal:     session.OrdinalFirst,
		DisplayName: name,
		LastSeenAt:  now,
		Connected:   true,
		JoinedAt:    now,
	}

	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code, err := id.NewJoinCode()
		if err != nil {
			return Seat{}, fmt.Errorf("generate join code: %w", err)
		}
		state := session.State{
			ID:             sessionID,
			JoinCode:       code,
			Language:       normalizeLanguage(req.Language),
			Level:          session.MinLevel,
			Status:         session.StatusWaiting,
			Phase:          session.PhaseCardDisplay,
			TargetRounds:   target,
			VoteRound:      1,
			PhaseChangedAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err = s.store.CreateSession(ctx, state, first)
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Debug("join code collision", zap.String("session_id", sessionID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return Seat{}, err
		}
		loaded, err := s.store.LoadSession(ctx, sessionID)
		if err != nil {
			return Seat{}, err
		}
		s.logger.Info("session created", zap.String("session_id", sessionID), zap.String("language", loaded.Language))
		return Seat{SessionID: sessionID, ParticipantID: participantID, JoinCode: code, State: loaded}, nil
	}
	return Seat{}, apperrors.New(apperrors.CodeConflict, "could not allocate a join code")
}

// JoinByCode seats a second participant and asks both clients to resync.
func (s *Service) JoinByCode(ctx context.Context, req JoinRequest) (Seat, error) {
	code, ok := id.NormalizeJoinCode(req.JoinCode)
	if !ok {
		return Seat{}, storage.ErrJoinCodeInvalid
	}
	name, err := displayName(req.DisplayName)
	if err != nil {
		return Seat{}, err
	}
	participantID, err := id.NewID()
	if err != nil {
		return Seat{}, fmt.Errorf("generate participant id: %w", err)
	}
	now := s.clock()
	state, err := s.store.JoinSession(ctx, code, session.Participant{
		ID:          participantID,
		DisplayName: name,
		LastSeenAt:  now,
		Connected:   true,
		JoinedAt:    now,
	})
	if err != nil {
		return Seat{}, err
	}
	s.publish(eventbus.NewResyncRequired(state.ID, participantID, ReasonParticipantJoined, now))
	s.logger.Info("participant joined", zap.String("session_id", state.ID), zap.String("participant_id", participantID))
	return Seat{SessionID: state.ID, ParticipantID: participantID, JoinCode: code, State: state}, nil
}

// State returns the authoritative session as seen by viewerID.
func (s *Service) State(ctx context.Context, sessionID, viewerID string) (View, error) {
	state, err := s.loadMember(ctx, sessionID, viewerID)
	if err != nil {
		return View{}, err
	}
	return View{State: state, ViewerID: viewerID, Phase: state.ViewPhase(viewerID)}, nil
}

// Actions returns committed actions after afterSeq for catch-up.
func (s *Service) Actions(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]action.Action, error) {
	if limit <= 0 || limit > maxActionPage {
		limit = maxActionPage
	}
	return s.store.ListActions(ctx, sessionID, afterSeq, limit)
}

// Ping records participant liveness and announces a reconnect.
func (s *Service) Ping(ctx context.Context, sessionID, participantID string) error {
	now := s.clock()
	wasDisconnected, err := s.store.TouchParticipant(ctx, sessionID, participantID, now)
	if err != nil {
		return err
	}
	if wasDisconnected {
		s.publish(eventbus.NewParticipantReconnected(sessionID, participantID, now))
	}
	return nil
}
