// Package httpapi exposes the session procedures as a JSON HTTP API with a
// websocket fan-out endpoint.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/broadcast"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/consensus"
	"github.com/louisbranch/duet/internal/services/duet/domain/report"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/procedures"
)

// Procedures is the service surface the API drives.
type Procedures interface {
	CreateAndJoin(ctx context.Context, req procedures.CreateRequest) (procedures.Seat, error)
	JoinByCode(ctx context.Context, req procedures.JoinRequest) (procedures.Seat, error)
	State(ctx context.Context, sessionID, viewerID string) (procedures.View, error)
	Actions(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]action.Action, error)
	Ping(ctx context.Context, sessionID, participantID string) error
	BeginAnswer(ctx context.Context, sessionID, participantID, requestID string, round int) (session.State, error)
	SubmitResponse(ctx context.Context, req procedures.SubmitRequest) (session.State, error)
	Evaluate(ctx context.Context, req procedures.EvaluateRequest) (session.State, error)
	EndSession(ctx context.Context, sessionID, participantID, requestID string) (session.State, error)
	CastVote(ctx context.Context, req procedures.VoteRequest) (consensus.Outcome, error)
	RequestLevelChange(ctx context.Context, sessionID, participantID, requestID string, level int) (session.State, error)
	ForceResync(ctx context.Context, sessionID, participantID string) (session.State, error)
	Report(ctx context.Context, sessionID, viewerID string) (report.Report, error)
	Analysis(ctx context.Context, sessionID, viewerID string) (string, error)
}

// API serves the HTTP routes.
type API struct {
	svc    Procedures
	hub    *broadcast.Hub
	tokens *Tokens
	logger *zap.Logger
}

// New builds the API. A nil hub disables the websocket route.
func New(svc Procedures, hub *broadcast.Hub, tokens *Tokens, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{svc: svc, hub: hub, tokens: tokens, logger: logger}
}

// Handler returns the route mux.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /v1/sessions", a.createSession)
	mux.HandleFunc("POST /v1/sessions/join", a.joinSession)

	mux.HandleFunc("GET /v1/sessions/{id}", a.participant(a.getSession))
	mux.HandleFunc("GET /v1/sessions/{id}/actions", a.participant(a.listActions))
	mux.HandleFunc("GET /v1/sessions/{id}/ws", a.participant(a.serveWS))
	mux.HandleFunc("POST /v1/sessions/{id}/ping", a.participant(a.ping))
	mux.HandleFunc("POST /v1/sessions/{id}/answer", a.participant(a.beginAnswer))
	mux.HandleFunc("POST /v1/sessions/{id}/responses", a.participant(a.submitResponse))
	mux.HandleFunc("POST /v1/sessions/{id}/evaluations", a.participant(a.evaluate))
	mux.HandleFunc("POST /v1/sessions/{id}/end", a.participant(a.endSession))
	mux.HandleFunc("POST /v1/sessions/{id}/votes", a.participant(a.castVote))
	mux.HandleFunc("POST /v1/sessions/{id}/level-requests", a.participant(a.requestLevelChange))
	mux.HandleFunc("POST /v1/sessions/{id}/resync", a.participant(a.forceResync))
	mux.HandleFunc("GET /v1/sessions/{id}/report", a.participant(a.getReport))
	mux.HandleFunc("GET /v1/sessions/{id}/analysis", a.participant(a.getAnalysis))
	return mux
}

// participantHandler is a route that runs for an authenticated participant.
type participantHandler func(w http.ResponseWriter, r *http.Request, who Identity)

// participant authenticates the bearer token and checks it belongs to the
// session in the path. Websocket clients pass the token as ?token=.
func (a *API) participant(next participantHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := a.tokens.Verify(tokenFromRequest(r))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if who.SessionID != r.PathValue("id") {
			a.writeError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "token does not belong to this session"))
			return
		}
		next(w, r, who)
	}
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

type seatResponse struct {
	SessionID     string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	JoinCode      string        `json:"join_code"`
	Token         string        `json:"token"`
	State         session.State `json:"state"`
}

type viewResponse struct {
	State session.State `json:"state"`
	Phase session.Phase `json:"phase"`
}

func (a *API) writeSeat(w http.ResponseWriter, r *http.Request, status int, seat procedures.Seat) {
	token, err := a.tokens.Issue(seat.SessionID, seat.ParticipantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, status, seatResponse{
		SessionID:     seat.SessionID,
		ParticipantID: seat.ParticipantID,
		JoinCode:      seat.JoinCode,
		Token:         token,
		State:         seat.State,
	})
}

func (a *API) writeState(w http.ResponseWriter, state session.State, viewerID string) {
	writeJSON(w, http.StatusOK, viewResponse{State: state, Phase: state.ViewPhase(viewerID)})
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName  string `json:"display_name"`
		Language     string `json:"language"`
		TargetRounds int    `json:"target_rounds"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	language := body.Language
	if language == "" {
		language = r.Header.Get("Accept-Language")
		if i := strings.IndexAny(language, ",;"); i >= 0 {
			language = language[:i]
		}
	}
	seat, err := a.svc.CreateAndJoin(r.Context(), procedures.CreateRequest{
		DisplayName:  body.DisplayName,
		Language:     language,
		TargetRounds: body.TargetRounds,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeSeat(w, r, http.StatusCreated, seat)
}

func (a *API) joinSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JoinCode    string `json:"join_code"`
		DisplayName string `json:"display_name"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	seat, err := a.svc.JoinByCode(r.Context(), procedures.JoinRequest{JoinCode: body.JoinCode, DisplayName: body.DisplayName})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeSeat(w, r, http.StatusOK, seat)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request, who Identity) {
	view, err := a.svc.State(r.Context(), who.SessionID, who.ParticipantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{State: view.State, Phase: view.Phase})
}

func (a *API) listActions(w http.ResponseWriter, r *http.Request, who Identity) {
	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			a.writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "after must be a sequence number"))
			return
		}
		after = v
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "limit must be a number"))
			return
		}
		limit = v
	}
	actions, err := a.svc.Actions(r.Context(), who.SessionID, after, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []action.Action{}
	}
	writeJSON(w, http.StatusOK, struct {
		Actions []action.Action `json:"actions"`
	}{actions})
}

func (a *API) serveWS(w http.ResponseWriter, r *http.Request, who Identity) {
	if a.hub == nil {
		a.writeError(w, r, apperrors.New(apperrors.CodeUnavailable, "websocket fan-out is not configured"))
		return
	}
	a.hub.Handler(who.SessionID, who.ParticipantID).ServeHTTP(w, r)
}

func (a *API) ping(w http.ResponseWriter, r *http.Request, who Identity) {
	if err := a.svc.Ping(r.Context(), who.SessionID, who.ParticipantID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ServerTime string `json:"server_time"`
	}{time.Now().UTC().Format(time.RFC3339Nano)})
}

func (a *API) beginAnswer(w http.ResponseWriter, r *http.Request, who Identity) {
	var body struct {
		RequestID string `json:"request_id"`
		Round     int    `json:"round"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	state, err := a.svc.BeginAnswer(r.Context(), who.SessionID, who.ParticipantID, body.RequestID, body.Round)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, state, who.ParticipantID)
}

func (a *API) submitResponse(w http.ResponseWriter, r *http.Request, who Identity) {
	var body struct {
		RequestID  string `json:"request_id"`
		ResponseID string `json:"response_id"`
		Round      int    `json:"round"`
		Answer     string `json:"answer"`
		ElapsedMS  int64  `json:"elapsed_ms"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	state, err := a.svc.SubmitResponse(r.Context(), procedures.SubmitRequest{
		SessionID:     who.SessionID,
		ParticipantID: who.ParticipantID,
		RequestID:     body.RequestID,
		ResponseID:    body.ResponseID,
		Round:         body.Round,
		Answer:        body.Answer,
		Elapsed:       time.Duration(body.ElapsedMS) * time.Millisecond,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, state, who.ParticipantID)
}

func (a *API) evaluate(w http.ResponseWriter, r *http.Request, who Identity) {
	var body struct {
		RequestID  string  `json:"request_id"`
		ResponseID string  `json:"response_id"`
		Round      int     `json:"round"`
		Honesty    float64 `json:"honesty"`
		Attraction float64 `json:"attraction"`
		Intimacy   float64 `json:"intimacy"`
		Surprise   float64 `json:"surprise"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	state, err := a.svc.Evaluate(r.Context(), procedures.EvaluateRequest{
		SessionID:     who.SessionID,
		ParticipantID: who.ParticipantID,
		RequestID:     body.RequestID,
		ResponseID:    body.ResponseID,
		Round:         body.Round,
		Honesty:       body.Honesty,
		Attraction:    body.Attraction,
		Intimacy:      body.Intimacy,
		Surprise:      body.Surprise,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, state, who.ParticipantID)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request, who Identity) {
	var body struct {
		RequestID string `json:"request_id"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	state, err := a.svc.EndSession(r.Context(), who.SessionID, who.ParticipantID, body.RequestID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, state, who.ParticipantID)
}

type voteResponse struct {
	Status    consensus.Status `json:"status"`
	Level     int              `json:"level,omitempty"`
	Round     int              `json:"round"`
	NextRound int              `json:"next_round"`
	UnlockAt  *time.Time       `json:"unlock_at,omitempty"`
}

func (a *API) castVote(w http.ResponseWriter, r *http.Request, who Identity) {
	var body struct {
		Round int `json:"round"`
		Level int `json:"level"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	outcome, err := a.svc.CastVote(r.Context(), procedures.VoteRequest{
		SessionID:     who.SessionID,
		ParticipantID: who.ParticipantID,
		Round:         body.Round,
		Level:         body.Level,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := voteResponse{Status: outcome.Status, Level: outcome.Level, Round: outcome.Round, NextRound: outcome.NextRound}
	if !outcome.UnlockAt.IsZero() {
		unlock := outcome.UnlockAt
		resp.UnlockAt = &unlock
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) requestLevelChange(w http.ResponseWriter, r *http.Request, who Identity) {
	var body struct {
		RequestID string `json:"request_id"`
		Level     int    `json:"level"`
	}
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	state, err := a.svc.RequestLevelChange(r.Context(), who.SessionID, who.ParticipantID, body.RequestID, body.Level)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, state, who.ParticipantID)
}

func (a *API) forceResync(w http.ResponseWriter, r *http.Request, who Identity) {
	state, err := a.svc.ForceResync(r.Context(), who.SessionID, who.ParticipantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeState(w, state, who.ParticipantID)
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request, who Identity) {
	rep, err := a.svc.Report(r.Context(), who.SessionID, who.ParticipantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) getAnalysis(w http.ResponseWriter, r *http.Request, who Identity) {
	text, err := a.svc.Analysis(r.Context(), who.SessionID, who.ParticipantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Analysis string `json:"analysis"`
	}{text})
}
