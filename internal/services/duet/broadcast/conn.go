package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
)

const (
	maxFramePayloadBytes   = 4 * 1024
	maxFramesPerSecond     = 20
	maxDecodeErrorsPerConn = 3
)

// Handler returns the websocket handler for an authenticated participant of a
// session.
func (h *Hub) Handler(sessionID, participantID string) websocket.Handler {
	return func(conn *websocket.Conn) {
		h.serveConn(conn, sessionID, participantID)
	}
}

func (h *Hub) serveConn(conn *websocket.Conn, sessionID, participantID string) {
	ctx := context.Background()
	if req := conn.Request(); req != nil {
		ctx = req.Context()
	}
	decoder := json.NewDecoder(conn)
	p := newPeer(conn, participantID)

	r, latest, err := h.enter(ctx, sessionID, p)
	if err != nil {
		h.logger.Info("websocket join refused",
			zap.String("session_id", sessionID),
			zap.String("participant_id", participantID),
			zap.Error(err),
		)
		_ = writeError(p, "", err)
		p.close()
		return
	}
	defer h.exit(r, p)

	_ = p.writeFrame(Frame{Type: FrameJoined, Payload: mustJSON(JoinedPayload{
		SessionID:     sessionID,
		ParticipantID: participantID,
		LatestSeq:     latest,
		ServerTime:    serverTime(h.now()),
	})})

	windowStart := h.now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			decodeErrors++
			_ = writeError(p, "", apperrors.New(apperrors.CodeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			// A decoder that failed mid-value cannot resynchronize.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeError(p, frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "payload too large"))
			continue
		}

		now := h.now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeError(p, frame.RequestID, apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded"))
			return
		}

		switch frame.Type {
		case FramePing:
			h.handlePing(ctx, p, sessionID, frame)
		default:
			_ = writeError(p, frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "unsupported frame type"))
		}
	}
}

func (h *Hub) handlePing(ctx context.Context, p *peer, sessionID string, frame Frame) {
	if h.pinger != nil {
		if err := h.pinger.Ping(ctx, sessionID, p.participantID); err != nil {
			_ = writeError(p, frame.RequestID, err)
			return
		}
	}
	_ = p.writeFrame(Frame{
		Type:      FramePong,
		RequestID: frame.RequestID,
		Payload:   mustJSON(PongPayload{ServerTime: serverTime(h.now())}),
	})
}

func writeError(p *peer, requestID string, err error) error {
	code := apperrors.CodeOf(err)
	message := err.Error()
	if appErr, ok := apperrors.As(err); ok {
		message = appErr.Message
	}
	return p.writeFrame(Frame{
		Type:      FrameError,
		RequestID: requestID,
		Payload: mustJSON(ErrorEnvelope{Error: WireError{
			Code:      string(code),
			Message:   message,
			Retryable: code == apperrors.CodeConflict || code == apperrors.CodeUnavailable,
		}}),
	})
}
