// Package client is the participant side of a session: an HTTP API client
// and a Mirror that keeps a local copy of the session in step with the
// server's action log.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
)

const actionPageSize = 200

// HTTP talks to the session API as one participant.
type HTTP struct {
	baseURL   string
	sessionID string
	token     string
	client    *http.Client
}

// NewHTTP builds a client for the session at baseURL.
func NewHTTP(baseURL, sessionID, token string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		token:     token,
		client:    client,
	}
}

func (c *HTTP) sessionPath(suffix string) string {
	return c.baseURL + "/v1/sessions/" + url.PathEscape(c.sessionID) + suffix
}

// FetchState returns the authoritative session.
func (c *HTTP) FetchState(ctx context.Context) (session.State, error) {
	var body struct {
		State session.State `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, c.sessionPath(""), &body); err != nil {
		return session.State{}, err
	}
	return body.State, nil
}

// FetchActions returns every committed action after afterSeq, paging until
// the log is drained.
func (c *HTTP) FetchActions(ctx context.Context, afterSeq uint64) ([]action.Action, error) {
	var out []action.Action
	for {
		var page struct {
			Actions []action.Action `json:"actions"`
		}
		path := c.sessionPath("/actions") + "?after=" + strconv.FormatUint(afterSeq, 10) + "&limit=" + strconv.Itoa(actionPageSize)
		if err := c.do(ctx, http.MethodGet, path, &page); err != nil {
			return out, err
		}
		out = append(out, page.Actions...)
		if len(page.Actions) < actionPageSize {
			return out, nil
		}
		afterSeq = page.Actions[len(page.Actions)-1].Seq
	}
}

// Ping reports liveness.
func (c *HTTP) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.sessionPath("/ping"), nil)
}

// Dial opens the session websocket.
func (c *HTTP) Dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := c.sessionPath("/ws") + "?token=" + url.QueryEscape(c.token)
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	cfg, err := websocket.NewConfig(wsURL, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	return cfg.DialContext(ctx)
}

func (c *HTTP) do(ctx context.Context, method, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
		if json.Unmarshal(raw, &body) == nil && body.Error.Code != "" {
			return apperrors.New(apperrors.Code(body.Error.Code), body.Error.Message)
		}
		return fmt.Errorf("%s %s returned %s", method, req.URL.Path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
