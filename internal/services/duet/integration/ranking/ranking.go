// Package ranking calls the remote prompt-ranking capability over HTTP.
package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
)

const maxResponseBytes = 64 << 10

type candidate struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

type rankRequest struct {
	SessionID     string      `json:"session_id"`
	Level         int         `json:"level"`
	Language      string      `json:"language"`
	UsedPromptIDs []string    `json:"used_prompt_ids"`
	Candidates    []candidate `json:"candidates"`
}

// Client POSTs ranking requests to an HTTP endpoint.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

// New builds a client for url. A nil client uses http.DefaultClient; the
// caller's context bounds each call.
func New(url, apiKey string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{url: url, apiKey: apiKey, client: client}
}

// Rank asks the endpoint to choose among req.Candidates. The answer is not
// checked against the candidates; the selector does that.
func (c *Client) Rank(ctx context.Context, req prompt.RankRequest) (prompt.Ranking, error) {
	body := rankRequest{
		SessionID:     req.SessionID,
		Level:         req.Level,
		Language:      req.Language,
		UsedPromptIDs: req.UsedPromptIDs,
		Candidates:    make([]candidate, 0, len(req.Candidates)),
	}
	if body.UsedPromptIDs == nil {
		body.UsedPromptIDs = []string{}
	}
	for _, p := range req.Candidates {
		body.Candidates = append(body.Candidates, candidate{ID: p.ID, Text: p.Text, Category: p.Category})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return prompt.Ranking{}, fmt.Errorf("encode rank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return prompt.Ranking{}, fmt.Errorf("build rank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return prompt.Ranking{}, unavailable("rank request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return prompt.Ranking{}, unavailable("read rank response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return prompt.Ranking{}, unavailable("rank endpoint returned "+resp.Status, nil)
	}
	return parse(raw)
}

// parse reads {prompt_id, rationale, metadata}. Metadata values that are not
// strings keep their raw JSON text.
func parse(raw []byte) (prompt.Ranking, error) {
	if !gjson.ValidBytes(raw) {
		return prompt.Ranking{}, unavailable("rank response is not JSON", nil)
	}
	doc := gjson.ParseBytes(raw)
	id := doc.Get("prompt_id")
	if id.Type != gjson.String || strings.TrimSpace(id.String()) == "" {
		return prompt.Ranking{}, unavailable("rank response has no prompt_id", nil)
	}
	ranking := prompt.Ranking{
		PromptID:  strings.TrimSpace(id.String()),
		Rationale: doc.Get("rationale").String(),
	}
	if md := doc.Get("metadata"); md.IsObject() {
		ranking.Metadata = make(map[string]string)
		md.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				ranking.Metadata[key.String()] = value.String()
			} else {
				ranking.Metadata[key.String()] = value.Raw
			}
			return true
		})
	}
	return ranking, nil
}

func unavailable(msg string, cause error) error {
	if cause == nil {
		return apperrors.New(apperrors.CodeRankingUnavailable, msg)
	}
	return apperrors.Wrap(apperrors.CodeRankingUnavailable, msg, cause)
}
