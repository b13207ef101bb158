package ranking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
)

func testRequest() prompt.RankRequest {
	return prompt.RankRequest{
		SessionID: "s1",
		Level:     2,
		Language:  "en",
		Candidates: []prompt.Prompt{
			{ID: "en-l2-01", Level: 2, Language: "en", Text: "What do you miss?", Category: "memory"},
			{ID: "en-l2-02", Level: 2, Language: "en", Text: "What scares you?"},
		},
	}
}

func TestRankSendsCandidatesAndParsesChoice(t *testing.T) {
	var got rankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prompt_id":"en-l2-02","rationale":"deeper","metadata":{"model":"r1","score":0.9}}`))
	}))
	defer srv.Close()

	ranking, err := New(srv.URL, "secret", srv.Client()).Rank(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	want := prompt.Ranking{
		PromptID:  "en-l2-02",
		Rationale: "deeper",
		Metadata:  map[string]string{"model": "r1", "score": "0.9"},
	}
	if diff := cmp.Diff(want, ranking); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}
	wantReq := rankRequest{
		SessionID:     "s1",
		Level:         2,
		Language:      "en",
		UsedPromptIDs: []string{},
		Candidates: []candidate{
			{ID: "en-l2-01", Text: "What do you miss?", Category: "memory"},
			{ID: "en-l2-02", Text: "What scares you?"},
		},
	}
	if diff := cmp.Diff(wantReq, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestRankFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"prompt_id":"x"}`},
		{"not json", http.StatusOK, `prompt please`},
		{"missing id", http.StatusOK, `{"rationale":"none"}`},
		{"numeric id", http.StatusOK, `{"prompt_id":42}`},
		{"blank id", http.StatusOK, `{"prompt_id":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", srv.Client()).Rank(context.Background(), testRequest())
			if got := apperrors.CodeOf(err); got != apperrors.CodeRankingUnavailable {
				t.Fatalf("code = %s (%v), want %s", got, err, apperrors.CodeRankingUnavailable)
			}
		})
	}
}

func TestRankHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := New(srv.URL, "", srv.Client()).Rank(ctx, testRequest())
	if err == nil {
		t.Fatal("rank succeeded past its deadline")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("rank took %v, want it bounded by the context", elapsed)
	}
}
