package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
)

func TestFetchActionsPagesUntilDrained(t *testing.T) {
	const total = 250
	var requests int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var page []action.Action
		for seq := after + 1; seq <= total && len(page) < limit; seq++ {
			page = append(page, action.Action{SessionID: r.PathValue("id"), Seq: seq, Type: action.TypePromptAnswered})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"actions": page})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTP(srv.URL+"/", "s1", "tok", srv.Client())
	actions, err := c.FetchActions(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch actions: %v", err)
	}
	if len(actions) != total-10 {
		t.Fatalf("actions = %d, want %d", len(actions), total-10)
	}
	if actions[0].Seq != 11 || actions[len(actions)-1].Seq != total {
		t.Fatalf("seq range = %d..%d", actions[0].Seq, actions[len(actions)-1].Seq)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
}

func TestErrorBodyKeepsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"SESSION_ALREADY_FINISHED","message":"The session has already finished."}}`))
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, "s1", "tok", nil).Ping(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeSessionAlreadyFinished) {
		t.Fatalf("ping error = %v, want SESSION_ALREADY_FINISHED", err)
	}
}

func TestErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "s1", "tok", nil).FetchState(context.Background())
	if err == nil || apperrors.CodeOf(err) != apperrors.CodeUnknown {
		t.Fatalf("fetch state error = %v", err)
	}
}
