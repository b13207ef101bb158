package report

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
	"github.com/louisbranch/duet/internal/services/duet/procedures"
	"github.com/louisbranch/duet/internal/services/duet/storage/sqlite"
)

// seedSession plays a session into a fresh database and returns its path and
// id. With finish false the session stops after the level vote.
func seedSession(t *testing.T, finish bool) (string, string) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "duet.db")
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	catalog, err := prompt.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if err := store.SeedPrompts(ctx, catalog); err != nil {
		t.Fatalf("seed prompts: %v", err)
	}
	svc := procedures.New(store, prompt.NewSelector(store, nil, nil))

	a, err := svc.CreateAndJoin(ctx, procedures.CreateRequest{DisplayName: "Ana", Language: "en", TargetRounds: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := svc.JoinByCode(ctx, procedures.JoinRequest{JoinCode: a.JoinCode, DisplayName: "Bo"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, id := range []string{a.ParticipantID, b.ParticipantID} {
		if _, err := svc.CastVote(ctx, procedures.VoteRequest{SessionID: a.SessionID, ParticipantID: id, Round: 1, Level: 1}); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if !finish {
		return path, a.SessionID
	}

	state, err := store.LoadSession(ctx, a.SessionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	state, err = svc.SubmitResponse(ctx, procedures.SubmitRequest{
		SessionID: a.SessionID, ParticipantID: state.TurnHolderID, Round: 1,
		Answer: "a long honest answer", Elapsed: 20 * time.Second,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Evaluate(ctx, procedures.EvaluateRequest{
		SessionID: a.SessionID, ParticipantID: state.TurnHolderID, ResponseID: state.ResponseID, Round: 1,
		Honesty: 5, Attraction: 4, Intimacy: 4, Surprise: 3,
	}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return path, a.SessionID
}

func TestRunPrintsVerifiedReport(t *testing.T) {
	path, sessionID := seedSession(t, true)

	var out bytes.Buffer
	if err := Run(context.Background(), Config{SessionID: sessionID, DBPath: path, JSONOutput: true}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var got Output
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if got.Report.Rounds != 1 || got.Report.FinishReason != action.FinishTargetReached {
		t.Fatalf("report = %d rounds, finish %q", got.Report.Rounds, got.Report.FinishReason)
	}
	if got.Actions == 0 || uint64(got.Actions) != got.LastSeq {
		t.Fatalf("actions = %d, last seq = %d", got.Actions, got.LastSeq)
	}
	if got.Report.Scores.EvaluatedCount != 1 {
		t.Fatalf("evaluated count = %d, want 1", got.Report.Scores.EvaluatedCount)
	}

	out.Reset()
	if err := Run(context.Background(), Config{SessionID: sessionID, DBPath: path}, &out); err != nil {
		t.Fatalf("run text: %v", err)
	}
	if !strings.Contains(out.String(), "actions verified") || !strings.Contains(out.String(), "Ana, Bo") {
		t.Fatalf("text output = %q", out.String())
	}
}

func TestRunRefusesUnfinishedSession(t *testing.T) {
	path, sessionID := seedSession(t, false)

	err := Run(context.Background(), Config{SessionID: sessionID, DBPath: path}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "allow-unfinished") {
		t.Fatalf("run = %v, want unfinished error", err)
	}
	if err := Run(context.Background(), Config{SessionID: sessionID, DBPath: path, AllowUnfinished: true}, io.Discard); err != nil {
		t.Fatalf("run allow unfinished: %v", err)
	}
}

func TestParseConfigRequiresSession(t *testing.T) {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected error without -session-id")
	}
	fs = flag.NewFlagSet("report", flag.ContinueOnError)
	t.Setenv("DUET_DB_PATH", "/tmp/x.db")
	cfg, err := ParseConfig(fs, []string{"-session-id", "s1", "-json"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" || !cfg.JSONOutput || cfg.SessionID != "s1" {
		t.Fatalf("config = %+v", cfg)
	}
}
