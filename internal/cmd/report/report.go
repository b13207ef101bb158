// Package report recomputes the end-of-session report of a stored session
// after checking its action chain.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/duet/internal/platform/cmd"
	"github.com/louisbranch/duet/internal/services/duet/domain/action"
	duetreport "github.com/louisbranch/duet/internal/services/duet/domain/report"
	"github.com/louisbranch/duet/internal/services/duet/domain/session"
	"github.com/louisbranch/duet/internal/services/duet/storage/sqlite"
)

const actionPageSize = 500

// Config holds report command configuration.
type Config struct {
	SessionID       string
	DBPath          string        `env:"DUET_DB_PATH" envDefault:"data/duet.db"`
	Timeout         time.Duration `env:"DUET_REPORT_TIMEOUT" envDefault:"1m"`
	AllowUnfinished bool
	JSONOutput      bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.SessionID, "session-id", "", "session to report on")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the duet sqlite database")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.BoolVar(&cfg.AllowUnfinished, "allow-unfinished", false, "report on a session that has not finished")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.SessionID) == "" {
		return Config{}, errors.New("-session-id is required")
	}
	return cfg, nil
}

// Output is the JSON document printed with -json.
type Output struct {
	Report  duetreport.Report `json:"report"`
	Actions int               `json:"actions"`
	LastSeq uint64            `json:"last_seq"`
}

// Run verifies the session's action chain and prints its report.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	state, err := store.LoadSession(ctx, cfg.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", cfg.SessionID, err)
	}
	if state.Status != session.StatusFinished && !cfg.AllowUnfinished {
		return fmt.Errorf("session %s is %s; pass -allow-unfinished to report anyway", state.ID, state.Status)
	}

	var actions []action.Action
	for after := uint64(0); ; {
		page, err := store.ListActions(ctx, cfg.SessionID, after, actionPageSize)
		if err != nil {
			return fmt.Errorf("list actions: %w", err)
		}
		actions = append(actions, page...)
		if len(page) < actionPageSize {
			break
		}
		after = page[len(page)-1].Seq
	}
	if err := action.VerifyChain(actions); err != nil {
		return err
	}
	if n := len(actions); n > 0 && actions[n-1].Seq != state.LastSeq {
		return fmt.Errorf("session %s last seq %d does not match log head %d", state.ID, state.LastSeq, actions[n-1].Seq)
	}

	responses, err := store.ListResponses(ctx, cfg.SessionID)
	if err != nil {
		return fmt.Errorf("list responses: %w", err)
	}
	r := duetreport.Build(state, responses)

	if cfg.JSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(Output{Report: r, Actions: len(actions), LastSeq: state.LastSeq})
	}
	fmt.Fprintf(out, "session %s (%s, level %d): %d rounds, %s\n", r.SessionID, r.Language, r.Level, r.Rounds, orDash(r.FinishReason))
	fmt.Fprintf(out, "participants: %s\n", strings.Join(r.Participants, ", "))
	fmt.Fprintf(out, "action chain: %d actions verified\n", len(actions))
	fmt.Fprintf(out, "overall %.2f (%s), sync %.0f%%\n", r.Scores.Overall, r.Scores.Feeling, r.Scores.EmotionalSyncPercent)
	fmt.Fprintf(out, "connection %.2f, attraction %.2f, intimacy %.2f, curiosity %.2f\n",
		r.Scores.EmotionalConnection, r.Scores.Attraction, r.Scores.Intimacy, r.Scores.MutualCuriosity)
	fmt.Fprintf(out, "trend %s, stability %.2f, breakthroughs %d\n", r.Psych.Trend.Direction, r.Psych.Stability, len(r.Psych.Breakthroughs))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
