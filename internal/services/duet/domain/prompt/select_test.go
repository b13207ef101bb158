package prompt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

func inventoryOf(n int) []Prompt {
	out := make([]Prompt, n)
	for i := range out {
		out[i] = Prompt{ID: fmt.Sprintf("p%02d", i+1), Level: 1, Language: "en", Text: "q"}
	}
	return out
}

func TestSelectNeverReturnsUsedPrompt(t *testing.T) {
	inventory := inventoryOf(10)
	for usedCount := 0; usedCount < len(inventory); usedCount++ {
		used := make([]string, 0, usedCount)
		for _, p := range inventory[:usedCount] {
			used = append(used, p.ID)
		}
		for seed := uint64(0); seed < 50; seed++ {
			rankings := []*Ranking{
				nil,
				{PromptID: "p01"},
				{PromptID: "missing"},
				{Err: errors.New("boom")},
			}
			for _, ranking := range rankings {
				choice, err := Select(inventory, used, ranking, seed)
				if err != nil {
					t.Fatalf("select: %v", err)
				}
				if slices.Contains(used, choice.Prompt.ID) {
					t.Fatalf("selected used prompt %s (used %v)", choice.Prompt.ID, used)
				}
			}
		}
	}
}

func TestSelectPrefersValidRanking(t *testing.T) {
	choice, err := Select(inventoryOf(3), []string{"p01"}, &Ranking{PromptID: " p03 ", Rationale: "deeper", Metadata: map[string]string{"model": "m"}}, 1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if choice.Prompt.ID != "p03" || choice.Source != SourceRanked || choice.Rationale != "deeper" || choice.Metadata["model"] != "m" {
		t.Fatalf("choice = %+v", choice)
	}
}

func TestSelectFallbackReasons(t *testing.T) {
	tests := []struct {
		name    string
		ranking *Ranking
		want    string
	}{
		{name: "none", ranking: nil, want: FallbackNoRanking},
		{name: "error", ranking: &Ranking{Err: context.DeadlineExceeded}, want: FallbackRankError},
		{name: "used", ranking: &Ranking{PromptID: "p01"}, want: FallbackAlreadyUsed},
		{name: "unknown", ranking: &Ranking{PromptID: "zzz"}, want: FallbackUnknownID},
		{name: "empty", ranking: &Ranking{}, want: FallbackUnknownID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, err := Select(inventoryOf(3), []string{"p01"}, tt.ranking, 7)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if choice.Source != SourceFallback || choice.Rationale != tt.want {
				t.Fatalf("choice = %+v, want fallback %q", choice, tt.want)
			}
		})
	}
}

func TestSelectFallbackIsDeterministic(t *testing.T) {
	inventory := inventoryOf(20)
	seed := Seed("session-1", 4)
	first, err := Select(inventory, nil, nil, seed)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	// Inventory order must not change the outcome.
	reversed := slices.Clone(inventory)
	slices.Reverse(reversed)
	for i := 0; i < 5; i++ {
		got, err := Select(reversed, nil, nil, seed)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if got.Prompt.ID != first.Prompt.ID {
			t.Fatalf("prompt = %s, want %s", got.Prompt.ID, first.Prompt.ID)
		}
	}
	if Seed("session-1", 4) == Seed("session-1", 5) {
		t.Fatal("seed should vary by round")
	}
}

func TestSelectExhausted(t *testing.T) {
	_, err := Select(inventoryOf(2), []string{"p01", "p02"}, &Ranking{PromptID: "p01"}, 1)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if _, err := Select(nil, nil, nil, 1); !errors.Is(err, ErrExhausted) {
		t.Fatalf("empty inventory err = %v, want ErrExhausted", err)
	}
}

type fakeInventory map[string][]Prompt

func (f fakeInventory) ListPrompts(_ context.Context, level int, language string) ([]Prompt, error) {
	var out []Prompt
	for _, p := range f[language] {
		if p.Level == level {
			out = append(out, p)
		}
	}
	return out, nil
}

type rankerFunc func(ctx context.Context, req RankRequest) (Ranking, error)

func (f rankerFunc) Rank(ctx context.Context, req RankRequest) (Ranking, error) { return f(ctx, req) }

func TestSelectorUsesRanker(t *testing.T) {
	var gotReq RankRequest
	sel := NewSelector(fakeInventory{"en": inventoryOf(3)}, rankerFunc(func(_ context.Context, req RankRequest) (Ranking, error) {
		gotReq = req
		return Ranking{PromptID: "p02", Rationale: "r"}, nil
	}), nil)
	choice, err := sel.Next(context.Background(), Request{SessionID: "s", Round: 2, Level: 1, Language: "en", Used: []string{"p01"}})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if choice.Prompt.ID != "p02" || choice.Source != SourceRanked {
		t.Fatalf("choice = %+v", choice)
	}
	if len(gotReq.Candidates) != 2 || gotReq.SessionID != "s" {
		t.Fatalf("rank request = %+v", gotReq)
	}
}

func TestSelectorFallsBackOnTimeout(t *testing.T) {
	sel := NewSelector(fakeInventory{"en": inventoryOf(3)}, rankerFunc(func(ctx context.Context, _ RankRequest) (Ranking, error) {
		<-ctx.Done()
		return Ranking{}, ctx.Err()
	}), nil)
	sel.Timeout = 20 * time.Millisecond

	start := time.Now()
	choice, err := sel.Next(context.Background(), Request{SessionID: "s", Round: 1, Level: 1, Language: "en"})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if choice.Source != SourceFallback || choice.Rationale != FallbackRankError {
		t.Fatalf("choice = %+v", choice)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fallback took %v", elapsed)
	}
}

func TestSelectorFallsBackToDefaultLanguage(t *testing.T) {
	sel := NewSelector(fakeInventory{"en": inventoryOf(1)}, nil, nil)
	choice, err := sel.Next(context.Background(), Request{SessionID: "s", Round: 1, Level: 1, Language: "fr"})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if choice.Prompt.ID != "p01" || choice.Rationale != FallbackNoRanking {
		t.Fatalf("choice = %+v", choice)
	}
}

func TestSelectorExhausted(t *testing.T) {
	called := false
	sel := NewSelector(fakeInventory{"en": inventoryOf(1)}, rankerFunc(func(context.Context, RankRequest) (Ranking, error) {
		called = true
		return Ranking{}, nil
	}), nil)
	_, err := sel.Next(context.Background(), Request{SessionID: "s", Round: 2, Level: 1, Language: "en", Used: []string{"p01"}})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if called {
		t.Fatal("ranker should not be called when nothing remains")
	}
}
