package sqlite

import (
	"context"
	"fmt"

	"github.com/louisbranch/duet/internal/services/duet/domain/prompt"
)

// SeedPrompts upserts the prompt inventory.
func (s *Store) SeedPrompts(ctx context.Context, prompts []prompt.Prompt) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return conflictOr(err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO prompts (id, level, language, text, category) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET level = excluded.level, language = excluded.language,
    text = excluded.text, category = excluded.category`)
	if err != nil {
		return fmt.Errorf("prepare prompt upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prompts {
		if _, err := stmt.ExecContext(ctx, p.ID, int64(p.Level), p.Language, p.Text, p.Category); err != nil {
			return conflictOr(err, "upsert prompt %s", p.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return conflictOr(err, "commit")
	}
	return nil
}

// ListPrompts returns the prompts of a level and language ordered by id.
func (s *Store) ListPrompts(ctx context.Context, level int, language string) ([]prompt.Prompt, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, level, language, text, category FROM prompts WHERE level = ? AND language = ? ORDER BY id",
		int64(level), language)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []prompt.Prompt
	for rows.Next() {
		var (
			p  prompt.Prompt
			lv int64
		)
		if err := rows.Scan(&p.ID, &lv, &p.Language, &p.Text, &p.Category); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		p.Level = int(lv)
		out = append(out, p)
	}
	return out, rows.Err()
}
