package migrations

import (
	"io/fs"
	"sort"
	"testing"
)

func TestDuetMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(DuetFS, "duet")
	if err != nil {
		t.Fatalf("read duet migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected duet migrations to be embedded")
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if files[0] != "001_duet.sql" {
		t.Fatalf("expected first duet migration 001_duet.sql, got %s", files[0])
	}
}
