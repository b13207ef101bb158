package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed data/prompts.v1.json
var catalogJSON []byte

var (
	loadCatalogOnce sync.Once
	embeddedCatalog []Prompt
	catalogErr      error
)

type catalogDocument struct {
	Version int      `json:"version"`
	Prompts []Prompt `json:"prompts"`
}

// DefaultCatalog returns the embedded prompt inventory used to seed storage.
func DefaultCatalog() ([]Prompt, error) {
	loadCatalogOnce.Do(func() {
		var doc catalogDocument
		if err := json.Unmarshal(catalogJSON, &doc); err != nil {
			catalogErr = fmt.Errorf("decode prompt catalog: %w", err)
			return
		}
		seen := make(map[string]struct{}, len(doc.Prompts))
		for _, p := range doc.Prompts {
			if p.ID == "" || p.Text == "" || p.Language == "" {
				catalogErr = fmt.Errorf("prompt catalog entry %q is incomplete", p.ID)
				return
			}
			if _, ok := seen[p.ID]; ok {
				catalogErr = fmt.Errorf("prompt catalog id %q is duplicated", p.ID)
				return
			}
			seen[p.ID] = struct{}{}
		}
		embeddedCatalog = doc.Prompts
	})
	if catalogErr != nil {
		return nil, catalogErr
	}
	out := make([]Prompt, len(embeddedCatalog))
	copy(out, embeddedCatalog)
	return out, nil
}
