package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
)

// catalogEntry is the on-disk shape of one item.
type catalogEntry struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Icon        string            `json:"icon"`
	Effect      engine.EffectKind `json:"effect"`
	DurationMS  int               `json:"duration_ms"`
	Factor      float64           `json:"factor"`
	Reusable    bool              `json:"reusable"`
}

// LoadCatalog reads the item catalog. An empty path selects the built-in one.
func LoadCatalog(path string) (engine.Catalog, error) {
	if path == "" {
		return engine.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (engine.Catalog, error) {
	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	cat := make(engine.Catalog, 0, len(entries))
	for _, e := range entries {
		cat = append(cat, engine.Item{
			ID:       e.ID,
			Display:  engine.DisplayMeta{Name: e.Name, Description: e.Description, Icon: e.Icon},
			Effect:   e.Effect,
			Duration: time.Duration(e.DurationMS) * time.Millisecond,
			Factor:   e.Factor,
			Reusable: e.Reusable,
		})
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}
