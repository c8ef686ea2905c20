// Package catalog loads the embedded institution catalog and exposes it
// as a university.Registry. The TOML file is compiled into the binary so
// the bot needs no external data files at runtime.
package catalog

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
)

//go:embed universities.toml
var universitiesTOML []byte

// catalogFile mirrors the on-disk TOML layout.
type catalogFile struct {
	Universities []catalogEntry `toml:"university"`
}

type catalogEntry struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Method string `toml:"method"`
}

// Load decodes the embedded catalog and builds the registry from it.
// Every entry is validated, so a malformed catalog fails at startup
// rather than mid-conversation.
func Load() (*university.Registry, error) {
	return load(universitiesTOML)
}

func load(data []byte) (*university.Registry, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode university catalog: %w", err)
	}
	if len(file.Universities) == 0 {
		return nil, fmt.Errorf("university catalog is empty")
	}

	entries := make([]university.University, 0, len(file.Universities))
	for _, e := range file.Universities {
		entries = append(entries, university.University{
			ID:     university.ParseID(e.ID),
			Name:   e.Name,
			Method: scoring.Method(e.Method),
		})
	}

	registry, err := university.NewRegistry(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build university registry: %w", err)
	}
	return registry, nil
}
