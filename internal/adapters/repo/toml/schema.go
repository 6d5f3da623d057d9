package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int            `toml:"version"`
	SavedAt string         `toml:"saved_at"`
	Windows []windowSchema `toml:"windows"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type windowSchema struct {
	ID      int64       `toml:"id"`
	Movable bool        `toml:"movable"`
	Tabs    []tabSchema `toml:"tabs"`
}

type tabSchema struct {
	ID    int64  `toml:"id"`
	Order string `toml:"order"`
}
