// Package assets persists pre-built review assets, currently the repository
// map consumed by the fetch_repo_map tool. Two backends are provided: bbolt
// for the default single-file cache and sqlite for shared setups.
package assets

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reviewloop/reviewloop/internal/config"
)

// ErrNotFound is returned when an asset does not exist
var ErrNotFound = errors.New("asset not found")

// Store persists assets by (kind, key)
type Store interface {
	Load(kind, key string) ([]byte, error)
	Save(kind, key string, data []byte) error
	Exists(kind, key string) (bool, error)
	Close() error
}

// KindRepoMap is the asset kind for repository maps
const KindRepoMap = "repo_map"

// Open creates the configured store backend
func Open(cfg config.AssetsConfig) (Store, error) {
	switch cfg.Backend {
	case "bbolt":
		return OpenBolt(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown assets backend %q", cfg.Backend)
	}
}

// LoadJSON loads an asset and decodes it into out
func LoadJSON(s Store, kind, key string, out any) error {
	data, err := s.Load(kind, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode asset %s/%s: %w", kind, key, err)
	}
	return nil
}

// SaveJSON encodes v and saves it as an asset
func SaveJSON(s Store, kind, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode asset %s/%s: %w", kind, key, err)
	}
	return s.Save(kind, key, data)
}
