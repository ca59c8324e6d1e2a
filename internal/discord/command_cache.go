package discord

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// hashCache remembers, per guild, the hash of every command last pushed to
// Discord so unchanged definitions are not re-registered on each start.
type hashCache struct {
	dir string
}

func (c hashCache) path(guildID string) string {
	return filepath.Join(c.dir, guildID+".json")
}

// load returns the cached hashes; a missing or corrupt file is an empty cache.
func (c hashCache) load(guildID string) map[string]string {
	out := make(map[string]string)
	if data, err := os.ReadFile(c.path(guildID)); err == nil {
		_ = json.Unmarshal(data, &out)
	}
	return out
}

func (c hashCache) save(guildID string, hashes map[string]string) error {
	path := c.path(guildID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create command cache dir: %w", err)
	}
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("encode command cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write command cache: %w", err)
	}
	return nil
}
