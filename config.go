package reedbase

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds every tunable the orchestrator and its table/index
// layers need, loadable from a TOML file.
type Config struct {
	AutoIndexEnabled   bool   `toml:"auto_index_enabled"`
	AutoIndexThreshold int    `toml:"auto_index_threshold"`
	HashAlgorithm      string `toml:"hash_algorithm"` // "xxh3" or "blake2b"
	WALSyncPolicy      string `toml:"wal_sync_policy"` // "always" (only supported policy today)
	BTreeOrder         int    `toml:"btree_order"`
	SnapshotCacheSize  int    `toml:"snapshot_cache_size"`
}

// DefaultConfig returns the configuration used when Open is called
// without an explicit one.
func DefaultConfig() Config {
	return Config{
		AutoIndexEnabled:   true,
		AutoIndexThreshold: 10,
		HashAlgorithm:      "xxh3",
		WALSyncPolicy:      "always",
		BTreeOrder:         128,
		SnapshotCacheSize:  64,
	}
}

// btreeOrder returns the configured B+-tree order for persistent
// indices, falling back to the default when the configuration carries
// a value the tree would reject.
func (db *Database) btreeOrder() int {
	if db.config.BTreeOrder >= 3 {
		return db.config.BTreeOrder
	}
	return DefaultConfig().BTreeOrder
}

// LoadConfig reads and parses a TOML configuration file, filling in
// DefaultConfig for any field the file doesn't set.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
