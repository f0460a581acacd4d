// Package config holds the engine's constructor-time tunables (spec §6's
// "configured at construction" parameters) as a single struct, loadable
// from TOML the way the teacher's own node configuration is.
package config

import (
	"os"

	"github.com/naoina/toml"
)

// ReservedSuffixA and ReservedSuffixB are the low two bytes of the two
// consensus-reserved system addresses from spec §6/§4.3.5 that participate
// in storage commits even when is_null().
const (
	ReservedSuffixA = 0x0100
	ReservedSuffixB = 0x0200
)

// Config collects every tunable the spec otherwise leaves as a bare
// constructor parameter.
type Config struct {
	// AccountStartNonce is the default nonce for newly discovered FVM and
	// AVM accounts and the value returned for absent accounts (spec §6).
	AccountStartNonce uint64 `toml:"account_start_nonce"`

	// StorageCacheCapacity bounds each per-account storage_cache sub-map
	// (spec §3.3: evicts LRU beyond this many entries).
	StorageCacheCapacity int `toml:"storage_cache_capacity"`

	// CodeSizeCacheCapacity bounds the shared code-hash -> size cache.
	CodeSizeCacheCapacity int `toml:"code_size_cache_capacity"`

	// GlobalCodeCacheBytes bounds the process-wide code-bytes cache
	// (fastcache is sized in bytes, not entry count).
	GlobalCodeCacheBytes int `toml:"global_code_cache_bytes"`

	// DBPath is the on-disk LevelDB directory; empty means "use the
	// in-memory store" (tests, ephemeral nodes).
	DBPath string `toml:"db_path"`
}

// Default returns the engine's out-of-the-box tunables.
func Default() Config {
	return Config{
		AccountStartNonce:     0,
		StorageCacheCapacity:  8192,
		CodeSizeCacheCapacity: 100_000,
		GlobalCodeCacheBytes:  64 * 1024 * 1024,
		DBPath:                "",
	}
}

// Load reads a TOML configuration file, seeding defaults for any field the
// file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
