package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config describes a replay run: an ordered list of binlog files (as
// produced by a rotating mysqld, oldest first) plus output tuning.
type Config struct {
	Files []FileConfig `toml:"file"`

	// Gzip marks every listed file as gzip-compressed, read via OpenGzip
	// instead of Open. Each file's Offset is then ignored and replay starts
	// at the beginning of the file.
	Gzip bool `toml:"gzip"`

	// TableMapTTL is how many events a table's map stays cached after that
	// table's most recent Table Map Event; 0 means no eviction. See
	// binlog.WithTableMapTTL.
	TableMapTTL int `toml:"table_map_ttl"`
}

// FileConfig names one binlog file and, for the first file in a resumed
// run, the offset to start from.
type FileConfig struct {
	Path   string `toml:"path"`
	Offset int64  `toml:"offset"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("binlogcat: load config %s: %w", path, err)
	}
	if len(cfg.Files) == 0 {
		return nil, fmt.Errorf("binlogcat: config %s lists no files", path)
	}
	return &cfg, nil
}
