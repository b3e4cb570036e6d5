package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// PeerConfig is one entry of the address book: the dial address of a
// counterpart identity this node may negotiate agreements with.
type PeerConfig struct {
	Address string
	TLS     bool
}

// Config is the on-disk daemon configuration, TOML-encoded the way the
// teacher's proposal files are.
type Config struct {
	DataDir        string
	GRPCAddress    string
	MetricsAddress string
	Peers          map[string]PeerConfig
}

// LoadConfig decodes path into a Config, following the same
// toml.DecodeFile-and-populate-a-plain-struct idiom used throughout the
// teacher repo for its own TOML-encoded inputs.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return &cfg, nil
}
