// Package config holds the YAML-tagged session configuration loaded before
// a peer starts its handshake.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiubinzheng/lockstep-core/pkg/handshake"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// NetworkConfig is the tunable set for one session. Lag is quantized to a
// multiple of Updates by Quantized(), never mutated in place.
type NetworkConfig struct {
	NetPlayers int    `yaml:"NetPlayers"`
	Port       uint16 `yaml:"Port"`
	Lag        int32  `yaml:"Lag"`
	Updates    int32  `yaml:"Updates"`
	// InboxWindow overrides the default inbox ring size; zero means use
	// wire.InboxWindow.
	InboxWindow uint32 `yaml:"InboxWindow"`
	// QuitRetransmits is how many times a broadcast Quit packet is sent.
	QuitRetransmits int `yaml:"QuitRetransmits"`
	// PingInterval bounds how often a host should probe liveness outside
	// of the lockstep tick cadence; unused by the core itself, carried
	// through for a host's own connection-health loop.
	PingInterval int `yaml:"PingInterval"`
}

// Default returns the configuration a session runs with when no file is
// supplied.
func Default() NetworkConfig {
	return NetworkConfig{
		NetPlayers:      2,
		Port:            wire.DefaultPort,
		Lag:             10,
		Updates:         5,
		InboxWindow:     wire.InboxWindow,
		QuitRetransmits: 1,
		PingInterval:    30,
	}
}

// Load reads and parses a NetworkConfig from a YAML file at path.
func Load(path string) (NetworkConfig, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return NetworkConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return NetworkConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.NetPlayers < 1 || cfg.NetPlayers > wire.MaxPlayers {
		return NetworkConfig{}, fmt.Errorf("config: NetPlayers=%d out of range [1,%d]", cfg.NetPlayers, wire.MaxPlayers)
	}
	if cfg.Updates <= 0 {
		return NetworkConfig{}, fmt.Errorf("config: Updates must be > 0")
	}
	return cfg, nil
}

// Quantized returns c.Lag rounded down to a multiple of c.Updates, the form
// the handshake places on the wire.
func (c NetworkConfig) Quantized() int32 {
	return handshake.QuantizeLag(c.Lag, c.Updates)
}
