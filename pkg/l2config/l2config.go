// Package l2config holds the tunable resource bounds the engine is
// constructed with: MAC table capacity, port bitset width, the
// per-port learning rate limit, and the aging threshold. It is
// intentionally not a persistence layer — loading/saving the running
// configuration (VLAN topology, static MACs, per-port mode) belongs to
// an external config loader, which restores state at startup by
// calling the same administrative API this module exposes.
package l2config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Hard caps the engine will never exceed regardless of configuration.
const (
	MacTableHardCap = 16384
)

// Config is the set of resource bounds consumed once by engine.New.
type Config struct {
	// PortMax bounds the width of every port-membership bitset.
	PortMax int `yaml:"port_max"`

	// MacTableMax bounds the number of (MAC, VLAN) entries the MAC
	// table will hold before upsert fails with ErrTableFull.
	MacTableMax int `yaml:"mac_table_max"`

	// LearnRate is the number of distinct learn events a single port
	// may contribute within a rolling 1-second window.
	LearnRate int `yaml:"learn_rate"`

	// AgingSeconds is the default aging threshold for dynamic MAC
	// entries.
	AgingSeconds int `yaml:"aging_seconds"`
}

// DefaultConfig returns the engine's out-of-the-box resource bounds.
func DefaultConfig() Config {
	return Config{
		PortMax:      64,
		MacTableMax:  8192,
		LearnRate:    100,
		AgingSeconds: 300,
	}
}

// Validate enforces the hard cap and rejects non-positive bounds.
func (c Config) Validate() error {
	if c.PortMax <= 0 {
		return fmt.Errorf("l2config: port_max must be positive, got %d", c.PortMax)
	}
	if c.MacTableMax <= 0 {
		return fmt.Errorf("l2config: mac_table_max must be positive, got %d", c.MacTableMax)
	}
	if c.MacTableMax > MacTableHardCap {
		return fmt.Errorf("l2config: mac_table_max %d exceeds hard cap %d", c.MacTableMax, MacTableHardCap)
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("l2config: learn_rate must be positive, got %d", c.LearnRate)
	}
	if c.AgingSeconds <= 0 {
		return fmt.Errorf("l2config: aging_seconds must be positive, got %d", c.AgingSeconds)
	}
	return nil
}

// LoadYAML parses a Config from YAML bytes, starting from defaults so
// a partial document still produces valid bounds.
func LoadYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("l2config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ToYAML serializes cfg back to YAML, e.g. for the external config
// persister to embed alongside VLAN/static-MAC state.
func (c Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
