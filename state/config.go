package state

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the top-level node configuration, loaded from a single
// YAML file.
type Config struct {
	NodeId NodeId               `yaml:"node_id"`
	Areas  map[Area]*AreaConfig `yaml:"areas"`
	Log    LogConfig            `yaml:"log"`
}

// AreaConfig configures one KvStore area plus its LinkState/SPF
// behavior.
type AreaConfig struct {
	// Peers is the statically configured peer set for this area.
	Peers map[NodeId]PeerSpec `yaml:"peers"`

	KvStore  KvStoreConfig  `yaml:"kvstore"`
	Decision DecisionConfig `yaml:"decision"`
}

// KvStoreConfig holds the flood-rate, TTL, and transport knobs for one
// area's KvStoreDb.
type KvStoreConfig struct {
	// FloodRatePps is the maximum number of flood publications sent
	// per second to any single peer. Zero disables rate limiting.
	FloodRatePps float64 `yaml:"flood_rate_pps"`
	// FloodRateBurst is the token-bucket burst size.
	FloodRateBurst int `yaml:"flood_rate_burst"`
	// DefaultTtlMs is applied to keys set without an explicit TTL.
	DefaultTtlMs int64 `yaml:"default_ttl_ms"`
	// TtlDecrementMs is subtracted from a value's TTL on every
	// merge-and-reflood hop, guaranteeing TTL strictly decreases as a
	// value propagates (spec.md §4.1 step 4, §6).
	TtlDecrementMs int64 `yaml:"ttl_decrement_ms"`
	// SyncInterval is how often a full sync is attempted against any
	// peer not yet INITIALIZED.
	SyncInterval time.Duration `yaml:"sync_interval"`
	// SelfOriginatedKeyBackoff is the min/max of each self-originated
	// key's KeyBackoff. KvStoreDb advertises a self-originated change
	// within the same call that makes it; the backoff never holds one
	// back, since KvStoreDb reports no advertisement errors to it.
	SelfOriginatedKeyBackoffMin time.Duration `yaml:"self_originated_key_backoff_min"`
	SelfOriginatedKeyBackoffMax time.Duration `yaml:"self_originated_key_backoff_max"`
	// EnableWireCompression toggles zstd compression of the simulated
	// wire payload.
	EnableWireCompression bool `yaml:"enable_wire_compression"`
	// KeyPrefixFilters restricts which keys this area's KvStoreDb will
	// accept/flood; empty means accept all.
	KeyPrefixFilters []string `yaml:"key_prefix_filters"`
}

// DecisionConfig holds the SPF/UCMP/KSP2 knobs for one area's
// decision.Decision engine.
type DecisionConfig struct {
	// EnableKsp2EdDisjoint is not read by SpfSolver: it computes
	// 2-shortest-edge-disjoint paths for every prefix whose
	// ForwardingAlgorithm requests it, whatever this is set to.
	EnableKsp2EdDisjoint bool `yaml:"enable_ksp2_ed_disjoint"`
	// EnableUcmp turns on unequal-cost multipath weight resolution.
	EnableUcmp bool `yaml:"enable_ucmp"`
	// UcmpUseRttWeights selects AWP (adaptive, RTT-derived) weighting
	// over PWP (preconfigured) weighting when both are available.
	UcmpUseRttWeights bool `yaml:"ucmp_use_rtt_weights"`
	// HoldTime is not read by LinkState or SpfSolver: holds are always
	// armed with a zero TTL, so a withdrawal takes effect at once.
	HoldTime time.Duration `yaml:"hold_time"`
}

// LogConfig configures the slog console+file fanout.
type LogConfig struct {
	Level   string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// DefaultKvStoreConfig returns the knob values used when a config
// omits the kvstore section.
func DefaultKvStoreConfig() KvStoreConfig {
	return KvStoreConfig{
		FloodRatePps:                1000,
		FloodRateBurst:              1000,
		DefaultTtlMs:                int64((5 * time.Minute) / time.Millisecond),
		TtlDecrementMs:              1,
		SyncInterval:                60 * time.Second,
		SelfOriginatedKeyBackoffMin: 100 * time.Millisecond,
		SelfOriginatedKeyBackoffMax: 5 * time.Second,
		EnableWireCompression:       true,
	}
}

// LoadConfig reads and validates a Config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that the YAML decoder cannot express.
func (c *Config) Validate() error {
	if c.NodeId == "" {
		return fmt.Errorf("config: node_id must be set")
	}
	if len(c.Areas) == 0 {
		return fmt.Errorf("config: at least one area must be configured")
	}
	for area, ac := range c.Areas {
		if ac.KvStore.FloodRatePps < 0 {
			return fmt.Errorf("config: area %s: flood_rate_pps must be >= 0", area)
		}
		if ac.KvStore.TtlDecrementMs < 0 {
			return fmt.Errorf("config: area %s: ttl_decrement_ms must be >= 0", area)
		}
	}
	return nil
}

// GetArea panics if the area is not configured, matching the
// teacher's own fail-fast style for config-invariant violations.
func (c *Config) GetArea(area Area) *AreaConfig {
	ac, ok := c.Areas[area]
	if !ok {
		panic(fmt.Sprintf("state: area %q is not configured", area))
	}
	return ac
}
