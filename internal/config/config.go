// Package config loads cluster and node configuration: viper binds a
// YAML file and environment overrides to a typed struct.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mathdee/raftcore/internal/raft"
)

// Config is the fully resolved configuration for one node.
type Config struct {
	NodeURIs          []string      `mapstructure:"node_uris"`
	HeartbeatPeriod   time.Duration `mapstructure:"heartbeat_period"`
	LeaderLostTimeout time.Duration `mapstructure:"leader_lost_timeout"`
	ElectionMin       time.Duration `mapstructure:"election_timeout_min"`
	ElectionMax       time.Duration `mapstructure:"election_timeout_max"`
	URI               string        `mapstructure:"uri"`
	WorkingDir        string        `mapstructure:"working_dir"`
	BindAddr          string        `mapstructure:"bind_addr"`
	HTTPAddr          string        `mapstructure:"http_addr"`
	LogLevel          string        `mapstructure:"log_level"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("heartbeat_period", 50*time.Millisecond)
	v.SetDefault("leader_lost_timeout", 200*time.Millisecond)
	v.SetDefault("election_timeout_min", 250*time.Millisecond)
	v.SetDefault("election_timeout_max", 400*time.Millisecond)
	v.SetDefault("working_dir", ".")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
}

// Load reads configFile (if non-empty) and environment overrides
// prefixed RAFTCORE_, producing a validated Config.
func Load(configFile string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("raftcore")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if cfg.URI == "" {
		return Config{}, fmt.Errorf("config: uri is required")
	}
	if len(cfg.NodeURIs) == 0 {
		return Config{}, fmt.Errorf("config: node_uris must name at least one node")
	}
	return cfg, nil
}

// ClusterConfig projects the subset raft.ClusterConfig needs.
func (c Config) ClusterConfig() raft.ClusterConfig {
	uris := make([]raft.NodeId, len(c.NodeURIs))
	for i, u := range c.NodeURIs {
		uris[i] = raft.NodeId(u)
	}
	return raft.ClusterConfig{
		NodeURIs:           uris,
		HeartbeatPeriod:    c.HeartbeatPeriod,
		LeaderLostTimeout:  c.LeaderLostTimeout,
		ElectionTimeoutMin: c.ElectionMin,
		ElectionTimeoutMax: c.ElectionMax,
	}
}

// LocalConfig projects the subset raft.LocalConfig needs.
func (c Config) LocalConfig() raft.LocalConfig {
	return raft.LocalConfig{URI: raft.NodeId(c.URI), WorkingDir: c.WorkingDir}
}

// PeerAddrs builds the NodeId -> dial address map internal/transport's
// TCPPilot needs, assuming each node_uri is itself a dialable
// "host:port" address (the simplest of several valid conventions;
// a deployment using opaque URIs would instead resolve through
// service discovery, out of scope here).
func (c Config) PeerAddrs() map[raft.NodeId]string {
	out := make(map[raft.NodeId]string, len(c.NodeURIs))
	for _, u := range c.NodeURIs {
		out[raft.NodeId(u)] = u
	}
	return out
}
