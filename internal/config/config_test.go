package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
uri: "node-a"
node_uris: ["node-a", "node-b", "node-c"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "node-a", cfg.URI)
	require.Len(t, cfg.NodeURIs, 3)
	require.Equal(t, "info", cfg.LogLevel)
	require.NotZero(t, cfg.HeartbeatPeriod)
}

func TestLoadRequiresURI(t *testing.T) {
	path := writeTempConfig(t, `
node_uris: ["node-a"]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresNodeURIs(t *testing.T) {
	path := writeTempConfig(t, `
uri: "node-a"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestClusterConfigProjection(t *testing.T) {
	path := writeTempConfig(t, `
uri: "node-a"
node_uris: ["node-a", "node-b"]
heartbeat_period: 10ms
leader_lost_timeout: 40ms
election_timeout_min: 50ms
election_timeout_max: 90ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cluster := cfg.ClusterConfig()
	require.NoError(t, cluster.Validate())
	require.Len(t, cluster.NodeURIs, 2)
}
