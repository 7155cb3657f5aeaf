package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"self_address": "127.0.0.1:8080",
		"hb_address": "127.0.0.1:9090",
		"database": "/tmp/node1",
		"ttl_seconds": 30,
		"bootstrap_primary": true,
		"peers": [{"id": "node2", "host": "127.0.0.1", "biz_port": 8081, "hb_port": 9091}]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", cfg.SelfAddress)
	require.Equal(t, 30.0, cfg.TTLSeconds)
	require.Equal(t, defaultGCIntervalSeconds, cfg.GCIntervalSecs)
	require.True(t, cfg.BootstrapPrimary)
	require.Len(t, cfg.Peers, 1)
	require.Equal(t, "node2", cfg.Peers[0].ID)
	require.Equal(t, 8081, cfg.Peers[0].BizPort)
}

// No implicit TTL default: an operator must set ttl_seconds explicitly.
func TestLoadMissingTTLFails(t *testing.T) {
	path := writeConfig(t, `{
		"self_address": "127.0.0.1:8080",
		"hb_address": "127.0.0.1:9090",
		"database": "/tmp/node1"
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingAddressFails(t *testing.T) {
	path := writeConfig(t, `{
		"hb_address": "127.0.0.1:9090",
		"database": "/tmp/node1",
		"ttl_seconds": 30
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadExplicitGCInterval(t *testing.T) {
	path := writeConfig(t, `{
		"self_address": "127.0.0.1:8080",
		"hb_address": "127.0.0.1:9090",
		"database": "/tmp/node1",
		"ttl_seconds": 30,
		"gc_interval_seconds": 2.5
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.GCIntervalSecs)
}
