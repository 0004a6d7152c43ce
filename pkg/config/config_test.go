package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadAppliesDefaultsWithNoFiles(t *testing.T) {
	cfg, err := Load("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.BasePort)
}

func TestLoadMergesBaseFile(t *testing.T) {
	base := writeTemp(t, "dataDir: /var/worldgs\nlogLevel: debug\nbasePort: 9100\n")
	cfg, err := Load(base, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/worldgs", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9100, cfg.BasePort)
}

func TestLoadLocalOverridesBase(t *testing.T) {
	base := writeTemp(t, "dataDir: /var/worldgs\nlogLevel: debug\n")
	local := writeTemp(t, "logLevel: warn\n")
	cfg, err := Load(base, local, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/worldgs", cfg.DataDir)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadEnvOverridesFiles(t *testing.T) {
	base := writeTemp(t, "logLevel: debug\n")
	os.Setenv("WORLDGS_LOG_LEVEL", "error")
	defer os.Unsetenv("WORLDGS_LOG_LEVEL")

	cfg, err := Load(base, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadEnvOverridesFlags(t *testing.T) {
	os.Setenv("WORLDGS_LOG_LEVEL", "error")
	defer os.Unsetenv("WORLDGS_LOG_LEVEL")

	cmd := &cobra.Command{Use: "worker"}
	BindFlags(cmd)
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))

	cfg, err := Load("", "", cmd)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestDerivePeersFlattensHostsInPortOrder(t *testing.T) {
	hosts := map[string]HostSpec{
		"alpha": {Host: "10.0.0.1", Ports: []int{9201, 9200}},
		"beta":  {Host: "10.0.0.2", Ports: []int{9300}},
	}
	peers := derivePeers(hosts, 9000)

	assert.Equal(t, PeerAddr{Host: "10.0.0.1", Port: 9200}, peers["alpha-00"])
	assert.Equal(t, PeerAddr{Host: "10.0.0.1", Port: 9201}, peers["alpha-01"])
	assert.Equal(t, PeerAddr{Host: "10.0.0.2", Port: 9300}, peers["beta-00"])
}

func TestIsLocalHostRecognizesLoopback(t *testing.T) {
	local, err := IsLocalHost("localhost")
	require.NoError(t, err)
	assert.True(t, local)

	local, err = IsLocalHost("203.0.113.5")
	require.NoError(t, err)
	assert.False(t, local)
}
