package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":3318", cfg.Server.Addr)
	assert.Equal(t, 1, cfg.Auth.TokenHours)
	assert.Equal(t, "/auth", cfg.Auth.LoginPath)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")
	contents := `
server:
  addr: ":9000"
auth:
  token_hours: 4
  users_file: "users.json"
mounts:
  - namespace: "child"
    addr: "localhost:4000"
schemas:
  double.me: "schemas/double.json"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Auth.TokenHours)
	assert.Equal(t, "users.json", cfg.Auth.UsersFile)
	require.Len(t, cfg.Mounts, 1)
	assert.Equal(t, "child", cfg.Mounts[0].Namespace)
	assert.Equal(t, "schemas/double.json", cfg.Schemas["double.me"])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o644))
	t.Setenv("ENTANGLD_SERVER_ADDR", ":7000")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}
