package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir(), "rotaplan")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	body := "node_limit: 50000\nsolve_timeout: 5s\nworkers: 3\ndb_path: /tmp/x.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rotaplan.yaml"), []byte(body), 0o644))

	cfg, err := Load(dir, "rotaplan")
	require.NoError(t, err)
	assert.Equal(t, uint64(50000), cfg.NodeLimit)
	assert.Equal(t, 5*time.Second, cfg.SolveTimeout)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().NatsURL, cfg.NatsURL)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rotaplan.yaml"), []byte("workers: 3\n"), 0o644))
	t.Setenv("ROTAPLAN_WORKERS", "8")
	t.Setenv("ROTAPLAN_DEBUG", "true")

	cfg, err := Load(dir, "rotaplan")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Debug)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rotaplan.yaml"), []byte("workers: [\n"), 0o644))
	_, err := Load(dir, "rotaplan")
	assert.Error(t, err)
}
