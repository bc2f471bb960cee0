package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "none", cfg.Events.Driver)
	assert.Equal(t, 20, cfg.API.DefaultPageSize)
	assert.Equal(t, 2000, cfg.API.MaxPageSize)
	assert.Equal(t, 10, cfg.Web.PageSize)
	assert.True(t, cfg.Ingest.OnStartup)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, filepath.Join(".", "data"), cfg.Runtime.DataDir)
}

func TestLoadYAMLResolvesRelativePaths(t *testing.T) {
	path := writeFile(t, "meteorite.yaml", `
storage:
  driver: sqlite
ingest:
  path: Meteorite_Landings.csv
runtime:
  data_dir: var
cache:
  driver: none
  ttl_seconds: 15
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "var"), cfg.Runtime.DataDir)
	assert.Equal(t, filepath.Join(dir, "var", "meteorites.db"), cfg.Storage.DSN)
	assert.Equal(t, filepath.Join(dir, "Meteorite_Landings.csv"), cfg.Ingest.Path)
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.Equal(t, 15, int(cfg.Cache.TTL().Seconds()))
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeFile(t, "meteorite.json", `{"server": {"address": ":9000"}, "web": {"page_size": 25}}`)
	t.Setenv("METEORITE_SERVER_ADDRESS", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, 25, cfg.Web.PageSize)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeFile(t, "meteorite.yaml", "api:\n  default_page_size: 50\n  max_page_size: 10\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.API.DefaultPageSize)
	assert.Equal(t, 50, cfg.API.MaxPageSize, "max page size is raised to the default")
}

func TestValidateRejectsIncompleteDrivers(t *testing.T) {
	cases := map[string]string{
		"mysql without dsn":  "storage:\n  driver: mysql\n",
		"unknown storage":    "storage:\n  driver: postgres\n",
		"redis without addr": "cache:\n  driver: redis\n",
		"rabbit without url": "events:\n  driver: rabbitmq\n",
		"watch without path": "ingest:\n  watch: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
