package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentencebase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	want := Defaults()
	want.LogLevel = "debug"
	assert.Equal(t, want, *cfg)
	assert.Equal(t, 250, cfg.MaxPendingSentences)
	assert.Equal(t, "0 4 * * *", cfg.BatchSchedule)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadKeepsExplicitZeroLimit(t *testing.T) {
	cfg, err := Load(writeConfig(t, "max_pending_sentences: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxPendingSentences)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MAXIMUM_PENDING_SENTENCES", "7")
	t.Setenv("SENTENCEBASE_DB", "/tmp/other.db")
	t.Setenv("SENTENCEBASE_DB_DRIVER", "sqlite")
	t.Setenv("SENTENCEBASE_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "max_pending_sentences: 3\ndb_path: ./file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxPendingSentences)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvironmentLimitMustBeNumber(t *testing.T) {
	t.Setenv("MAXIMUM_PENDING_SENTENCES", "lots")
	_, err := Load("")
	assert.ErrorContains(t, err, "MAXIMUM_PENDING_SENTENCES")
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"negative limit":  "max_pending_sentences: -1\n",
		"unknown driver":  "db_driver: postgres\n",
		"bad level":       "log_level: loud\n",
		"bad format":      "log_format: xml\n",
		"zero workers":    "workers: 0\n",
		"zero batch size": "write_batch_size: 0\n",
		"bad schedule":    "batch_schedule: \"every day\"\n",
		"bad timezone":    "timezone: Invalid/Zone\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "workers: [1, 2\n"))
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestResolve(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Resolve("")
	require.NoError(t, err, "a missing default file means defaults")
	assert.Equal(t, Defaults(), *cfg)

	require.NoError(t, os.WriteFile(DefaultPath, []byte("workers: 9\n"), 0o644))
	cfg, err = Resolve("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Workers)

	explicit := writeConfig(t, "workers: 2\n")
	cfg, err = Resolve(explicit)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)

	t.Setenv("SENTENCEBASE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Resolve("")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Defaults()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	log := cfg.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
