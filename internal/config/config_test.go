package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LANGUAGES", "")
	t.Setenv("WORKFLOWS", "")
	t.Setenv("STORAGE_TYPE", "")

	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, domain.DefaultLanguages, cfg.Languages)
	assert.Equal(t, DefaultWorkflows, cfg.Workflows)
	assert.Equal(t, 14, cfg.StaleDays)
	assert.Equal(t, 7, cfg.WorkflowWindowDays)
	assert.Equal(t, domain.DefaultTargets(), cfg.Targets)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LANGUAGES", "Python, go ,python,GO")
	t.Setenv("WORKFLOWS", "scan=scan.yml, metrics = metrics.yml")
	t.Setenv("STALE_DAYS", "30")
	t.Setenv("TARGET_MERGE_RATE", "80")
	t.Setenv("TARGET_QUALITY_SCORE", "4.2")
	t.Setenv("TARGET_MAX_FALSE_POSITIVE", "3")
	t.Setenv("SNAPSHOT_URLS", "https://example.test/week1.json, ,https://example.test/week2.json")

	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "go"}, cfg.Languages)
	assert.Equal(t, map[string]string{"scan": "scan.yml", "metrics": "metrics.yml"}, cfg.Workflows)
	assert.Equal(t, []string{"metrics", "scan"}, cfg.WorkflowNames())
	assert.Equal(t, 30, cfg.StaleDays)
	assert.Equal(t, 80.0, cfg.Targets.FixPrMergeRate)
	assert.Equal(t, 80.0, cfg.Targets.AnalysisPrMergeRate)
	assert.Equal(t, 4.2, cfg.Targets.QualityScore)
	assert.Equal(t, 3.0, cfg.Targets.MaxFalsePositiveRate)
	assert.Equal(t, 90.0, cfg.Targets.DetectionAccuracy)
	assert.Equal(t, []string{"https://example.test/week1.json", "https://example.test/week2.json"}, cfg.SnapshotURLs)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "STALE_DAYS", value: "soon"},
		{key: "WORKFLOW_WINDOW_DAYS", value: "-1"},
		{key: "TARGET_AGENT_SUCCESS", value: "120"},
		{key: "TARGET_DEV_SATISFACTION", value: "7"},
		{key: "WORKFLOWS", value: "scan"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := fromEnv()

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Field)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{StorageType: "mongo"}
	assert.EqualError(t, cfg.Validate(), "STORAGE_TYPE: must be 'sqlite' or 'postgres'")

	cfg = &Config{StorageType: "postgres"}
	assert.Error(t, cfg.Validate())

	cfg.PostgresURL = "postgres://localhost/parity"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollector(t *testing.T) {
	cfg := &Config{FixLabel: "parity-fix"}
	assert.EqualError(t, cfg.ValidateCollector(), "GITHUB_TOKEN: GitHub token is required")

	cfg.GitHubToken = "token"
	cfg.GitHubRepo = "not-a-repo"
	assert.EqualError(t, cfg.ValidateCollector(), "GITHUB_REPO: must look like owner/name")

	cfg.GitHubRepo = "octo/parity"
	require.NoError(t, cfg.ValidateCollector())

	owner, name, err := cfg.Repository()
	require.NoError(t, err)
	assert.Equal(t, "octo", owner)
	assert.Equal(t, "parity", name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("API_PORT=9191\n"), 0o600))
	t.Setenv("API_PORT", "")
	os.Unsetenv("API_PORT")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9191", cfg.APIPort)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
