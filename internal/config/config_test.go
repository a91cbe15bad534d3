package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/erdflow/backend/pkg/errors"
)

func loadFrom(t *testing.T, yamlBody string, env map[string]string) (*Config, error) {
	t.Helper()

	dir := t.TempDir()
	if yamlBody != "" {
		path := filepath.Join(dir, "erdflow.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
		t.Setenv("ERDFLOW_CONFIG", path)
	} else {
		t.Setenv("ERDFLOW_CONFIG", filepath.Join(dir, "absent.yaml"))
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFrom(t, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendSQL, cfg.Backend)
	assert.Equal(t, "new", cfg.Deploy.PublisherPrefix)
	assert.Equal(t, "erdflow", cfg.Deploy.SolutionName)
	assert.Equal(t, 5, cfg.Deploy.Concurrency)
	assert.Equal(t, 3, cfg.Deploy.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Deploy.Backoff)
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := loadFrom(t, "", map[string]string{
		"PORT":               "9090",
		"PUBLISHER_PREFIX":   "acme",
		"DEPLOY_CONCURRENCY": "12",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "acme", cfg.Deploy.PublisherPrefix)
	assert.Equal(t, 12, cfg.Deploy.Concurrency)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	body := `
deploy:
  publisherPrefix: contoso
  solutionName: crm_core
  maxAttempts: 5
  backoff: 500ms
`
	cfg, err := loadFrom(t, body, nil)
	require.NoError(t, err)

	assert.Equal(t, "contoso", cfg.Deploy.PublisherPrefix)
	assert.Equal(t, "crm_core", cfg.Deploy.SolutionName)
	assert.Equal(t, 5, cfg.Deploy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Deploy.Backoff)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5, cfg.Deploy.Concurrency)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	cfg, err := loadFrom(t, "deploy:\n  concurrency: 3\n", map[string]string{
		"DEPLOY_CONCURRENCY": "8",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Deploy.Concurrency)
}

func TestLoad_BadBackoff(t *testing.T) {
	_, err := loadFrom(t, "deploy:\n  backoff: fast\n", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestLoad_BadConcurrency(t *testing.T) {
	_, err := loadFrom(t, "", map[string]string{"DEPLOY_CONCURRENCY": "zero"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestLoad_UnknownBackend(t *testing.T) {
	_, err := loadFrom(t, "", map[string]string{"METADATA_BACKEND": "mongo"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestLoad_DataverseRequiresBaseURL(t *testing.T) {
	_, err := loadFrom(t, "", map[string]string{"METADATA_BACKEND": BackendDataverse})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))

	cfg, err := loadFrom(t, "", map[string]string{
		"METADATA_BACKEND":   BackendDataverse,
		"DATAVERSE_BASE_URL": "https://org.crm.dynamics.com",
		"DATAVERSE_TOKEN":    "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, "v9.2", cfg.Dataverse.APIVersion)
}
