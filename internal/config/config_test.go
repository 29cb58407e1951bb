package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/crmlens/internal/anomaly"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.1, c.Anomaly.Contamination)
	assert.Equal(t, 100, c.Anomaly.Trees)
	assert.Equal(t, "normal", c.Anomaly.Unscorable)
	assert.Equal(t, int64(42), c.Estimate.Seed)
	assert.Equal(t, 1000, c.Estimate.SizeMax)
	assert.Equal(t, 1, c.Ingest.SheetIndex)
	assert.Equal(t, "info", c.Log.Level)
	assert.Contains(t, c.Normalize.MissingMarkers, "N/A")
	assert.Equal(t, anomaly.DefaultOptions(), c.AnomalyOptions())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "anomaly:\n  contamination: 0.2\n  unscorable: missing\ningest:\n  delimiter: \";\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CRMLENS_ESTIMATE_TREES", "7")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, c.Anomaly.Contamination)
	assert.Equal(t, anomaly.PolicyMissing, c.AnomalyOptions().Unscorable)
	assert.Equal(t, 7, c.EstimateOptions().Trees)
	assert.Equal(t, ';', c.IngestOptions().Delimiter)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("anomaly:\n  contamination: 0.9\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid config")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	c.Estimate.SizeMax = c.Estimate.SizeMin
	assert.Error(t, c.Validate())

	c = Default()
	c.Log.Level = "verbose"
	assert.Error(t, c.Validate())

	c = Default()
	c.Anomaly.Unscorable = "skip"
	assert.Error(t, c.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := Default()
	c.Anomaly.Seed = 9
	c.Server.Addr = ":9090"
	require.NoError(t, Save(c, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Anomaly.Seed)
	assert.Equal(t, ":9090", got.Server.Addr)
}
