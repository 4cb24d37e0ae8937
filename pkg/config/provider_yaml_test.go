package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYAMLProviderLoadConfig(t *testing.T) {
	content := `
database:
  connection_string: "host=localhost user=surfaced dbname=surfaced"
ingest:
  spool_dir: /var/spool/surfaced
lightning:
  hostname: feed.example.org
  port: "10125"
  partner_id: testpartner
  min_latitude: 15
  max_latitude: 19
  min_longitude: -90
  max_longitude: -87
lrgs:
  executable_path: /opt/lrgs/bin/getDcpMessages
  hostname: lrgs.example.org
  port: "16003"
  username: surfaced
  password: secret
  criteria_file_path: /tmp/lrgs.cs
  max_window_hours: 48
prediction:
  url: http://hydroml.example.org/predict
  timeout: 30s
export:
  output_dir: /data/exports
  timezone_name: America/Belize
schedule:
  ingest_interval: 30s
  qc_interval: 2h
log_file: /var/log/surfaced.log
`
	path := filepath.Join(t.TempDir(), "surfaced.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	provider := NewYAMLProvider(path)
	cfg, err := provider.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "host=localhost user=surfaced dbname=surfaced", cfg.Database.ConnectionString)
	assert.Equal(t, "/var/spool/surfaced", cfg.Ingest.SpoolDir)

	require.NotNil(t, cfg.Lightning)
	assert.Equal(t, "feed.example.org", cfg.Lightning.Hostname)
	assert.Equal(t, 19.0, cfg.Lightning.MaxLatitude)
	assert.Equal(t, -90.0, cfg.Lightning.MinLongitude)

	require.NotNil(t, cfg.LRGS)
	assert.Equal(t, 48, cfg.LRGS.MaxWindowHours)

	require.NotNil(t, cfg.Prediction)
	assert.Equal(t, "http://hydroml.example.org/predict", cfg.Prediction.URL)

	assert.Equal(t, "America/Belize", cfg.Export.TimezoneName)
	assert.Equal(t, "30s", cfg.Schedule.IngestInterval)
	assert.Equal(t, "2h", cfg.Schedule.QCInterval)
	assert.Equal(t, "/var/log/surfaced.log", cfg.LogFile)
	assert.True(t, provider.IsReadOnly())
}

func TestYAMLProviderOptionalSectionsAbsent(t *testing.T) {
	content := `
database:
  connection_string: "host=localhost"
`
	path := filepath.Join(t.TempDir(), "surfaced.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewYAMLProvider(path).LoadConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.Lightning)
	assert.Nil(t, cfg.LRGS)
	assert.Nil(t, cfg.Prediction)
}

func TestYAMLProviderMissingFile(t *testing.T) {
	_, err := NewYAMLProvider("/nonexistent/surfaced.yaml").LoadConfig()
	assert.Error(t, err)
}
