package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REPORT_STORAGE", "")
	t.Setenv("RECON_TOLERANCE", "")
	t.Setenv("WORKER_POOL_SIZE", "")
	t.Setenv("ORDER_ID_PREFIXES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.ReportStorage)
	assert.True(t, cfg.Tolerance.IsZero())
	assert.Greater(t, cfg.Workers, 0)
	assert.LessOrEqual(t, cfg.Workers, 32)
	assert.Empty(t, cfg.OrderIDPrefixes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RECON_TOLERANCE", "0.05")
	t.Setenv("WORKER_POOL_SIZE", "3")
	t.Setenv("JOB_STALE_AFTER", "10m")
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("ORDER_ID_PREFIXES", "ZOM-, SWG-,,")
	t.Setenv("REPORT_STORAGE", "GCS")
	t.Setenv("GCS_BUCKET", "recon-reports")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Tolerance))
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.JobStaleAfter)
	assert.Equal(t, 1000, cfg.ChunkSize, "invalid values fall back to the default")
	assert.Equal(t, []string{"ZOM-", "SWG-"}, cfg.OrderIDPrefixes)
	assert.Equal(t, "gcs", cfg.ReportStorage)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"negative tolerance": {"RECON_TOLERANCE": "-1"},
		"bad tolerance":      {"RECON_TOLERANCE": "abc"},
		"unknown storage":    {"REPORT_STORAGE": "s3"},
		"gcs without bucket": {"REPORT_STORAGE": "gcs", "GCS_BUCKET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logg := NewLogger("warn", "json", &buf)
	assert.Equal(t, logrus.WarnLevel, logg.GetLevel())

	logg.Info("dropped")
	logg.WithField("component", "test").Warn("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "test", entry["component"])

	assert.Equal(t, logrus.InfoLevel, NewLogger("loud", "text", &buf).GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, NewLogger("info", "TEXT", &buf).Formatter)
}
