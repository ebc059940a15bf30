// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/storerecon/reconciler/internal/jobs"
)

type Config struct {
	Port   string
	DBPath string

	// ReportStorage is "local" or "gcs".
	ReportStorage      string
	ReportDir          string
	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsJSON string

	Workers        int
	JobStaleAfter  time.Duration
	ReaperInterval time.Duration

	Tolerance       decimal.Decimal
	OrderIDPrefixes []string
	ChunkSize       int

	SummaryMode    string
	MaxColWidth    int
	MaxUploadBytes int64

	LogLevel  string
	LogFormat string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               stringFromEnv("PORT", "8080"),
		DBPath:             stringFromEnv("DB_PATH", "recon.db"),
		ReportStorage:      strings.ToLower(stringFromEnv("REPORT_STORAGE", "local")),
		ReportDir:          stringFromEnv("REPORT_DIR", "reports"),
		GCSBucket:          stringFromEnv("GCS_BUCKET", ""),
		GCSPrefix:          stringFromEnv("GCS_PREFIX", "reports"),
		GCSCredentialsJSON: stringFromEnv("GCS_CREDENTIALS_JSON", ""),
		Workers:            intFromEnv("WORKER_POOL_SIZE", jobs.DefaultWorkers()),
		JobStaleAfter:      durationFromEnv("JOB_STALE_AFTER", jobs.DefaultStaleAfter),
		ReaperInterval:     durationFromEnv("REAPER_INTERVAL", time.Minute),
		OrderIDPrefixes:    listFromEnv("ORDER_ID_PREFIXES"),
		ChunkSize:          intFromEnv("CHUNK_SIZE", 1000),
		SummaryMode:        stringFromEnv("SUMMARY_MODE", "static"),
		MaxColWidth:        intFromEnv("REPORT_MAX_COL_WIDTH", 60),
		MaxUploadBytes:     int64(intFromEnv("MAX_UPLOAD_MB", 64)) << 20,
		LogLevel:           stringFromEnv("LOG_LEVEL", "info"),
		LogFormat:          stringFromEnv("LOG_FORMAT", "json"),
	}

	tol := stringFromEnv("RECON_TOLERANCE", "0")
	d, err := decimal.NewFromString(tol)
	if err != nil || d.IsNegative() {
		return nil, fmt.Errorf("RECON_TOLERANCE %q: must be a non-negative number", tol)
	}
	cfg.Tolerance = d

	switch cfg.ReportStorage {
	case "local":
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("REPORT_STORAGE=gcs requires GCS_BUCKET")
		}
	default:
		return nil, fmt.Errorf("REPORT_STORAGE %q: want local or gcs", cfg.ReportStorage)
	}
	return cfg, nil
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
