package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/mdguard/internal/profile"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Profile used when a request names none.
	DefaultProfile profile.Name

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentStore int

	// Upload limits
	MaxUploadBytes int64

	// Parsing
	CollectorTimeout time.Duration

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Job state
	JobTTL time.Duration

	// Optional pathstore sink; disabled when the URL is empty.
	PathstoreURL    string
	PathstoreAPIKey string

	// Verdict ledger; disabled when empty.
	LedgerPath string

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("MDGUARD_API_KEY"),

		DefaultProfile: envProfile("DEFAULT_PROFILE", profile.Strict),

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentStore: envInt("MAX_CONCURRENT_STORE", 10),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10<<20),

		CollectorTimeout: envDuration("COLLECTOR_TIMEOUT", 2*time.Second),

		ChunkSize:    envInt("CHUNK_SIZE", 1500),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		LedgerPath: os.Getenv("LEDGER_PATH"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.CollectorTimeout <= 0 {
		cfg.CollectorTimeout = 2 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1500
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("MDGUARD_API_KEY is required")
	}
	if _, err := profile.Lookup(c.DefaultProfile); err != nil {
		return fmt.Errorf("DEFAULT_PROFILE: %w", err)
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envProfile keeps an unparseable value as-is so Validate can report it.
func envProfile(key string, fallback profile.Name) profile.Name {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := profile.Parse(v); err == nil {
		return n
	}
	return profile.Name(v)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
