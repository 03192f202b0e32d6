package config

import (
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/profile"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MDGUARD_API_KEY", "k")
	cfg := Load()
	if cfg.Port != "8090" || cfg.DefaultProfile != profile.Strict {
		t.Errorf("port=%q profile=%q", cfg.Port, cfg.DefaultProfile)
	}
	if cfg.WorkerCount != 4 || cfg.MaxQueueSize != 100 || cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("pool defaults = %+v", cfg)
	}
	if cfg.CollectorTimeout != 2*time.Second || cfg.JobTTL != time.Hour {
		t.Errorf("durations = %v %v", cfg.CollectorTimeout, cfg.JobTTL)
	}
	if !cfg.PDFFallbackPdftotext || cfg.PathstoreURL != "" || cfg.LedgerPath != "" {
		t.Errorf("optional defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MDGUARD_API_KEY", "k")
	t.Setenv("DEFAULT_PROFILE", " Moderate ")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("COLLECTOR_TIMEOUT", "250ms")
	t.Setenv("PDF_FALLBACK_PDFTOTEXT", "false")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg := Load()
	if cfg.DefaultProfile != profile.Moderate {
		t.Errorf("profile = %q", cfg.DefaultProfile)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("non-positive worker count not defaulted: %d", cfg.WorkerCount)
	}
	if cfg.CollectorTimeout != 250*time.Millisecond || cfg.PDFFallbackPdftotext {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ChunkSize != 1500 {
		t.Errorf("chunk size = %d", cfg.ChunkSize)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("MDGUARD_API_KEY", "k")
	base := Load()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing api key", func(c *Config) { c.APIKey = "" }, false},
		{"unknown profile", func(c *Config) { c.DefaultProfile = "lenient" }, false},
		{"sink without key", func(c *Config) { c.PathstoreURL = "http://ps" }, false},
		{"sink with key", func(c *Config) { c.PathstoreURL, c.PathstoreAPIKey = "http://ps", "x" }, true},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, ok want %v", err, tc.ok)
			}
		})
	}
}

func TestUnknownDefaultProfileIsValidationError(t *testing.T) {
	t.Setenv("MDGUARD_API_KEY", "k")
	t.Setenv("DEFAULT_PROFILE", "lenient")
	err := Load().Validate()
	if !errors.Is(err, errs.ErrUnknownProfile) {
		t.Errorf("err = %v", err)
	}
}
