package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "https://biblehub.com" {
		t.Fatalf("base url=%q", cfg.BaseURL)
	}
	if cfg.Parallelism != 10 {
		t.Fatalf("parallelism=%d, want 10", cfg.Parallelism)
	}
	if cfg.MaxRetries != 0 {
		t.Fatalf("max retries=%d, want 0", cfg.MaxRetries)
	}
	if cfg.OutputDir != "bible" {
		t.Fatalf("output dir=%q, want bible", cfg.OutputDir)
	}
	if cfg.OutputFormat != "chapters" {
		t.Fatalf("output format=%q, want chapters", cfg.OutputFormat)
	}
	if got := cfg.TargetVersions["English Standard Version"]; got != "ESV" {
		t.Fatalf("ESV mapping=%q", got)
	}
	if len(cfg.TargetVersions) != 4 {
		t.Fatalf("target versions=%d, want 4", len(cfg.TargetVersions))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty base url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "base url without host", mutate: func(c *Config) { c.BaseURL = "/relative/path" }, wantErr: true},
		{name: "zero parallelism", mutate: func(c *Config) { c.Parallelism = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Delay = -time.Second }, wantErr: true},
		{name: "negative random delay", mutate: func(c *Config) { c.RandomDelay = -time.Second }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, wantErr: true},
		{name: "backoff above cap", mutate: func(c *Config) {
			c.RetryBackoff = 5 * time.Second
			c.RetryBackoffMax = time.Second
		}, wantErr: true},
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }, wantErr: true},
		{name: "bad output format", mutate: func(c *Config) { c.OutputFormat = "xml" }, wantErr: true},
		{name: "jsonl format", mutate: func(c *Config) { c.OutputFormat = "jsonl" }, wantErr: false},
		{name: "dual format", mutate: func(c *Config) { c.OutputFormat = "dual" }, wantErr: false},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }, wantErr: true},
		{name: "zero buffer", mutate: func(c *Config) { c.PipelineBufferSize = 0 }, wantErr: true},
		{name: "zero batch", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "zero dedupe", mutate: func(c *Config) { c.DedupeMaxSize = 0 }, wantErr: true},
		{name: "no target versions", mutate: func(c *Config) { c.TargetVersions = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SCRAPER_TEST_INT", "42")
	value, ok, err := EnvInt("SCRAPER_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt=%d/%v/%v, want 42/true/nil", value, ok, err)
	}

	t.Setenv("SCRAPER_TEST_INT", "not-a-number")
	if _, _, err := EnvInt("SCRAPER_TEST_INT"); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}

	if _, ok, err := EnvInt("SCRAPER_TEST_INT_UNSET"); ok || err != nil {
		t.Fatalf("unset variable reported as set (ok=%v err=%v)", ok, err)
	}
}

func TestEnvString(t *testing.T) {
	t.Setenv("SCRAPER_TEST_STR", "out")
	if value, ok := EnvString("SCRAPER_TEST_STR"); !ok || value != "out" {
		t.Fatalf("EnvString=%q/%v", value, ok)
	}

	t.Setenv("SCRAPER_TEST_STR", "")
	if _, ok := EnvString("SCRAPER_TEST_STR"); ok {
		t.Fatalf("empty variable reported as set")
	}
}
