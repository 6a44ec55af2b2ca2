package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	Book               string // canonical slug; empty scrapes the whole Bible
	Parallelism        int
	Delay              time.Duration
	RandomDelay        time.Duration
	Timeout            time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	OutputDir          string
	OutputFormat       string // chapters, jsonl, or dual
	UserAgent          string
	Verbose            bool
	RespectRobotsTxt   bool
	Resume             bool
	MetricsAddr        string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	TargetVersions     map[string]string // version label substring -> abbreviation
}

// DefaultConfig returns conservative defaults for scraping BibleHub.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://biblehub.com",
		Parallelism:        10,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            10 * time.Second,
		MaxRetries:         0,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		OutputDir:          "bible",
		OutputFormat:       "chapters",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		RespectRobotsTxt:   false,
		Resume:             false,
		PipelineBufferSize: 64,
		BatchSize:          8,
		DedupeMaxSize:      2048,
		TargetVersions: map[string]string{
			"New International Version": "NIV",
			"New Living Translation":    "NLT",
			"English Standard Version":  "ESV",
			"New King James Version":    "NKJV",
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.OutputFormat != "chapters" && c.OutputFormat != "jsonl" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be chapters, jsonl, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if len(c.TargetVersions) == 0 {
		return fmt.Errorf("at least one target version is required")
	}

	return nil
}
