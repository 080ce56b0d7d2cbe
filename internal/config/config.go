// Package config loads and validates the pipeline configuration from
// .polistep/config.yaml, with environment variable overrides for secrets
// and deployment-specific switches.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all polistep configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Browser   BrowserConfig   `yaml:"browser"`
	Run       RunConfig       `yaml:"run"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Progress  ProgressConfig  `yaml:"progress"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig configures the Gemini provider.
type LLMConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	GuidanceModel string `yaml:"guidance_model"`
	TimeoutSec    int    `yaml:"timeout_sec"`

	// Provider-call retry policy for transient overload.
	MaxRetries    int `yaml:"max_retries"`
	BackoffBaseMs int `yaml:"backoff_base_ms"`
}

// Timeout returns the per-call provider timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// BackoffBase returns the exponential backoff base.
func (c LLMConfig) BackoffBase() time.Duration {
	if c.BackoffBaseMs <= 0 {
		return time.Second
	}
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BrowserConfig configures the rod-driven browser session.
type BrowserConfig struct {
	Headless        bool     `yaml:"headless"`
	KeepSessionOpen bool     `yaml:"keep_session_open"`
	BinPath         string   `yaml:"bin_path"`
	ViewportWidth   int      `yaml:"viewport_width"`
	ViewportHeight  int      `yaml:"viewport_height"`
	AllowedDomains  []string `yaml:"allowed_domains"`

	NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
}

// NavigationTimeout returns the per-navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// GetViewportWidth returns viewport width.
func (c BrowserConfig) GetViewportWidth() int {
	if c.ViewportWidth <= 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c BrowserConfig) GetViewportHeight() int {
	if c.ViewportHeight <= 0 {
		return 1080
	}
	return c.ViewportHeight
}

// RunConfig bounds one agent run.
type RunConfig struct {
	MaxActions        int    `yaml:"max_actions"`
	MaxWallSeconds    int    `yaml:"max_wall_seconds"`
	SnapshotThreshold int    `yaml:"snapshot_failure_threshold"`
	DownloadsRoot     string `yaml:"downloads_root"`
}

// MaxWallClock returns the hard run deadline.
func (c RunConfig) MaxWallClock() time.Duration {
	if c.MaxWallSeconds <= 0 {
		return 8 * time.Minute
	}
	return time.Duration(c.MaxWallSeconds) * time.Second
}

// ArtifactsConfig configures text extraction.
type ArtifactsConfig struct {
	EnableImageOCR  bool `yaml:"enable_image_ocr"` // off by default: images are link-only
	MaxFiles        int  `yaml:"max_files"`
	MaxImageURLs    int  `yaml:"max_image_urls"`
	FetchTimeoutSec int  `yaml:"fetch_timeout_sec"`
}

// FetchTimeout returns the per-image download timeout.
func (c ArtifactsConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutSec <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// ProgressConfig configures the live progress channel.
type ProgressConfig struct {
	QueueSize       int `yaml:"queue_size"`
	FrameIntervalMs int `yaml:"frame_interval_ms"`
	FrameSizeLimit  int `yaml:"frame_size_limit"` // bytes; larger frames are dropped
}

// FrameInterval returns the screenshot cadence.
func (c ProgressConfig) FrameInterval() time.Duration {
	if c.FrameIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// StoreConfig configures record persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode bool `yaml:"debug_mode"`
}

// DefaultConfig returns sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Model:         "gemini-2.5-flash-lite",
			GuidanceModel: "gemini-2.5-flash-lite",
			TimeoutSec:    120,
			MaxRetries:    3,
			BackoffBaseMs: 1000,
		},
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
		},
		Run: RunConfig{
			MaxActions:        40,
			MaxWallSeconds:    480,
			SnapshotThreshold: 2,
			DownloadsRoot:     "./data/downloads",
		},
		Artifacts: ArtifactsConfig{
			EnableImageOCR:  false,
			MaxFiles:        30,
			MaxImageURLs:    15,
			FetchTimeoutSec: 12,
		},
		Progress: ProgressConfig{
			QueueSize:       256,
			FrameIntervalMs: 2000,
			FrameSizeLimit:  2 << 20,
		},
		Store: StoreConfig{
			DatabasePath: ".polistep/polistep.db",
		},
	}
}

// Load reads the config file under the workspace, falling back to
// defaults when the file is missing, then applies environment overrides.
func Load(workspace string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ".polistep", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides maps environment variables onto the config. Secrets
// only come from the environment.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("POLISTEP_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	if v := os.Getenv("POLISTEP_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("POLISTEP_HEADLESS"); v != "" {
		cfg.Browser.Headless = parseBool(v, cfg.Browser.Headless)
	}
	if v := os.Getenv("POLISTEP_DOWNLOADS_DIR"); v != "" {
		cfg.Run.DownloadsRoot = v
	}
	if v := os.Getenv("POLISTEP_IMAGE_OCR"); v != "" {
		cfg.Artifacts.EnableImageOCR = parseBool(v, cfg.Artifacts.EnableImageOCR)
	}
	if v := os.Getenv("POLISTEP_MAX_ACTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Run.MaxActions = n
		}
	}
	if v := os.Getenv("POLISTEP_MAX_WALL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Run.MaxWallSeconds = n
		}
	}
	if v := os.Getenv("POLISTEP_ALLOWED_DOMAINS"); v != "" {
		parts := strings.Split(v, ",")
		domains := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				domains = append(domains, p)
			}
		}
		cfg.Browser.AllowedDomains = domains
	}

	// Headless servers without a display cannot run a headed browser.
	if !cfg.Browser.Headless && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		cfg.Browser.Headless = true
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Run.MaxActions <= 0 {
		return fmt.Errorf("run.max_actions must be positive, got %d", c.Run.MaxActions)
	}
	if c.Run.MaxWallSeconds <= 0 {
		return fmt.Errorf("run.max_wall_seconds must be positive, got %d", c.Run.MaxWallSeconds)
	}
	if c.Run.SnapshotThreshold <= 0 {
		return fmt.Errorf("run.snapshot_failure_threshold must be positive, got %d", c.Run.SnapshotThreshold)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative, got %d", c.LLM.MaxRetries)
	}
	if c.Progress.QueueSize <= 0 {
		return fmt.Errorf("progress.queue_size must be positive, got %d", c.Progress.QueueSize)
	}
	return nil
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}
