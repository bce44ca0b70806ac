package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/processing"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds complete service configuration
type Config struct {
	// Logging configuration
	Logging *logging.LogConfig `yaml:"logging"`

	// Server configuration
	Server *ServerConfig `yaml:"server"`

	// Model provider configuration
	LLM llm.Config `yaml:"llm"`

	// Upload and generation limits
	Processing processing.Config `yaml:"processing"`

	// Text extraction settings
	Extraction *ExtractionConfig `yaml:"extraction"`

	// Session storage
	Storage *StorageConfig `yaml:"storage"`

	// Optional git archive of generated metadata
	Archive *ArchiveConfig `yaml:"archive"`

	// Optional Temporal batch processing
	Temporal *TemporalConfig `yaml:"temporal"`

	// Event bus sizing
	Events *EventsConfig `yaml:"events"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxRequestSize int64         `yaml:"max_request_size"`
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ExtractionConfig holds text extraction settings
type ExtractionConfig struct {
	OCRMode      string  `yaml:"ocr_mode"`     // auto, always, never
	OCRLanguage  string  `yaml:"ocr_language"` // tesseract language
	PDFMaxPages  int     `yaml:"pdf_max_pages"`
	PDFDPI       float64 `yaml:"pdf_dpi"`
	MinPageChars int     `yaml:"min_page_chars"` // below this a PDF page is OCRed in auto mode
}

// StorageConfig holds session storage settings
type StorageConfig struct {
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ArchiveConfig controls the git archive
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RepoPath string `yaml:"repo_path"`
}

// TemporalConfig holds Temporal connection settings. An empty host disables
// batch processing.
type TemporalConfig struct {
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// Enabled reports whether a Temporal host is configured.
func (t *TemporalConfig) Enabled() bool {
	return t != nil && t.Host != ""
}

// EventsConfig sizes the event bus
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
	Workers    int `yaml:"workers"`
}

// DefaultConfig returns a complete default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: &logging.LogConfig{
			Level:   "info",
			Format:  "json",
			Console: true,
		},

		Server: &ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute, // generation can take a while
			MaxRequestSize: 60 * 1024 * 1024,
		},

		LLM:        llm.DefaultConfig(),
		Processing: processing.DefaultConfig(),

		Extraction: &ExtractionConfig{
			OCRMode:      string(extractor.OCRAuto),
			OCRLanguage:  "eng",
			PDFMaxPages:  1000,
			PDFDPI:       300,
			MinPageChars: 20,
		},

		Storage: &StorageConfig{
			SessionTTL:    time.Hour,
			SweepInterval: 5 * time.Minute,
		},

		Archive: &ArchiveConfig{
			Enabled:  false,
			RepoPath: "./data/metadata-archive",
		},

		Temporal: &TemporalConfig{
			Namespace: "default",
			TaskQueue: "smartmeta-batch",
		},

		Events: &EventsConfig{
			BufferSize: 1000,
			Workers:    4,
		},
	}
}

// ProductionConfig returns production-ready configuration
func ProductionConfig() *Config {
	config := DefaultConfig()

	// Production logging
	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Console = true

	// Keep every generated result
	config.Archive.Enabled = true

	config.Events.Workers = 8

	return config
}

// DevelopmentConfig returns development configuration
func DevelopmentConfig() *Config {
	config := DefaultConfig()

	// Development logging
	config.Logging.Level = "debug"
	config.Logging.Format = "pretty"
	config.Logging.Console = true

	config.Server.Host = "127.0.0.1"
	config.Events.Workers = 2

	return config
}

// Load reads configuration. Defaults are overlaid with the YAML file at path
// (skipped when path is empty), then with environment variables. A .env file
// in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings from environment variables looked up with
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("TEMPORAL_HOST"); v != "" {
		c.Temporal.Host = v
	}
	if v := getenv("ARCHIVE_REPO_PATH"); v != "" {
		c.Archive.RepoPath = v
		c.Archive.Enabled = true
	}
	if v := getenv("OCR_MODE"); v != "" {
		c.Extraction.OCRMode = v
	}
	if v := getenv("TESSERACT_LANG"); v != "" {
		c.Extraction.OCRLanguage = v
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Logging == nil || c.Server == nil || c.Extraction == nil ||
		c.Storage == nil || c.Archive == nil || c.Temporal == nil || c.Events == nil {
		return errors.New("config: missing section")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if _, err := extractor.ParseOCRMode(c.Extraction.OCRMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Processing.MaxFileSize <= 0 {
		return fmt.Errorf("config: max_file_size must be positive")
	}
	if c.Server.MaxRequestSize > 0 && c.Server.MaxRequestSize < c.Processing.MaxFileSize {
		return fmt.Errorf("config: max_request_size %d is smaller than max_file_size %d",
			c.Server.MaxRequestSize, c.Processing.MaxFileSize)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	}
	if c.Archive.Enabled && c.Archive.RepoPath == "" {
		return errors.New("config: archive enabled without repo_path")
	}
	if c.Temporal.Enabled() && c.Temporal.TaskQueue == "" {
		return errors.New("config: temporal task_queue is required")
	}
	return nil
}

// ExtractorOptions converts the extraction settings for extractor.NewEngine.
func (c *Config) ExtractorOptions() extractor.Options {
	opts := extractor.DefaultOptions()
	if mode, err := extractor.ParseOCRMode(c.Extraction.OCRMode); err == nil {
		opts.OCRMode = mode
	}
	if c.Extraction.OCRLanguage != "" {
		opts.OCRLanguage = c.Extraction.OCRLanguage
	}
	if c.Extraction.PDFMaxPages > 0 {
		opts.PDFMaxPages = c.Extraction.PDFMaxPages
	}
	if c.Extraction.PDFDPI > 0 {
		opts.PDFDPI = c.Extraction.PDFDPI
	}
	if c.Extraction.MinPageChars > 0 {
		opts.MinPageChars = c.Extraction.MinPageChars
	}
	return opts
}
