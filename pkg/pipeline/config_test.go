package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, "0.0.0.0:8080", config.Server.Addr())
	assert.Equal(t, "meta-llama/llama-3-8b-instruct", config.LLM.Model)
	assert.Equal(t, int64(50<<20), config.Processing.MaxFileSize)
	assert.Equal(t, time.Hour, config.Storage.SessionTTL)
	assert.False(t, config.Temporal.Enabled())
	assert.False(t, config.Archive.Enabled)
}

func TestPresets(t *testing.T) {
	dev := DevelopmentConfig()
	assert.Equal(t, "debug", dev.Logging.Level)
	assert.Equal(t, "pretty", dev.Logging.Format)
	require.NoError(t, dev.Validate())

	prod := ProductionConfig()
	assert.True(t, prod.Archive.Enabled)
	require.NoError(t, prod.Validate())
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	yamlConfig := `
server:
  port: 9090
llm:
  model: mistralai/mistral-7b-instruct
  timeout: 90s
extraction:
  ocr_mode: always
storage:
  session_ttl: 30m
`
	path := filepath.Join(t.TempDir(), "smartmeta.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0644))

	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("TESSERACT_LANG", "deu")

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "mistralai/mistral-7b-instruct", config.LLM.Model)
	assert.Equal(t, 90*time.Second, config.LLM.Timeout)
	assert.Equal(t, 0.7, config.LLM.Temperature)
	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, 30*time.Minute, config.Storage.SessionTTL)

	opts := config.ExtractorOptions()
	assert.Equal(t, extractor.OCRAlways, opts.OCRMode)
	assert.Equal(t, "deu", opts.OCRLanguage)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LLM_BASE_URL":      "http://localhost:4000/v1",
		"PORT":              "3000",
		"LOG_LEVEL":         "DEBUG",
		"TEMPORAL_HOST":     "temporal:7233",
		"ARCHIVE_REPO_PATH": "/var/lib/smartmeta",
		"OCR_MODE":          "never",
	}
	config := DefaultConfig()
	require.NoError(t, config.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "http://localhost:4000/v1", config.LLM.BaseURL)
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.True(t, config.Temporal.Enabled())
	assert.True(t, config.Archive.Enabled)
	assert.Equal(t, "/var/lib/smartmeta", config.Archive.RepoPath)
	assert.Equal(t, "never", config.Extraction.OCRMode)

	env["PORT"] = "eighty"
	assert.Error(t, config.ApplyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad ocr mode", func(c *Config) { c.Extraction.OCRMode = "sometimes" }},
		{"request smaller than file", func(c *Config) { c.Server.MaxRequestSize = 1024 }},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"archive without path", func(c *Config) { c.Archive.Enabled = true; c.Archive.RepoPath = "" }},
		{"temporal without queue", func(c *Config) { c.Temporal.Host = "localhost:7233"; c.Temporal.TaskQueue = "" }},
		{"missing section", func(c *Config) { c.Events = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())
		})
	}
}
