package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `json:"format" yaml:"format"`           // json, pretty
	OutputFile string `json:"output_file" yaml:"output_file"` // optional log file
	Console    bool   `json:"console" yaml:"console"`         // also log to stdout
}

// DefaultLogConfig logs JSON at info level to stdout.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:   "info",
		Format:  "json",
		Console: true,
	}
}

// SetupLogger replaces the global zerolog logger. The returned closer is
// non-nil only when a log file was opened.
func SetupLogger(config *LogConfig) (io.Closer, error) {
	if config == nil {
		config = DefaultLogConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if config.Console {
		writers = append(writers, consoleWriter(config.Format))
	}

	var logFile *os.File
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return nil, err
		}
		logFile, err = os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.Logger = zerolog.Nop()
	} else {
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
			With().
			Timestamp().
			Str("service", "smartmeta").
			Logger()
	}

	log.Debug().
		Str("level", level.String()).
		Str("format", config.Format).
		Str("output_file", config.OutputFile).
		Msg("Logger initialized")

	if logFile == nil {
		return nil, nil
	}
	return logFile, nil
}

func consoleWriter(format string) io.Writer {
	if format == "pretty" {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return os.Stdout
}

// GetLogger returns a contextual logger
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// GetDocumentLogger returns a logger scoped to one uploaded document
func GetDocumentLogger(documentID, filename string) zerolog.Logger {
	return log.With().
		Str("document_id", documentID).
		Str("filename", filename).
		Logger()
}

// GetStorageLogger returns a logger for storage operations
func GetStorageLogger(operation, backend string) zerolog.Logger {
	return log.With().
		Str("storage_operation", operation).
		Str("backend", backend).
		Logger()
}
