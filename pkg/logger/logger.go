// Package logger builds the process slog.Logger. Text output goes through
// charmbracelet/log; JSON output writes one Entry per line. Both formats
// attach the turn scope a context carries.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	charmLog "github.com/charmbracelet/log"

	"botkit/pkg/config"
)

const (
	envFormat    = "BOTKIT_LOG_FORMAT"
	envLevel     = "BOTKIT_LOG_LEVEL"
	envAddSource = "BOTKIT_LOG_ADD_SOURCE"

	formatText = "text"
	formatJSON = "json"
)

// options is LoggingConfig after environment overrides and defaults.
type options struct {
	format    string
	level     slog.Level
	addSource bool
}

// New returns a logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	opts, err := resolveOptions(cfg)
	if err != nil {
		return nil, err
	}

	if opts.format == formatJSON {
		return slog.New(&entryHandler{
			level:     opts.level,
			addSource: opts.addSource,
			writer:    writer,
			mu:        &sync.Mutex{},
		}), nil
	}

	pretty := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(opts.level),
		ReportTimestamp: true,
		ReportCaller:    opts.addSource,
		Formatter:       charmLog.TextFormatter,
	})
	return slog.New(turnHandler{Handler: pretty}), nil
}

func resolveOptions(cfg config.LoggingConfig) (options, error) {
	format := firstNonEmpty(os.Getenv(envFormat), cfg.Format, formatText)
	if format != formatJSON && format != formatText {
		return options{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(firstNonEmpty(os.Getenv(envLevel), cfg.Level, "info"))
	if err != nil {
		return options{}, err
	}

	addSource := cfg.AddSource
	if value := strings.TrimSpace(os.Getenv(envAddSource)); value != "" {
		addSource = parseBool(value)
	}

	return options{format: format, level: level, addSource: addSource}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
			return trimmed
		}
	}

	return ""
}

func parseLevel(levelText string) (slog.Level, error) {
	switch levelText {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", levelText)
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(input) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
