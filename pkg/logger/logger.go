// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const relayPackagePrefix = "github.com/kadirpekel/relay"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, nil
	}
}

// filteringHandler wraps a slog handler and filters third-party library logs.
// Third-party logs are only shown when log level is DEBUG.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	// DEBUG shows everything, relay and third-party alike
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}

	if h.isRelayPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}

	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithAttrs(attrs),
		minLevel: h.minLevel,
	}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithGroup(name),
		minLevel: h.minLevel,
	}
}

// isRelayPackage checks if the given PC (program counter) is from a relay package
func (h *filteringHandler) isRelayPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}

	fullName := fn.Name()
	file, _ := fn.FileLine(pc)

	return strings.Contains(fullName, relayPackagePrefix) ||
		strings.Contains(file, "relay/")
}

// getLevelColor returns ANSI color code for a log level
func getLevelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // Red for error
	case level >= slog.LevelWarn:
		return "\033[33m" // Yellow for warn
	case level >= slog.LevelInfo:
		return "\033[36m" // Cyan for info
	default:
		return "\033[90m" // Gray for debug
	}
}

// isTerminal checks if the file is a terminal
func isTerminal(file *os.File) bool {
	if fileInfo, err := file.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// textHandler formats records as "LEVEL message key=value", optionally
// colored and optionally prefixed with a timestamp (verbose format).
type textHandler struct {
	handler  slog.Handler
	writer   io.Writer
	useColor bool
	verbose  bool
}

func (h *textHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *textHandler) Handle(ctx context.Context, record slog.Record) error {
	var buf strings.Builder

	if h.verbose && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := strings.ToUpper(record.Level.String())
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}

	if h.useColor {
		buf.WriteString(getLevelColor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}

	buf.WriteString(" ")
	buf.WriteString(record.Message)

	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &textHandler{
		handler:  h.handler.WithAttrs(attrs),
		writer:   h.writer,
		useColor: h.useColor,
		verbose:  h.verbose,
	}
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	return &textHandler{
		handler:  h.handler.WithGroup(name),
		writer:   h.writer,
		useColor: h.useColor,
		verbose:  h.verbose,
	}
}

// Init initializes the logger with the specified level and format.
// Third-party library logs are only shown when level is DEBUG.
// Color support is enabled automatically for terminal output.
// format: "simple" (level + message), "verbose" (adds timestamp), or any
// other value for the standard slog text format.
func Init(level slog.Level, output *os.File, format string) {
	useColor := isTerminal(output)
	simple := format == "simple" || format == ""
	verbose := format == "verbose"

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Normalize WARNING to WARN
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}

	baseHandler := slog.NewTextHandler(output, opts)

	var handler slog.Handler = baseHandler
	if simple || verbose {
		handler = &textHandler{
			handler:  baseHandler,
			writer:   output,
			useColor: useColor,
			verbose:  verbose,
		}
	}

	defaultLogger = slog.New(&filteringHandler{
		handler:  handler,
		minLevel: level,
	})

	// All libraries using slog pick this up as well
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens or creates a log file at the specified path.
// Returns the file handle and a cleanup function, or an error.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		file.Close()
	}

	return file, cleanup, nil
}

// GetLogger returns the default slog logger.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
