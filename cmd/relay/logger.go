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

package main

import (
	"fmt"
	"os"

	"github.com/kadirpekel/relay/pkg/logger"
)

const (
	// LogFileEnvVar overrides the log file path.
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar overrides the log level.
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar overrides the log format.
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLoggerFromCLI initializes logging. Priority: CLI flags > env
// vars > defaults. Returns a cleanup function when logging to a file.
func initLoggerFromCLI(cliLevel, cliFile, cliFormat string) (func(), error) {
	level := firstNonEmpty(cliLevel, os.Getenv(LogLevelEnvVar), "info")
	file := firstNonEmpty(cliFile, os.Getenv(LogFileEnvVar))
	format := firstNonEmpty(cliFormat, os.Getenv(LogFormatEnvVar), "simple")

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if file != "" {
		f, cleanupFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = cleanupFn
	}

	logger.Init(parsed, output, format)
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
