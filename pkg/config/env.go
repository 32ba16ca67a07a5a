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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, and $VAR
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars recursively expands ${VAR} and $VAR patterns in a map.
func expandEnvVars(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = expandValue(v)
	}
	return result
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		return expandEnvVars(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = expandValue(item)
		}
		return result
	default:
		return v
	}
}

func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// ${VAR} and ${VAR:-default}
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]

			if idx := strings.Index(inner, ":-"); idx != -1 {
				varName := inner[:idx]
				defaultVal := inner[idx+2:]
				if val := os.Getenv(varName); val != "" {
					return val
				}
				return defaultVal
			}

			return os.Getenv(inner)
		}

		// $VAR
		return os.Getenv(match[1:])
	})
}

// LoadEnvFiles loads .env.local and .env if present.
// Missing files are not an error.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}
