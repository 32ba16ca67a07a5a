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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/relay/pkg/config"
)

// SchemaCmd generates a JSON Schema for the configuration.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://relay.dev/schemas/config.json"
	schema.Title = "Relay Configuration Schema"
	schema.Description = "Configuration schema for the relay agent gateway"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	var out []byte
	var err error
	if c.Compact {
		out, err = json.Marshal(schema)
	} else {
		out, err = json.MarshalIndent(schema, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Println(string(out))
	return nil
}
