// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// BusBackend identifies the message bus recorder backend.
type BusBackend string

const (
	// BusBackendInMemory keeps the audit trail in process memory (default).
	BusBackendInMemory BusBackend = "inmemory"

	// BusBackendSQL persists the audit trail to a SQL database.
	BusBackendSQL BusBackend = "sql"
)

// BusConfig configures the message bus recorder.
type BusConfig struct {
	// Backend is one of inmemory, sql.
	Backend BusBackend `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Driver is one of sqlite, postgres, mysql (sql backend only).
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`

	// DSN is the connection string. For sqlite this is a file path.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// MaxConns caps open connections (ignored for sqlite, which is
	// serialized on a single connection).
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty"`

	// MaxIdle caps idle connections.
	MaxIdle int `yaml:"max_idle,omitempty" json:"max_idle,omitempty"`
}

// SetDefaults fills zero values with defaults.
func (c *BusConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BusBackendInMemory
	}
	if c.Backend == BusBackendSQL {
		if c.Driver == "" {
			c.Driver = "sqlite"
		}
		if c.Driver == "sqlite" && c.DSN == "" {
			c.DSN = ".relay/relay.db"
		}
		if c.MaxConns == 0 {
			c.MaxConns = 10
		}
		if c.MaxIdle == 0 {
			c.MaxIdle = 5
		}
	}
}

// Validate checks the bus configuration.
func (c *BusConfig) Validate() error {
	switch c.Backend {
	case BusBackendInMemory:
		return nil
	case BusBackendSQL:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch c.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported driver %q (supported: sqlite, postgres, mysql)", c.Driver)
	}

	if c.DSN == "" {
		return fmt.Errorf("dsn is required for the sql backend")
	}

	return nil
}

// DriverName maps the config driver to the registered database/sql driver.
// Config uses "sqlite" but go-sqlite3 registers as "sqlite3".
func (c *BusConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}
