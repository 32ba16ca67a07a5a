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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileProvider loads config from a local file and watches for changes.
type FileProvider struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewFileProvider creates a provider that reads from a local file.
func NewFileProvider(path string) (*FileProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	return &FileProvider{
		path: absPath,
	}, nil
}

// Type returns TypeFile.
func (p *FileProvider) Type() Type {
	return TypeFile
}

// Load reads the config file.
func (p *FileProvider) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", p.path, err)
	}
	return data, nil
}

// Watch starts watching the config file for changes.
// Returns a channel that receives a value when the file changes.
func (p *FileProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("provider is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	p.watcher = watcher

	// Watch the directory containing the file
	// (some systems don't support watching files directly)
	configDir := filepath.Dir(p.path)
	configFile := filepath.Base(p.path)

	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", configDir, err)
	}

	ch := make(chan struct{}, 1) // Buffered to avoid blocking

	go p.watchLoop(ctx, watcher, configFile, ch)

	slog.Info("Watching config file", "path", p.path)
	return ch, nil
}

func (p *FileProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, configFile string, ch chan<- struct{}) {
	defer close(ch)
	defer watcher.Close()

	// Debounce timer to coalesce rapid changes
	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFile {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					select {
					case ch <- struct{}{}:
						slog.Debug("Config file changed", "path", p.path)
					default:
						// Channel full, change already pending
					}
				})
			} else if event.Op&fsnotify.Remove == fsnotify.Remove {
				slog.Warn("Config file was deleted", "path", p.path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

// Close stops watching and releases resources.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}
