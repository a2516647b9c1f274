/*
 * Copyright 2026 hexleigh.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/uptrace/bun"
)

// DefaultName is the registry name used by Init and the package-level
// accessors.
const DefaultName = "default"

// The registry is a process-wide slot: a cache registered here survives
// re-execution of caller init code, so a reloaded handler reuses the
// established connection instead of dialing a new one.
var (
	registry   = cmap.New[*ConnectionCache]()
	registerMu sync.Mutex
)

// Shared returns the cache registered under name, creating and registering
// it on first call. Later calls return the existing instance and ignore cfg
// and opts entirely.
func Shared(name string, cfg *Config, opts ...Option) (*ConnectionCache, error) {
	if c, ok := registry.Get(name); ok {
		return c, nil
	}

	registerMu.Lock()
	defer registerMu.Unlock()
	if c, ok := registry.Get(name); ok {
		return c, nil
	}

	c, err := newCache(name, cfg, opts...)
	if err != nil {
		return nil, err
	}
	registry.Set(name, c)
	return c, nil
}

// Init registers the default cache. Like Shared it is idempotent: the first
// call wins and later configs are ignored.
func Init(cfg *Config, opts ...Option) (*ConnectionCache, error) {
	return Shared(DefaultName, cfg, opts...)
}

// InitFromFile registers the default cache from a YAML or JSON config file.
func InitFromFile(path string, opts ...Option) (*ConnectionCache, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return Init(cfg, opts...)
}

// Default returns the cache registered by Init.
func Default() (*ConnectionCache, error) {
	if c, ok := registry.Get(DefaultName); ok {
		return c, nil
	}
	return nil, ErrNotInitialized
}

// Lookup returns the cache registered under name.
func Lookup(name string) (*ConnectionCache, bool) {
	return registry.Get(name)
}

// Names returns the names of all registered caches.
func Names() []string {
	return registry.Keys()
}

// GetDB returns the Bun handle of the default cache, establishing the
// connection if needed.
func GetDB(ctx context.Context) (*bun.DB, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.DB(ctx)
}

// Remove closes the cache registered under name and drops it from the
// registry. Removing an unknown name is a no-op.
func Remove(name string) error {
	registerMu.Lock()
	c, ok := registry.Get(name)
	if ok {
		registry.Remove(name)
	}
	registerMu.Unlock()

	if !ok {
		return nil
	}
	return c.Close()
}

// CloseAll closes every registered cache and empties the registry.
func CloseAll() error {
	registerMu.Lock()
	defer registerMu.Unlock()

	var errs []error
	for item := range registry.IterBuffered() {
		if err := item.Val.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache %s: %w", item.Key, err))
		}
	}
	registry.Clear()
	return errors.Join(errs...)
}
