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

// Package dbonce memoizes database connections for the life of the process.
//
// The first use establishes the connection; every later use returns the same
// realized handle without blocking. Concurrent first uses share a single
// establishment attempt, and a failed attempt is never cached, so the next
// use dials again.
package dbonce

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/hexleigh/dbonce/database"
)

// Init registers the process-wide default connection cache. It is
// idempotent: the first call wins and later configs are ignored, so code
// that re-executes on reload keeps reusing the established connection.
func Init(cfg *database.Config, opts ...database.Option) (*database.ConnectionCache, error) {
	return database.Init(cfg, opts...)
}

// InitFromFile registers the default cache from a YAML or JSON config file.
func InitFromFile(path string, opts ...database.Option) (*database.ConnectionCache, error) {
	return database.InitFromFile(path, opts...)
}

// Shared returns the cache registered under name, creating it on first call.
func Shared(name string, cfg *database.Config, opts ...database.Option) (*database.ConnectionCache, error) {
	return database.Shared(name, cfg, opts...)
}

// DB returns the Bun handle of the default cache, establishing the
// connection on first use.
func DB(ctx context.Context) (*bun.DB, error) {
	return database.GetDB(ctx)
}

// Conn returns the default cache's connection handle, establishing it on
// first use.
func Conn(ctx context.Context) (*database.Handle, error) {
	c, err := database.Default()
	if err != nil {
		return nil, err
	}
	return c.Get(ctx)
}

// Handle returns the realized handle without waiting. Before the first
// establishment it fails with database.ErrNotEstablished.
func Handle() (*database.Handle, error) {
	c, err := database.Default()
	if err != nil {
		return nil, err
	}
	return c.Handle()
}

// Health probes the default cache. Before Init it reports unhealthy instead
// of failing.
func Health(ctx context.Context) *database.HealthStatus {
	c, err := database.Default()
	if err != nil {
		return &database.HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     err.Error(),
			LastCheckTime: time.Now(),
		}
	}
	return c.HealthCheck(ctx)
}

// Stats returns pool statistics of the default cache, zero-valued before
// Init.
func Stats() *database.DBStats {
	c, err := database.Default()
	if err != nil {
		return &database.DBStats{}
	}
	return c.Stats()
}

// Close closes the default cache and removes it from the registry.
func Close() error {
	return database.Remove(database.DefaultName)
}

// CloseAll closes every registered cache.
func CloseAll() error {
	return database.CloseAll()
}
