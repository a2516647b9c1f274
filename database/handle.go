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
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Handle is a realized database connection: the Bun handle, the underlying
// sql.DB pool, and identity metadata for logging and diagnostics. A Handle is
// immutable once created; the owning cache closes it on Reset or Close.
type Handle struct {
	id            string
	driver        string
	db            *bun.DB
	sqlDB         *sql.DB
	attempt       int64
	establishedAt time.Time
}

// NewHandle wraps an established Bun connection. Dialer implementations call
// this after a successful dial.
func NewHandle(driver string, db *bun.DB, sqlDB *sql.DB, attempt int64) *Handle {
	return &Handle{
		id:            uuid.NewString(),
		driver:        driver,
		db:            db,
		sqlDB:         sqlDB,
		attempt:       attempt,
		establishedAt: time.Now(),
	}
}

// ID returns the unique identifier assigned at establishment.
func (h *Handle) ID() string { return h.id }

// Driver returns the driver name the handle was dialed with.
func (h *Handle) Driver() string { return h.driver }

// DB returns the Bun handle.
func (h *Handle) DB() *bun.DB { return h.db }

// SQL returns the underlying sql.DB pool.
func (h *Handle) SQL() *sql.DB { return h.sqlDB }

// Attempt returns which establishment attempt produced this handle.
func (h *Handle) Attempt() int64 { return h.attempt }

// EstablishedAt returns when the handle was created.
func (h *Handle) EstablishedAt() time.Time { return h.establishedAt }

// Ping verifies the connection is still alive.
func (h *Handle) Ping(ctx context.Context) error {
	if h == nil || h.db == nil {
		return ErrNotEstablished
	}
	return h.db.PingContext(ctx)
}

// Stats snapshots the pool statistics. It returns the zero value when the
// handle carries no pool, as test doubles may.
func (h *Handle) Stats() *DBStats {
	if h == nil || h.sqlDB == nil {
		return &DBStats{}
	}
	s := h.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

func (h *Handle) close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}
