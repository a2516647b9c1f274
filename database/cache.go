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
	"sync"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/atomic"
)

const establishFlightKey = "establish"

// Option customizes a ConnectionCache at creation time.
type Option func(*ConnectionCache)

// WithDialer replaces the default Bun-backed dialer.
func WithDialer(d Dialer) Option {
	return func(c *ConnectionCache) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger replaces the package logger for this cache.
func WithLogger(l Logger) Option {
	return func(c *ConnectionCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCollector installs a metrics collector for this cache.
func WithCollector(col Collector) Option {
	return func(c *ConnectionCache) {
		if col != nil {
			c.collector = col
		}
	}
}

// ConnectionCache memoizes one database connection for the life of the
// process. The first Get establishes it; concurrent Gets share that single
// attempt; later Gets return the realized handle without blocking. A failed
// attempt is returned to every waiter but never cached, so the next Get
// dials again.
type ConnectionCache struct {
	name      string
	config    Config
	dialer    Dialer
	logger    Logger
	collector Collector

	mu     sync.RWMutex
	handle *Handle

	flight   flightGroup[*Handle]
	attempts atomic.Int64
	closed   atomic.Bool

	watchdog *watchdog
}

// New creates a standalone cache. The config is resolved immediately:
// environment overrides are applied and a missing connection target fails
// here with ErrMissingTarget rather than at first use.
func New(cfg *Config, opts ...Option) (*ConnectionCache, error) {
	return newCache(DefaultName, cfg, opts...)
}

func newCache(name string, cfg *Config, opts ...Option) (*ConnectionCache, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	conf := *cfg
	conf.Connection.normalize()
	conf.Connection.overrideFromEnv()
	if err := conf.Connection.resolve(); err != nil {
		return nil, err
	}

	c := &ConnectionCache{
		name:      name,
		config:    conf,
		collector: Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = GetLogger()
	}
	if c.dialer == nil {
		c.dialer = newBunDialer(c.logger, c.collector)
	}
	if conf.Features.Watchdog && conf.Connection.HealthCheckInterval > 0 {
		c.watchdog = newWatchdog(c)
	}
	return c, nil
}

// Name returns the registry name of the cache.
func (c *ConnectionCache) Name() string { return c.name }

// Attempts returns how many establishment attempts have run so far.
func (c *ConnectionCache) Attempts() int64 { return c.attempts.Load() }

// Get returns the cached handle, establishing the connection on first use.
// Concurrent callers while no handle exists share a single establishment
// attempt and all receive its result. When ctx is done before the attempt
// finishes, Get returns ctx.Err() but the attempt keeps running for the
// remaining callers; a realized handle is kept for later Gets.
func (c *ConnectionCache) Get(ctx context.Context) (*Handle, error) {
	if h := c.current(); h != nil {
		return h, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.collector.AddWaiters(1)
	defer c.collector.AddWaiters(-1)

	ch := c.flight.DoChan(establishFlightKey, c.establish)
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handle returns the realized handle without waiting. Before the first
// successful establishment it fails with ErrNotEstablished instead of
// queuing the caller behind a connection that may never come up.
func (c *ConnectionCache) Handle() (*Handle, error) {
	if h := c.current(); h != nil {
		return h, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return nil, ErrNotEstablished
}

// DB returns the Bun handle, establishing the connection if needed.
func (c *ConnectionCache) DB(ctx context.Context) (*bun.DB, error) {
	h, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return h.DB(), nil
}

// SQL returns the underlying sql.DB pool, establishing the connection if
// needed.
func (c *ConnectionCache) SQL(ctx context.Context) (*sql.DB, error) {
	h, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return h.SQL(), nil
}

func (c *ConnectionCache) current() *Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// establish runs inside the single-flight group: at most one execution is in
// flight at a time, and every concurrent Get shares its result.
func (c *ConnectionCache) establish() (*Handle, error) {
	// an earlier flight may have realized the handle between the caller's
	// fast-path check and joining this one
	if h := c.current(); h != nil {
		return h, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	conn := c.config.Connection
	attempt := c.attempts.Inc()
	c.logger.Debug("Establishing database connection",
		"cache", c.name, "driver", conn.Driver, "attempt", attempt, "target", conn.target())

	// The dial runs on a detached context bounded only by ConnectTimeout:
	// callers abandoning their wait must not cancel an attempt whose result
	// the remaining callers share.
	ctx, cancel := context.WithTimeout(context.Background(), conn.ConnectTimeout.Std())
	defer cancel()

	start := time.Now()
	h, err := c.dialer.Dial(ctx, DialOptions{
		Connection: conn,
		Features:   c.config.Features,
		Attempt:    attempt,
	})
	elapsed := time.Since(start)
	c.collector.ObserveEstablish(conn.Driver, elapsed, err)
	if err != nil {
		c.logger.Error("Database connection failed",
			"cache", c.name, "driver", conn.Driver, "attempt", attempt,
			"kind", ClassifyDialError(err).String(),
			"elapsed", elapsed.Round(time.Millisecond), "error", err)
		return nil, err
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = h.close()
		return nil, ErrClosed
	}
	c.handle = h
	c.mu.Unlock()

	c.logger.Info("Database connected successfully:",
		"cache", c.name, "driver", conn.Driver, "conn_id", h.ID(),
		"attempt", attempt, "target", conn.target())

	if c.watchdog != nil {
		c.watchdog.start()
	}
	return h, nil
}

// Reset discards the realized handle, closing its pool. The next Get dials a
// fresh connection. Callers still holding the old handle will see errors
// from its closed pool.
func (c *ConnectionCache) Reset() error {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	c.logger.Info("Discarding cached database connection",
		"cache", c.name, "conn_id", h.ID())
	return h.close()
}

// Close shuts the cache down: the watchdog stops, the handle is discarded,
// and every later accessor fails with ErrClosed. Close is idempotent.
func (c *ConnectionCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.watchdog != nil {
		c.watchdog.stop()
	}
	c.logger.Info("Closing connection cache", "cache", c.name)
	return c.Reset()
}

// HealthCheck probes the cached connection. Without a realized handle it
// reports unhealthy immediately; it never triggers an establishment.
func (c *ConnectionCache) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	h := c.current()
	if h == nil {
		if c.closed.Load() {
			status.LastError = ErrClosed.Error()
		} else {
			status.LastError = ErrNotEstablished.Error()
		}
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := h.Ping(ctxTimeout)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Healthy = false
		status.Connected = false
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := h.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConns

	c.collector.ObserveHealthCheck(status.Healthy, status.ResponseTime)
	return status
}

// Stats snapshots pool statistics of the current handle. Without one it
// returns zero statistics.
func (c *ConnectionCache) Stats() *DBStats {
	return c.current().Stats()
}
