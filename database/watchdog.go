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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// watchdog periodically probes the cached connection and, with AutoReconnect
// enabled, re-establishes it after a failed probe. It starts after the first
// successful establishment and stops with the cache.
type watchdog struct {
	cache    *ConnectionCache
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

func newWatchdog(c *ConnectionCache) *watchdog {
	return &watchdog{
		cache:    c,
		interval: c.config.Connection.HealthCheckInterval.Std(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *watchdog) start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.loop()
}

// stop terminates the loop and waits for it to exit, so Close leaves no
// goroutine behind.
func (w *watchdog) stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	started := w.started
	w.mu.Unlock()

	if started {
		<-w.done
	}
}

func (w *watchdog) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			status := w.cache.HealthCheck(ctx)
			cancel()
			if !status.Healthy && w.cache.config.Features.AutoReconnect {
				w.reconnect()
			}
		case <-w.stopCh:
			return
		}
	}
}

// reconnect discards the unhealthy handle and re-establishes with
// exponential backoff. After MaxReconnectTries it gives up until the next
// failed probe starts a fresh round.
func (w *watchdog) reconnect() {
	conn := w.cache.config.Connection

	pacer := backoff.NewExponentialBackOff()
	pacer.InitialInterval = conn.ReconnectInterval.Std()
	pacer.Multiplier = conn.ReconnectMultiplier
	pacer.MaxInterval = conn.ReconnectMaxInterval.Std()
	pacer.MaxElapsedTime = 0
	pacer.Reset()

	for try := 1; try <= conn.MaxReconnectTries; try++ {
		wait := pacer.NextBackOff()
		w.cache.logger.Info("Starting database reconnect",
			"cache", w.cache.name, "try", try, "backoff", wait.Round(time.Millisecond))

		select {
		case <-time.After(wait):
		case <-w.stopCh:
			return
		}

		if err := w.cache.Reset(); err != nil {
			w.cache.logger.Warn("Error discarding unhealthy connection",
				"cache", w.cache.name, "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), conn.ConnectTimeout.Std())
		_, err := w.cache.Get(ctx)
		cancel()
		w.cache.collector.IncReconnect(err == nil)

		if err == nil {
			w.cache.logger.Info("Reconnect succeeded", "cache", w.cache.name, "try", try)
			return
		}
		w.cache.logger.Error("Reconnect failed",
			"cache", w.cache.name, "error", err, "try", try)
	}

	w.cache.logger.Error("Max reconnect attempts reached, stopping",
		"cache", w.cache.name, "tries", conn.MaxReconnectTries)
}
