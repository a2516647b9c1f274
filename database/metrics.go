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
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives cache events for metrics. Implementations must be safe
// for concurrent use. Noop discards everything; NewPrometheusCollector
// exports to a Prometheus registry.
type Collector interface {
	// ObserveEstablish records the outcome and duration of one
	// establishment attempt.
	ObserveEstablish(driver string, elapsed time.Duration, err error)
	// AddWaiters adjusts the number of callers currently blocked on an
	// in-flight establishment.
	AddWaiters(delta int)
	// ObserveHealthCheck records the outcome and duration of a health probe.
	ObserveHealthCheck(healthy bool, elapsed time.Duration)
	// IncReconnect counts one reconnect attempt by outcome.
	IncReconnect(success bool)
	// IncQuery counts one completed query by operation and outcome.
	IncQuery(operation string, err error)
}

type noopCollector struct{}

// Noop returns a Collector that discards all events.
func Noop() Collector { return noopCollector{} }

func (noopCollector) ObserveEstablish(string, time.Duration, error) {}
func (noopCollector) AddWaiters(int)                                {}
func (noopCollector) ObserveHealthCheck(bool, time.Duration)        {}
func (noopCollector) IncReconnect(bool)                             {}
func (noopCollector) IncQuery(string, error)                        {}

// PrometheusCollector exports cache events as Prometheus metrics under the
// dbonce_ namespace.
type PrometheusCollector struct {
	establishTotal      *prometheus.CounterVec
	establishDuration   *prometheus.HistogramVec
	waiters             prometheus.Gauge
	healthChecks        *prometheus.CounterVec
	healthCheckDuration prometheus.Histogram
	reconnects          *prometheus.CounterVec
	queries             *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the cache metrics with reg and returns a
// collector feeding them. Metrics already registered, for example by an
// earlier cache in the same process, are reused rather than duplicated.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		establishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbonce_establish_total",
			Help: "Connection establishment attempts by driver and outcome.",
		}, []string{"driver", "outcome"}),
		establishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbonce_establish_duration_seconds",
			Help:    "Connection establishment duration by driver.",
			Buckets: prometheus.DefBuckets,
		}, []string{"driver"}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbonce_establish_waiters",
			Help: "Callers currently waiting on an in-flight establishment.",
		}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbonce_health_checks_total",
			Help: "Health check probes by outcome.",
		}, []string{"outcome"}),
		healthCheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbonce_health_check_duration_seconds",
			Help:    "Health check probe duration.",
			Buckets: prometheus.DefBuckets,
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbonce_reconnects_total",
			Help: "Automatic reconnect attempts by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbonce_queries_total",
			Help: "Completed queries by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	var err error
	if c.establishTotal, err = register(reg, c.establishTotal); err != nil {
		return nil, err
	}
	if c.establishDuration, err = register(reg, c.establishDuration); err != nil {
		return nil, err
	}
	if c.waiters, err = register(reg, c.waiters); err != nil {
		return nil, err
	}
	if c.healthChecks, err = register(reg, c.healthChecks); err != nil {
		return nil, err
	}
	if c.healthCheckDuration, err = register(reg, c.healthCheckDuration); err != nil {
		return nil, err
	}
	if c.reconnects, err = register(reg, c.reconnects); err != nil {
		return nil, err
	}
	if c.queries, err = register(reg, c.queries); err != nil {
		return nil, err
	}
	return c, nil
}

// register adds c to reg, returning the already registered collector when
// one with the same description exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func (c *PrometheusCollector) ObserveEstablish(driver string, elapsed time.Duration, err error) {
	c.establishTotal.WithLabelValues(driver, outcomeLabel(err == nil)).Inc()
	c.establishDuration.WithLabelValues(driver).Observe(elapsed.Seconds())
}

func (c *PrometheusCollector) AddWaiters(delta int) {
	c.waiters.Add(float64(delta))
}

func (c *PrometheusCollector) ObserveHealthCheck(healthy bool, elapsed time.Duration) {
	c.healthChecks.WithLabelValues(outcomeLabel(healthy)).Inc()
	c.healthCheckDuration.Observe(elapsed.Seconds())
}

func (c *PrometheusCollector) IncReconnect(success bool) {
	c.reconnects.WithLabelValues(outcomeLabel(success)).Inc()
}

func (c *PrometheusCollector) IncQuery(operation string, err error) {
	c.queries.WithLabelValues(operation, outcomeLabel(err == nil)).Inc()
}

// StatsCollector is a prometheus.Collector exposing pool statistics of a
// cache. Unlike a collector bound to one sql.DB, it follows the cache's
// current handle across resets and reconnects.
type StatsCollector struct {
	cache *ConnectionCache

	maxOpen           *prometheus.Desc
	open              *prometheus.Desc
	inUse             *prometheus.Desc
	idle              *prometheus.Desc
	waitCount         *prometheus.Desc
	waitDuration      *prometheus.Desc
	maxIdleClosed     *prometheus.Desc
	maxIdleTimeClosed *prometheus.Desc
	maxLifetimeClosed *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector returns a pool statistics collector for cache, labeled
// with the cache name.
func NewStatsCollector(cache *ConnectionCache) *StatsCollector {
	labels := prometheus.Labels{"cache": cache.Name()}
	return &StatsCollector{
		cache: cache,
		maxOpen: prometheus.NewDesc("dbonce_pool_max_open_connections",
			"Maximum number of open connections to the database.", nil, labels),
		open: prometheus.NewDesc("dbonce_pool_open_connections",
			"Established connections both in use and idle.", nil, labels),
		inUse: prometheus.NewDesc("dbonce_pool_in_use_connections",
			"Connections currently in use.", nil, labels),
		idle: prometheus.NewDesc("dbonce_pool_idle_connections",
			"Idle connections.", nil, labels),
		waitCount: prometheus.NewDesc("dbonce_pool_wait_count_total",
			"Total connections waited for.", nil, labels),
		waitDuration: prometheus.NewDesc("dbonce_pool_wait_duration_seconds_total",
			"Total time blocked waiting for a connection.", nil, labels),
		maxIdleClosed: prometheus.NewDesc("dbonce_pool_max_idle_closed_total",
			"Connections closed due to SetMaxIdleConns.", nil, labels),
		maxIdleTimeClosed: prometheus.NewDesc("dbonce_pool_max_idle_time_closed_total",
			"Connections closed due to SetConnMaxIdleTime.", nil, labels),
		maxLifetimeClosed: prometheus.NewDesc("dbonce_pool_max_lifetime_closed_total",
			"Connections closed due to SetConnMaxLifetime.", nil, labels),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpen
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
	ch <- c.maxIdleClosed
	ch <- c.maxIdleTimeClosed
	ch <- c.maxLifetimeClosed
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stats.MaxOpenConns))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenConns))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, stats.WaitDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.maxIdleClosed, prometheus.CounterValue, float64(stats.MaxIdleClosed))
	ch <- prometheus.MustNewConstMetric(c.maxIdleTimeClosed, prometheus.CounterValue, float64(stats.MaxIdleTimeClosed))
	ch <- prometheus.MustNewConstMetric(c.maxLifetimeClosed, prometheus.CounterValue, float64(stats.MaxLifetimeClosed))
}
