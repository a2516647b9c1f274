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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range labels {
				if got[k] != v {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestPrometheusCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c.ObserveEstablish(DriverSQLite, 12*time.Millisecond, nil)
	c.ObserveEstablish(DriverSQLite, 5*time.Millisecond, errors.New("boom"))
	c.AddWaiters(2)
	c.AddWaiters(-1)
	c.ObserveHealthCheck(true, time.Millisecond)
	c.ObserveHealthCheck(false, time.Millisecond)
	c.IncReconnect(true)
	c.IncQuery("SELECT", nil)
	c.IncQuery("SELECT", errors.New("syntax"))

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 1.0, metricValue(t, families, "dbonce_establish_total",
		map[string]string{"driver": "sqlite", "outcome": "success"}))
	assert.Equal(t, 1.0, metricValue(t, families, "dbonce_establish_total",
		map[string]string{"driver": "sqlite", "outcome": "error"}))
	assert.Equal(t, 2.0, metricValue(t, families, "dbonce_establish_duration_seconds",
		map[string]string{"driver": "sqlite"}))
	assert.Equal(t, 1.0, metricValue(t, families, "dbonce_establish_waiters", nil))
	assert.Equal(t, 1.0, metricValue(t, families, "dbonce_health_checks_total",
		map[string]string{"outcome": "success"}))
	assert.Equal(t, 1.0, metricValue(t, families, "dbonce_reconnects_total",
		map[string]string{"outcome": "success"}))
	assert.Equal(t, 1.0, metricValue(t, families, "dbonce_queries_total",
		map[string]string{"operation": "SELECT", "outcome": "error"}))
}

func TestPrometheusCollectorReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c1, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	// a second cache registering against the same registry must reuse the
	// existing metrics instead of failing
	c2, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c1.IncReconnect(false)
	c2.IncReconnect(false)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, metricValue(t, families, "dbonce_reconnects_total",
		map[string]string{"outcome": "error"}))
}

func TestStatsCollector(t *testing.T) {
	clearConnEnv(t)

	cache, err := New(testConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewStatsCollector(cache)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 0.0, metricValue(t, families, "dbonce_pool_open_connections",
		map[string]string{"cache": DefaultName}))
	assert.Equal(t, 0.0, metricValue(t, families, "dbonce_pool_max_open_connections",
		map[string]string{"cache": DefaultName}))
}

func TestNoopCollector(t *testing.T) {
	c := Noop()
	c.ObserveEstablish(DriverMySQL, time.Second, nil)
	c.AddWaiters(1)
	c.ObserveHealthCheck(true, time.Second)
	c.IncReconnect(false)
	c.IncQuery("INSERT", nil)
}
