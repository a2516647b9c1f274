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
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func watchdogConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Driver:               DriverSQLite,
			DBName:               "watchdog_test",
			HealthCheckInterval:  Duration(20 * time.Millisecond),
			ReconnectInterval:    Duration(time.Millisecond),
			ReconnectMaxInterval: Duration(5 * time.Millisecond),
			MaxReconnectTries:    1,
		},
		Features: FeatureConfig{Watchdog: true, AutoReconnect: true},
	}
}

func TestWatchdogReconnectsUnhealthyConnection(t *testing.T) {
	defer leaktest.Check(t)()
	clearConnEnv(t)

	// stub handles carry no real pool, so every probe fails and each failed
	// probe triggers a reconnect round
	stub := &stubDialer{}
	cache, err := New(watchdogConfig(), WithDialer(stub))
	require.NoError(t, err)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return stub.calls.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond, "watchdog did not re-dial")

	require.NoError(t, cache.Close())
}

func TestWatchdogHonorsAutoReconnectOff(t *testing.T) {
	defer leaktest.Check(t)()
	clearConnEnv(t)

	cfg := watchdogConfig()
	cfg.Features.AutoReconnect = false
	stub := &stubDialer{}
	cache, err := New(cfg, WithDialer(stub))
	require.NoError(t, err)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)

	// several probe ticks pass without a single re-dial
	time.Sleep(120 * time.Millisecond)
	require.EqualValues(t, 1, stub.calls.Load())

	require.NoError(t, cache.Close())
}

func TestCloseBeforeEstablishmentStopsCleanly(t *testing.T) {
	defer leaktest.Check(t)()
	clearConnEnv(t)

	// the watchdog never started; Close must not wait on it
	cache, err := New(watchdogConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)
	require.NoError(t, cache.Close())
}
