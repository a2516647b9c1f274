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
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestSharedCreatesOnce(t *testing.T) {
	clearConnEnv(t)
	name := "registry-shared"
	defer func() { _ = Remove(name) }()

	c1, err := Shared(name, testConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)

	// later calls return the existing cache and ignore the config entirely,
	// even a nil one
	c2, err := Shared(name, nil)
	require.NoError(t, err)
	require.Same(t, c1, c2)

	got, ok := Lookup(name)
	require.True(t, ok)
	require.Same(t, c1, got)
	require.Contains(t, Names(), name)
}

func TestSharedConcurrentCreation(t *testing.T) {
	defer leaktest.Check(t)()
	clearConnEnv(t)
	name := "registry-concurrent"
	defer func() { _ = Remove(name) }()

	const n = 8
	caches := make([]*ConnectionCache, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			caches[i], errs[i] = Shared(name, testConfig(), WithDialer(&stubDialer{}))
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Same(t, caches[0], caches[i])
	}
}

func TestInitAndDefault(t *testing.T) {
	clearConnEnv(t)
	defer func() { _ = Remove(DefaultName) }()

	_, err := Default()
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = GetDB(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)

	c, err := Init(testConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)
	require.Equal(t, DefaultName, c.Name())

	got, err := Default()
	require.NoError(t, err)
	require.Same(t, c, got)
}

func TestRemoveClosesCache(t *testing.T) {
	clearConnEnv(t)
	name := "registry-remove"

	c, err := Shared(name, testConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, Remove(name))
	_, ok := Lookup(name)
	require.False(t, ok)
	_, err = c.Get(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, Remove(name), "removing an unknown name is a no-op")
}

func TestCloseAll(t *testing.T) {
	clearConnEnv(t)

	c1, err := Shared("registry-closeall-1", testConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)
	c2, err := Shared("registry-closeall-2", testConfig(), WithDialer(&stubDialer{}))
	require.NoError(t, err)

	require.NoError(t, CloseAll())

	_, ok := Lookup("registry-closeall-1")
	require.False(t, ok)
	_, err = c1.Handle()
	require.ErrorIs(t, err, ErrClosed)
	_, err = c2.Handle()
	require.ErrorIs(t, err, ErrClosed)
}
