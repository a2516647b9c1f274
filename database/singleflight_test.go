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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestFlightGroupSharesExecution(t *testing.T) {
	var g flightGroup[int]
	var executions atomic.Int64

	const n = 10
	results := make([]int, n)
	errs := make([]error, n)
	shared := make([]bool, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i], shared[i] = g.Do("key", func() (int, error) {
				executions.Inc()
				time.Sleep(30 * time.Millisecond)
				return 42, nil
			})
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, executions.Load())
	sharedCount := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
		if shared[i] {
			sharedCount++
		}
	}
	assert.GreaterOrEqual(t, sharedCount, n-1)
}

func TestFlightGroupDoesNotCacheResults(t *testing.T) {
	var g flightGroup[string]
	var executions atomic.Int64

	errBoom := errors.New("boom")
	_, err, _ := g.Do("key", func() (string, error) {
		executions.Inc()
		return "", errBoom
	})
	require.ErrorIs(t, err, errBoom)

	v, err, _ := g.Do("key", func() (string, error) {
		executions.Inc()
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 2, executions.Load(), "a finished flight must not be memoized")
}

func TestFlightGroupDoChan(t *testing.T) {
	var g flightGroup[int]

	ch := g.DoChan("key", func() (int, error) {
		return 7, nil
	})
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Equal(t, 7, res.Val)
	case <-time.After(time.Second):
		t.Fatal("DoChan result not delivered")
	}
}

func TestFlightGroupDoChanAbandoned(t *testing.T) {
	var g flightGroup[int]
	done := make(chan struct{})

	// nobody reads this channel; the buffered send must not block the flight
	_ = g.DoChan("key", func() (int, error) {
		defer close(done)
		return 1, nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flight did not complete without a reader")
	}
}
