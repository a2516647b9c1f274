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

import "golang.org/x/sync/singleflight"

// flightGroup is a typed wrapper around singleflight.Group. Concurrent calls
// with the same key share one execution of fn; the key is forgotten once fn
// returns, so a failed execution does not poison later calls.
type flightGroup[T any] struct {
	group singleflight.Group
}

type flightResult[T any] struct {
	Val    T
	Err    error
	Shared bool
}

func (g *flightGroup[T]) Do(key string, fn func() (T, error)) (T, error, bool) {
	v, err, shared := g.group.Do(key, func() (interface{}, error) {
		return fn()
	})
	if v == nil {
		var zero T
		return zero, err, shared
	}
	return v.(T), err, shared
}

// DoChan runs fn through the group and delivers the result on the returned
// channel. The channel is buffered, so a caller that stops listening does not
// block or cancel the shared execution.
func (g *flightGroup[T]) DoChan(key string, fn func() (T, error)) <-chan flightResult[T] {
	ch := make(chan flightResult[T], 1)
	go func() {
		v, err, shared := g.Do(key, fn)
		ch <- flightResult[T]{Val: v, Err: err, Shared: shared}
	}()
	return ch
}

func (g *flightGroup[T]) Forget(key string) {
	g.group.Forget(key)
}
