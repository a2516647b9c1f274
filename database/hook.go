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
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// SlowQueryHook logs queries that exceed the configured threshold through
// the package Logger. Failed queries are skipped; they surface through their
// own error paths.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

// NewSlowQueryHook returns a hook that warns about queries slower than
// slowTime.
func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{slowTime: slowTime, logger: logger}
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration <= h.slowTime {
		return
	}
	h.logger.Warn("Slow query detected",
		"duration", duration.Round(time.Microsecond),
		"operation", event.Operation(),
		"query", colorQuery(event),
	)
}

// queryMetricsHook counts completed queries per operation and outcome.
// sql.ErrNoRows and sql.ErrTxDone are ordinary outcomes, not failures.
type queryMetricsHook struct {
	collector Collector
}

var _ bun.QueryHook = (*queryMetricsHook)(nil)

func (h *queryMetricsHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryMetricsHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if h.collector == nil {
		return
	}
	err := event.Err
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	h.collector.IncQuery(event.Operation(), err)
}

func colorQuery(event *bun.QueryEvent) string {
	switch event.Operation() {
	case "SELECT":
		return color.New(color.FgGreen).Sprint(event.Query)
	case "INSERT":
		return color.New(color.FgBlue).Sprint(event.Query)
	case "UPDATE":
		return color.New(color.FgYellow).Sprint(event.Query)
	case "DELETE":
		return color.New(color.FgMagenta).Sprint(event.Query)
	default:
		return color.New(color.FgRed).Sprint(event.Query)
	}
}
