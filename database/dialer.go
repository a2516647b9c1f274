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
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Dialer performs a single establishment attempt. The default implementation
// opens a Bun handle for the configured driver; tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (*Handle, error)
}

// DialOptions carries everything a Dialer needs for one establishment
// attempt. Connection is a resolved copy, safe to mutate.
type DialOptions struct {
	Connection ConnectionConfig
	Features   FeatureConfig
	Attempt    int64
}

type bunDialer struct {
	logger    Logger
	collector Collector
}

func newBunDialer(logger Logger, collector Collector) *bunDialer {
	return &bunDialer{logger: logger, collector: collector}
}

func (d *bunDialer) Dial(ctx context.Context, opts DialOptions) (*Handle, error) {
	cc := opts.Connection
	sqlDB, db, err := d.open(&cc)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cc.Driver, err)
	}

	sqlDB.SetMaxIdleConns(cc.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cc.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cc.ConnMaxLifetime.Std())
	sqlDB.SetConnMaxIdleTime(cc.ConnMaxIdleTime.Std())

	d.attachHooks(db, &opts)

	// sql.Open only prepares the pool. Without LazyConnect the attempt is
	// validated here so an unreachable target surfaces now, not when the
	// first query times out.
	if !cc.LazyConnect {
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("database connection test failed: %w", err)
		}
	}

	return NewHandle(cc.Driver, db, sqlDB, opts.Attempt), nil
}

func (d *bunDialer) open(cc *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	switch cc.Driver {
	case DriverMySQL:
		return d.openMySQL(cc)
	case DriverPostgres:
		return d.openPostgres(cc)
	case DriverSQLite:
		return d.openSQLite(cc)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cc.Driver)
	}
}

func (d *bunDialer) openMySQL(cc *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sqlDB, err := sql.Open("mysql", mysqlDSN(cc))
	if err != nil {
		return nil, nil, err
	}

	db := bun.NewDB(sqlDB, mysqldialect.New())
	return sqlDB, db, nil
}

func (d *bunDialer) openPostgres(cc *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sqlDB, err := sql.Open("postgres", postgresDSN(cc))
	if err != nil {
		return nil, nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	return sqlDB, db, nil
}

func (d *bunDialer) openSQLite(cc *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, sqliteDSN(cc))
	if err != nil {
		return nil, nil, err
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	return sqlDB, db, nil
}

func mysqlDSN(cc *ConnectionConfig) string {
	if cc.DSN != "" {
		return cc.DSN
	}
	charset := cc.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cc.Username,
		cc.Password,
		cc.Host,
		cc.Port,
		cc.DBName,
		charset,
		cc.ConnectTimeout.Std(),
		cc.ReadTimeout.Std(),
		cc.WriteTimeout.Std(),
	)
}

func postgresDSN(cc *ConnectionConfig) string {
	if cc.DSN != "" {
		return cc.DSN
	}
	sslMode := cc.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cc.Username,
		cc.Password,
		cc.Host,
		cc.Port,
		cc.DBName,
		sslMode,
		int(cc.ConnectTimeout.Std().Seconds()),
	)
}

func sqliteDSN(cc *ConnectionConfig) string {
	if cc.DSN != "" {
		return cc.DSN
	}
	return fmt.Sprintf("%s.db", cc.DBName)
}

func (d *bunDialer) attachHooks(db *bun.DB, opts *DialOptions) {
	if opts.Features.QueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	if opts.Features.SlowQueryLog && opts.Connection.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(opts.Connection.SlowQueryTime.Std(), d.logger))
	}

	if opts.Features.Metrics && d.collector != nil {
		db.AddQueryHook(&queryMetricsHook{collector: d.collector})
	}
}
