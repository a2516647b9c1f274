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
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNilConfig is returned when a cache is created without a config.
	ErrNilConfig = errors.New("database configuration cannot be empty")

	// ErrMissingTarget is returned when neither a DSN, a database name, nor
	// the DATABASE_URL environment variable identifies a connection target.
	ErrMissingTarget = errors.New("database target is not configured: set connection.dsn, connection.dbname, or " + EnvTarget)

	// ErrMissingDriver is returned when the driver is not set and cannot be
	// inferred from the DSN.
	ErrMissingDriver = errors.New("database driver is not configured and could not be inferred from the DSN")

	// ErrUnsupportedDriver is returned for driver names outside the
	// supported set.
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrNotEstablished is returned by non-blocking accessors when no
	// connection has been realized yet. Call Get to establish one.
	ErrNotEstablished = errors.New("database connection not established")

	// ErrClosed is returned once a cache has been closed.
	ErrClosed = errors.New("connection cache is closed")

	// ErrNotInitialized is returned by package-level accessors before the
	// default cache has been registered.
	ErrNotInitialized = errors.New("default connection cache not initialized")
)

// DialErrorKind coarsely classifies why an establishment attempt failed.
// The classification feeds logs and metrics only; callers retry by calling
// Get again regardless of the kind.
type DialErrorKind int

const (
	DialErrUnknown DialErrorKind = iota
	DialErrUnreachable
	DialErrTimeout
	DialErrAuth
	DialErrNoDatabase
)

func (k DialErrorKind) String() string {
	switch k {
	case DialErrUnreachable:
		return "unreachable"
	case DialErrTimeout:
		return "timeout"
	case DialErrAuth:
		return "auth"
	case DialErrNoDatabase:
		return "no_database"
	default:
		return "unknown"
	}
}

// ClassifyDialError maps an establishment error to a DialErrorKind using
// typed driver errors where available and SQLSTATE or message sniffing
// otherwise.
func ClassifyDialError(err error) DialErrorKind {
	if err == nil {
		return DialErrUnknown
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1044, 1045, 1698:
			return DialErrAuth
		case 1049:
			return DialErrNoDatabase
		case 1040, 1203:
			return DialErrUnreachable
		default:
			return DialErrUnknown
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DialErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return DialErrTimeout
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "sqlstate 28p01"),
		strings.Contains(s, "sqlstate 28000"),
		strings.Contains(s, "password authentication failed"),
		strings.Contains(s, "access denied"),
		strings.Contains(s, "authentication failed"):
		return DialErrAuth
	case strings.Contains(s, "sqlstate 3d000"),
		strings.Contains(s, "unknown database"),
		strings.Contains(s, "database") && strings.Contains(s, "does not exist"):
		return DialErrNoDatabase
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "network is unreachable"),
		strings.Contains(s, "sqlstate 57p03"),
		strings.Contains(s, "connection reset"):
		return DialErrUnreachable
	case strings.Contains(s, "i/o timeout"),
		strings.Contains(s, "timeout"):
		return DialErrTimeout
	default:
		return DialErrUnknown
	}
}
