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
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyDialError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want DialErrorKind
	}{
		{"nil", nil, DialErrUnknown},
		{"mysql access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied for user"}, DialErrAuth},
		{"mysql wrapped", fmt.Errorf("connect: %w", &mysql.MySQLError{Number: 1049, Message: "Unknown database 'app'"}), DialErrNoDatabase},
		{"mysql too many connections", &mysql.MySQLError{Number: 1040, Message: "Too many connections"}, DialErrUnreachable},
		{"deadline", context.DeadlineExceeded, DialErrTimeout},
		{"net timeout", timeoutErr{}, DialErrTimeout},
		{"pq auth", errors.New(`pq: password authentication failed for user "app"`), DialErrAuth},
		{"pq sqlstate auth", errors.New("FATAL: role does not pass (SQLSTATE 28P01)"), DialErrAuth},
		{"pq missing db", errors.New(`FATAL: database "app" does not exist (SQLSTATE 3D000)`), DialErrNoDatabase},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), DialErrUnreachable},
		{"no such host", errors.New("dial tcp: lookup db.internal: no such host"), DialErrUnreachable},
		{"opaque", errors.New("something odd happened"), DialErrUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyDialError(tc.err))
		})
	}
}

func TestDialErrorKindString(t *testing.T) {
	assert.Equal(t, "auth", DialErrAuth.String())
	assert.Equal(t, "timeout", DialErrTimeout.String())
	assert.Equal(t, "unreachable", DialErrUnreachable.String())
	assert.Equal(t, "no_database", DialErrNoDatabase.String())
	assert.Equal(t, "unknown", DialErrUnknown.String())
	assert.Equal(t, "unknown", DialErrorKind(99).String())
}
