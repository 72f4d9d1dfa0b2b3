//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop/helpers_test.go, exported as an
// internal package so timer/aicp/stream/sslbridge/httpclient tests share
// one set of fixtures instead of duplicating them per package.
//

// Package testhelpers provides test-only fixtures shared across this
// module's packages: a capturing [*slog.Logger] and stub [net.Conn]
// values built on github.com/bassosimone/netstub and
// github.com/bassosimone/slogstub.
package testhelpers

import (
	"context"
	"log/slog"
	"net"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
)

// NewCapturingLogger returns a logger that captures all log records into
// the returned slice, for asserting which structured events a test fired.
func NewCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// NewMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set, the minimum needed by code calling
// [github.com/bassosimone/safeconn.LocalAddr]/RemoteAddr/Network.
func NewMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}
