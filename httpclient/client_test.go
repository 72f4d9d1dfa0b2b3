// SPDX-License-Identifier: GPL-3.0-or-later

package httpclient_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/httpclient"
	"github.com/stretchr/testify/require"
)

func startPlainServer(t *testing.T, response []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write(response)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

// readAllBody drains a [*httpclient.Client] response via Read until the
// closed EOF marker fires, per spec §4.7's read-path contract.
func readAllBody(t *testing.T, c *httpclient.Client) []byte {
	t.Helper()
	var out []byte
	done := make(chan struct{})
	var read func()
	read = func() {
		ok := c.Read(4096, func(st *httpclient.Status, payload []byte, priv any) bool {
			if len(payload) > 0 {
				out = append(out, payload...)
				go read()
				return true
			}
			close(done)
			return true
		}, nil)
		if !ok {
			close(done)
		}
	}
	go read()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading body")
	}
	return out
}

func TestClientOpenSimpleResponse(t *testing.T) {
	body := "hello world"
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", len(body), body)
	addr := startPlainServer(t, []byte(resp))

	p := aicp.New(aicp.NewConfig())
	go p.Run(context.Background())
	defer p.Exit(context.Background())

	c := httpclient.New(p, nil)
	opt := httpclient.NewOptions()
	_, err := opt.WithURL("http://" + addr + "/")
	require.NoError(t, err)
	c.Ctrl(opt)

	opened := make(chan *httpclient.Status, 1)
	require.True(t, c.Open(func(st *httpclient.Status, payload []byte, priv any) bool {
		opened <- st
		return true
	}, nil))

	var st *httpclient.Status
	select {
	case st = <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for open callback")
	}
	require.Equal(t, 200, st.Code)
	require.Equal(t, body, string(readAllBody(t, c)))
}

func TestClientOpenGzipResponse(t *testing.T) {
	var gzbuf bytes.Buffer
	gz := gzip.NewWriter(&gzbuf)
	gz.Write([]byte("hello world"))
	gz.Close()

	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nContent-Encoding: gzip\r\nConnection: close\r\n\r\n", gzbuf.Len())
	full := append([]byte(resp), gzbuf.Bytes()...)
	addr := startPlainServer(t, full)

	p := aicp.New(aicp.NewConfig())
	go p.Run(context.Background())
	defer p.Exit(context.Background())

	c := httpclient.New(p, nil)
	opt := httpclient.NewOptions()
	_, err := opt.WithURL("http://" + addr + "/")
	require.NoError(t, err)
	c.Ctrl(opt)

	opened := make(chan *httpclient.Status, 1)
	require.True(t, c.Open(func(st *httpclient.Status, payload []byte, priv any) bool {
		opened <- st
		return true
	}, nil))

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for open callback")
	}
	require.Equal(t, "hello world", string(readAllBody(t, c)))
}
