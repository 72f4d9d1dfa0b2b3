//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.5/§4.6 -- the async stream pipeline's socket-
// stream role, played here by a TLS-bridged connection instead of a raw
// socket (the HTTP client treats both uniformly via [stream.Stream]).
//

package httpclient

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/internal/obs"
	"github.com/aicp-go/aicp/sslbridge"
)

// tlsStream adapts a [*sslbridge.Bridge]'s callback-style Read/Write/Close
// into the blocking [stream.Stream] surface, the same synchronous-façade
// technique [stream.SocketStream] uses over [*aicp.Aico] directly.
type tlsStream struct {
	b         *sslbridge.Bridge
	keepAlive bool
	logger    obs.SLogger
	timeNow   func() time.Time

	closeOnce sync.Once
}

func newTLSStream(b *sslbridge.Bridge, logger obs.SLogger, timeNow func() time.Time) *tlsStream {
	return &tlsStream{b: b, keepAlive: true, logger: logger, timeNow: timeNow}
}

func (t *tlsStream) Seekable() bool      { return false }
func (t *tlsStream) SetKeepAlive(v bool) { t.keepAlive = v }

func (t *tlsStream) Read(p []byte) (int, error) {
	done := make(chan *sslbridge.Result, 1)
	if !t.b.Read(p, func(res *sslbridge.Result, priv any) { done <- res }, nil) {
		return 0, io.ErrClosedPipe
	}
	res := <-done
	var err error
	if res.State != aicp.StateOK {
		if res.Err != nil {
			err = res.Err
		} else {
			err = io.EOF
		}
	}
	return res.Real, err
}

func (t *tlsStream) Write(p []byte) (int, error) {
	done := make(chan *sslbridge.Result, 1)
	if !t.b.Write(p, func(res *sslbridge.Result, priv any) { done <- res }, nil) {
		return 0, io.ErrClosedPipe
	}
	res := <-done
	return res.Real, res.Err
}

func (t *tlsStream) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.keepAlive {
			return
		}
		done := make(chan *sslbridge.Result, 1)
		t.b.Close(func(res *sslbridge.Result, priv any) { done <- res }, nil)
		res := <-done
		err = res.Err
	})
	return err
}

func dialTLSBridge(ctx context.Context, b *sslbridge.Bridge) error {
	done := make(chan *sslbridge.Result, 1)
	if !b.Open(func(res *sslbridge.Result, priv any) { done <- res }, nil) {
		return io.ErrClosedPipe
	}
	select {
	case res := <-done:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
