//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.7 "HTTP async client"; state-machine and
// paired start/done structured-logging conventions from
// github.com/bassosimone/nop (httpconn.go, config.go).
//

// Package httpclient implements the async HTTP/1.x client described in
// spec §4.7: connect, request, chunked/gzip response parsing, and
// redirect chaining, built atop [aicp] and, for https targets,
// [sslbridge].
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http/cookiejar"
	"net/netip"
	"sync"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/internal/obs"
	"github.com/aicp-go/aicp/resolver"
	"github.com/aicp-go/aicp/sslbridge"
	"github.com/aicp-go/aicp/stream"
)

// Config holds client-wide configuration, matching the *Config-over-
// globals pattern this module uses throughout.
type Config struct {
	Logger    obs.SLogger
	TimeNow   func() time.Time
	TLSConfig *tls.Config

	// Resolver overrides name resolution with the async DNS collaborator
	// from [resolver]. When nil, dial falls back to [net.Dialer]'s built-in
	// resolution.
	Resolver *resolver.Resolver
}

// NewConfig returns a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{Logger: obs.DefaultSLogger(), TimeNow: time.Now, TLSConfig: &tls.Config{}}
}

type clientState int

const (
	stateClosed clientState = iota
	stateOpening
	stateOpened
	stateKilling
)

// Callback is invoked once per accepted post, on a worker goroutine
// drained by the bound [*aicp.Proactor.Run]; [*Client.Read] may invoke it a
// second time with the zero-byte StateClosed EOF marker.
type Callback func(status *Status, payload []byte, priv any) bool

// Client is the HTTP async client state machine from spec §4.7. The zero
// value is not usable; construct with [New].
type Client struct {
	p   *aicp.Proactor
	cfg *Config
	opt *Options

	mu          sync.Mutex
	state       clientState
	killed      bool
	connHost    string
	connPort    int
	connSSL     bool
	st          Status
	cur         stream.Stream
	aico        *aicp.Aico
	bridge      *sslbridge.Bridge
	sideBuf     []byte
	contentRead int64
	redirectTry int
}

// New constructs a [*Client] bound to p (spec §4.7's `init(aicp)`).
func New(p *aicp.Proactor, cfg *Config) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg = &Config{
		Logger:    obs.WithSpanID(cfg.Logger, obs.NewSpanID()),
		TimeNow:   cfg.TimeNow,
		TLSConfig: cfg.TLSConfig,
		Resolver:  cfg.Resolver,
	}
	return &Client{p: p, cfg: cfg, opt: NewOptions(), state: stateClosed}
}

// Aicp returns the bound proactor (spec §4.7's `aicp` accessor).
func (c *Client) Aicp() *aicp.Proactor { return c.p }

// Status returns a snapshot of the current response status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Ctrl applies opt, matching spec §4.7's `ctrl(option, ...)`. It must be
// called before [*Client.Open] (or between a Clos and the next Open).
func (c *Client) Ctrl(opt *Options) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if opt.Jar == nil {
		jar, _ := cookiejar.New(nil)
		opt.Jar = jar
	}
	c.opt = opt
	return c
}

// Kill is a one-shot flip to killing: it kills the transfer (if any) and
// the stream; in-flight read/open callbacks subsequently fire with
// killed, per spec §4.7.
func (c *Client) Kill() {
	c.mu.Lock()
	c.killed = true
	c.state = stateKilling
	aico, bridge := c.aico, c.bridge
	c.mu.Unlock()
	if bridge != nil {
		bridge.Kill()
	} else if aico != nil {
		aico.Kill()
	}
}

// ClosTry reports whether the client can close synchronously: true when
// already closed.
func (c *Client) ClosTry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// Clos closes the current stream (possibly a filter chain; filters close
// upstream transitively per spec §4.7) and reverts to the raw socket
// stream so the next Open can rebuild the pipeline.
func (c *Client) Clos(cb Callback, priv any) bool {
	c.mu.Lock()
	cur := c.cur
	switch {
	case c.bridge != nil:
		c.cur = newTLSStream(c.bridge, c.cfg.Logger, c.cfg.TimeNow)
	case c.aico != nil:
		c.cur = stream.NewSocketStream(c.aico, &stream.SocketConfig{Logger: c.cfg.Logger, TimeNow: c.cfg.TimeNow, Protocol: "tcp"})
	}
	c.state = stateClosed
	c.mu.Unlock()
	go func() {
		if cur != nil {
			cur.Close()
		}
		st := c.Status()
		c.deliver(func() { cb(&st, nil, priv) })
	}()
	return true
}

func (c *Client) deliver(fn func()) { c.p.Deliver(fn) }

// Open performs connect -> request -> response-headers, matching spec
// §4.7's `open(func, priv)`. On success status.State is the class of the
// final response code (StateOK for 200/206, StateNoContent, or
// StateRedirect when no further redirect is followed). payload is always
// nil: bytes already buffered past the header terminator are delivered by
// the first [*Client.Read].
func (c *Client) Open(cb Callback, priv any) bool {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		st := c.Status()
		c.deliver(func() { cb(&st, nil, priv) })
		return true
	}
	opt := c.opt
	c.state = stateOpening
	c.mu.Unlock()

	if !opt.Range.valid() {
		c.mu.Lock()
		c.st.State = StateRangeInvalid
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, nil, priv) })
		return true
	}

	go c.runOpen(opt, cb, priv)
	return true
}

func (c *Client) runOpen(opt *Options, cb Callback, priv any) {
	t0 := c.cfg.TimeNow()
	c.cfg.Logger.Info("httpOpenStart", "url", opt.URL, "method", opt.Method.String())

	if err := c.dial(opt); err != nil {
		c.failOpen(err, cb, priv)
		return
	}
	if err := c.sendRequest(opt); err != nil {
		c.failOpen(err, cb, priv)
		return
	}
	leftover, err := c.parseResponseHeaders(opt)
	if err != nil {
		c.failOpen(err, cb, priv)
		return
	}
	if err := c.installFilters(opt, leftover); err != nil {
		c.failOpen(err, cb, priv)
		return
	}

	c.mu.Lock()
	c.state = stateOpened
	st := c.st
	c.mu.Unlock()

	c.cfg.Logger.Info("httpOpenDone", "url", opt.URL, "code", st.Code, "t0", t0, "t", c.cfg.TimeNow())

	if st.Location != "" && st.Code >= 301 && st.Code <= 307 && c.redirectTry < opt.Redirect {
		c.followRedirect(opt, st, cb, priv)
		return
	}

	// Per spec, bytes already read past the header terminator are
	// delivered on the caller's first Read, not as part of Open's
	// callback.
	c.deliver(func() { cb(&st, nil, priv) })
}

func (c *Client) failOpen(err error, cb Callback, priv any) {
	c.mu.Lock()
	if c.st.State == StateOK {
		c.st.State = StateUnknown
	}
	c.state = stateClosed
	st := c.st
	c.mu.Unlock()
	c.cfg.Logger.Info("httpOpenDone", "err", err)
	c.deliver(func() { cb(&st, nil, priv) })
}

func (c *Client) followRedirect(opt *Options, prev Status, cb Callback, priv any) {
	drainErr := c.drainBody(prev)
	if drainErr != nil {
		c.mu.Lock()
		c.st.State = StateRedirectFailed
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, nil, priv) })
		return
	}
	next := *opt
	newOpt, err := resolveRedirect(&next, prev.Location)
	if err != nil {
		c.mu.Lock()
		c.st.State = StateRedirectFailed
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, nil, priv) })
		return
	}
	c.mu.Lock()
	c.opt = newOpt
	c.redirectTry++
	c.mu.Unlock()
	c.runOpen(newOpt, cb, priv)
}

func (c *Client) drainBody(st Status) error {
	c.mu.Lock()
	cur := c.cur
	remain := st.ContentSize
	c.mu.Unlock()
	if cur == nil || remain <= 0 {
		return nil
	}
	buf := make([]byte, 32*1024)
	for remain > 0 {
		n := len(buf)
		if int64(n) > remain {
			n = int(remain)
		}
		read, err := cur.Read(buf[:n])
		remain -= int64(read)
		if err != nil {
			return nil // EOF while draining is fine
		}
	}
	return nil
}

// resolveRedirect rewrites opt's URL per spec §4.7: an absolute Location
// replaces the URL entirely; a relative one substitutes the path.
func resolveRedirect(opt *Options, location string) (*Options, error) {
	hostport := net.JoinHostPort(opt.Host, fmt.Sprint(opt.Port))
	if len(location) > 0 && location[0] == '/' {
		base := fmt.Sprintf("%s://%s", scheme(opt.SSL), hostport)
		if _, err := opt.WithURL(base + location); err != nil {
			return nil, err
		}
		return opt, nil
	}
	if isAbsoluteURL(location) {
		if _, err := opt.WithURL(location); err != nil {
			return nil, err
		}
		return opt, nil
	}
	base := fmt.Sprintf("%s://%s%s", scheme(opt.SSL), hostport, opt.Path)
	resolved, err := resolveRelative(base, location)
	if err != nil {
		return nil, err
	}
	if _, err := opt.WithURL(resolved); err != nil {
		return nil, err
	}
	return opt, nil
}

func scheme(ssl bool) string {
	if ssl {
		return "https"
	}
	return "http"
}

func isAbsoluteURL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i > 0
		}
		if !isSchemeChar(s[i]) {
			return false
		}
	}
	return false
}

func isSchemeChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// dial connects (or reuses, per spec §4.7's keep-alive rule) the
// transport for opt.
func (c *Client) dial(opt *Options) error {
	c.mu.Lock()
	reuse := opt.Host == c.connHost && opt.Port == c.connPort && opt.SSL == c.connSSL && c.st.Balived && c.cur != nil
	c.mu.Unlock()
	if reuse {
		return nil
	}

	c.mu.Lock()
	if c.cur != nil {
		c.cur.Close()
		c.cur = nil
	}
	preserveDoc := opt.Host == c.connHost
	oldDocSize, oldSeek, oldAlive := c.st.DocumentSize, c.st.Bseeked, c.st.Balived
	c.st = Status{}
	if preserveDoc {
		c.st.DocumentSize, c.st.Bseeked, c.st.Balived = oldDocSize, oldSeek, oldAlive
	}
	c.mu.Unlock()

	connectHost, err := c.resolveHost(opt.Host)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(connectHost, fmt.Sprint(opt.Port))
	raw, err := (&net.Dialer{Timeout: timeoutOf(opt)}).DialContext(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	aico, err := c.p.OpenSocket(raw)
	if err != nil {
		raw.Close()
		return err
	}
	if opt.Timeout > 0 {
		aico.SetTimeout(aicp.TimeoutRecv, timeoutOf(opt))
		aico.SetTimeout(aicp.TimeoutSend, timeoutOf(opt))
	}

	var sock stream.Stream
	var bridge *sslbridge.Bridge
	if opt.SSL {
		bridge = sslbridge.New(aico, opt.Host, &sslbridge.Config{TLSConfig: c.cfg.TLSConfig, Logger: c.cfg.Logger, TimeNow: c.cfg.TimeNow})
		if err := dialTLSBridge(context.Background(), bridge); err != nil {
			aico.CloseWait(context.Background())
			return err
		}
		sock = newTLSStream(bridge, c.cfg.Logger, c.cfg.TimeNow)
	} else {
		sock = stream.NewSocketStream(aico, &stream.SocketConfig{Logger: c.cfg.Logger, TimeNow: c.cfg.TimeNow, Protocol: "tcp"})
	}

	c.mu.Lock()
	c.connHost, c.connPort, c.connSSL = opt.Host, opt.Port, opt.SSL
	c.aico, c.bridge, c.cur = aico, bridge, sock
	c.mu.Unlock()
	return nil
}

// resolveHost runs host through c.cfg.Resolver when one is configured,
// blocking the calling goroutine (never a worker goroutine, since dial
// always runs inside runOpen's own goroutine) until the lookup completes.
// With no resolver configured, host is passed through unresolved and
// [net.Dialer] performs its own built-in resolution.
func (c *Client) resolveHost(host string) (string, error) {
	if c.cfg.Resolver == nil {
		return host, nil
	}
	type result struct {
		addrs []netip.Addr
		err   error
	}
	done := make(chan result, 1)
	if !c.cfg.Resolver.LookupHost(host, func(addrs []netip.Addr, err error, priv any) {
		done <- result{addrs, err}
	}, nil) {
		return host, nil
	}
	r := <-done
	if r.err != nil {
		return "", r.err
	}
	return r.addrs[0].String(), nil
}

func timeoutOf(opt *Options) time.Duration {
	if opt.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(opt.Timeout) * time.Millisecond
}
