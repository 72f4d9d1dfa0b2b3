//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: github.com/bassosimone/nop's dnsoverudp.go/dnsdial.go/
// dnsexchange.go and example_dnsoverudp_test.go's Example_dnsOverUDP.
//

// Package resolver provides the DNS collaborator spec §1 keeps out of
// scope except for its "public async signature": a name lookup posted
// through the same proactor that drives socket I/O, so the HTTP client
// can resolve a host without blocking a worker goroutine.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/internal/obs"
	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverhttps"
	"github.com/bassosimone/minest"
	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
	"github.com/miekg/dns"
)

// Config configures a [*Resolver].
type Config struct {
	Server netip.AddrPort

	// DoHURL, when non-empty, switches LookupHost from DNS-over-UDP to
	// DNS-over-HTTPS against this endpoint (e.g.
	// "https://dns.google/dns-query"), per spec §1's pluggable-collaborator
	// decision: the resolver's transport is swappable behind one LookupHost
	// signature.
	DoHURL string

	Logger  obs.SLogger
	TimeNow func() time.Time
}

// NewConfig returns a [*Config] pointed at Google's public resolver over
// UDP, matching the teacher's own example.
func NewConfig() *Config {
	return &Config{
		Server:  netip.MustParseAddrPort("8.8.8.8:53"),
		Logger:  obs.DefaultSLogger(),
		TimeNow: time.Now,
	}
}

// Callback is invoked exactly once per accepted lookup, on a worker
// goroutine drained by the bound [*aicp.Proactor.Run].
type Callback func(addrs []netip.Addr, err error, priv any)

// Resolver is the async DNS collaborator. The zero value is not usable;
// construct with [New].
type Resolver struct {
	p   *aicp.Proactor
	cfg *Config
}

// New binds a [*Resolver] to p.
func New(p *aicp.Proactor, cfg *Config) *Resolver {
	runtimex.Assert(p != nil)
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg = &Config{
		Server:  cfg.Server,
		DoHURL:  cfg.DoHURL,
		Logger:  obs.WithSpanID(cfg.Logger, obs.NewSpanID()),
		TimeNow: cfg.TimeNow,
	}
	return &Resolver{p: p, cfg: cfg}
}

// LookupHost posts an asynchronous A-record lookup for host. If host is
// already a literal IP address, it resolves synchronously without any
// network round trip.
func (r *Resolver) LookupHost(host string, cb Callback, priv any) bool {
	if cb == nil {
		return false
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		r.p.Deliver(func() { cb([]netip.Addr{addr}, nil, priv) })
		return true
	}
	go func() {
		var addrs []netip.Addr
		var err error
		if r.cfg.DoHURL != "" {
			addrs, err = r.exchangeDoH(host)
		} else {
			addrs, err = r.exchange(host)
		}
		r.p.Deliver(func() { cb(addrs, err, priv) })
	}()
	return true
}

// exchange performs a single DNS-over-UDP A-record exchange against
// cfg.Server, grounded step for step on the teacher's DNSOverUDPConn.Exchange
// (dnsoverudp.go) and its worked example (example_dnsoverudp_test.go).
func (r *Resolver) exchange(host string) ([]netip.Addr, error) {
	raddr := net.UDPAddrFromAddrPort(r.cfg.Server)
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	t0 := r.cfg.TimeNow()
	r.cfg.Logger.Info("dnsExchangeStart",
		"localAddr", safeconn.LocalAddr(conn), "remoteAddr", safeconn.RemoteAddr(conn), "t", t0)

	txp := minest.NewDNSOverUDPTransport(dnsUnusedDialer{}, netip.AddrPortFrom(netip.IPv4Unspecified(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := dnscodec.NewQuery(dns.Fqdn(host), dns.TypeA)
	resp, err := txp.ExchangeWithConn(ctx, conn, query)
	r.cfg.Logger.Info("dnsExchangeDone", "err", err, "t0", t0, "t", r.cfg.TimeNow())
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	return r.toAddrs(resp, host)
}

// exchangeDoH performs a single DNS-over-HTTPS A-record exchange against
// cfg.DoHURL, grounded on the teacher's DNSOverHTTPSConn.Exchange
// (dnsoverhttps.go): a plain [*http.Client] stands in for the teacher's
// HTTPConn, since dnsoverhttps.NewRequestWithHook/ReadResponseWithHook
// operate on [*http.Request]/[*http.Response], not this module's own
// async [github.com/aicp-go/aicp/httpclient.Client].
func (r *Resolver) exchangeDoH(host string) ([]netip.Addr, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t0 := r.cfg.TimeNow()
	r.cfg.Logger.Info("dnsExchangeStart", "serverProtocol", "doh", "url", r.cfg.DoHURL, "t", t0)

	query := dnscodec.NewQuery(dns.Fqdn(host), dns.TypeA)
	var rawQuery []byte
	httpReq, queryMsg, err := dnsoverhttps.NewRequestWithHook(ctx, query, r.cfg.DoHURL, func(b []byte) { rawQuery = b })
	if err != nil {
		r.cfg.Logger.Info("dnsExchangeDone", "err", err, "t0", t0, "t", r.cfg.TimeNow())
		return nil, fmt.Errorf("resolver: %w", err)
	}

	httpResp, err := (&http.Client{}).Do(httpReq)
	if err != nil {
		r.cfg.Logger.Info("dnsExchangeDone", "err", err, "t0", t0, "t", r.cfg.TimeNow())
		return nil, fmt.Errorf("resolver: %w", err)
	}
	defer httpResp.Body.Close()

	resp, err := dnsoverhttps.ReadResponseWithHook(ctx, httpResp, queryMsg, func([]byte) {})
	r.cfg.Logger.Info("dnsExchangeDone", "err", err, "rawQueryLen", len(rawQuery), "t0", t0, "t", r.cfg.TimeNow())
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	return r.toAddrs(resp, host)
}

func (r *Resolver) toAddrs(resp *dnscodec.Response, host string) ([]netip.Addr, error) {
	raw, err := resp.RecordsA()
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	addrs := make([]netip.Addr, 0, len(raw))
	for _, s := range raw {
		addr, perr := netip.ParseAddr(s)
		if perr != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b netip.Addr) int { return a.Compare(b) })
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolver: no A records for %q", host)
	}
	return addrs, nil
}

// dnsUnusedDialer is a [minest.Dialer] sentinel: the DNS transport here
// always uses an already-connected socket, never dials on its own,
// matching the teacher's dnsUnusedDialer in dnsdial.go.
type dnsUnusedDialer struct{}

func (dnsUnusedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("resolver: DNS transport must not dial; this is a programming error")
}
