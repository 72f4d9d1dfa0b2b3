// SPDX-License-Identifier: GPL-3.0-or-later

package sslbridge_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/aicp-go/aicp/internal/obs"
	"github.com/aicp-go/aicp/sslbridge"
	"github.com/stretchr/testify/require"
)

// generateSelfSignedCert builds an ephemeral ECDSA cert/key pair for
// loopback-only test servers.
func generateSelfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// selfSignedServer starts a TLS echo server on loopback and returns its
// address plus a [*tls.Config] that trusts its certificate.
func selfSignedServer(t *testing.T) (string, *tls.Config) {
	t.Helper()
	cert := generateSelfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err == nil {
			conn.Write(buf[:n])
		}
		conn.Close()
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String(), &tls.Config{InsecureSkipVerify: true}
}

func TestBridgeHandshakeAndEcho(t *testing.T) {
	addr, tlsCfg := selfSignedServer(t)

	p := aicp.New(aicp.NewConfig())
	go p.Run(context.Background())
	defer p.Exit(context.Background())

	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	a, err := p.OpenSocket(raw)
	require.NoError(t, err)

	b := sslbridge.New(a, "example.com", &sslbridge.Config{TLSConfig: tlsCfg, Logger: obs.DefaultSLogger(), TimeNow: time.Now})

	opened := make(chan *sslbridge.Result, 1)
	require.True(t, b.Open(func(res *sslbridge.Result, priv any) { opened <- res }, nil))
	res := <-opened
	require.Equal(t, aicp.StateOK, res.State)

	written := make(chan *sslbridge.Result, 1)
	require.True(t, b.Write([]byte("ping"), func(res *sslbridge.Result, priv any) { written <- res }, nil))
	wres := <-written
	require.Equal(t, aicp.StateOK, wres.State)
	require.Equal(t, 4, wres.Real)

	readBuf := make([]byte, 64)
	read := make(chan *sslbridge.Result, 1)
	require.True(t, b.Read(readBuf, func(res *sslbridge.Result, priv any) { read <- res }, nil))
	rres := <-read
	require.Equal(t, aicp.StateOK, rres.State)
	require.Equal(t, "ping", string(readBuf[:rres.Real]))
}
