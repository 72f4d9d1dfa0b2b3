// SPDX-License-Identifier: GPL-3.0-or-later

package aicp_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/aicp-go/aicp/aicp"
	"github.com/stretchr/testify/require"
)

func runProactor(t *testing.T) (*aicp.Proactor, func()) {
	t.Helper()
	p := aicp.New(aicp.NewConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	return p, func() {
		cancel()
		p.Exit(context.Background())
	}
}

func TestTCPAcceptConnectEcho(t *testing.T) {
	p, stop := runProactor(t)
	defer stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	lnAico, err := p.OpenListener(ln)
	require.NoError(t, err)

	accepted := make(chan *aicp.Aico, 1)
	require.True(t, lnAico.Accept(func(res *aicp.Result, priv any) bool {
		require.Equal(t, aicp.StateOK, res.State)
		accepted <- res.Accepted
		return true
	}, nil))

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer clientConn.Close()
	clientAico, err := p.OpenSocket(clientConn)
	require.NoError(t, err)

	var server *aicp.Aico
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.CloseWait(context.Background())

	sent := make(chan *aicp.Result, 1)
	require.True(t, clientAico.Send([]byte("ping"), func(res *aicp.Result, priv any) bool {
		sent <- res
		return true
	}, nil))
	sres := <-sent
	require.Equal(t, aicp.StateOK, sres.State)
	require.Equal(t, 4, sres.Real)

	recvd := make(chan *aicp.Result, 1)
	buf := make([]byte, 64)
	require.True(t, server.Recv(buf, func(res *aicp.Result, priv any) bool {
		recvd <- res
		return true
	}, nil))
	rres := <-recvd
	require.Equal(t, aicp.StateOK, rres.State)
	require.Equal(t, "ping", string(buf[:rres.Real]))
}

func TestUDPEcho(t *testing.T) {
	p, stop := runProactor(t)
	defer stop()

	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverConn.Close()
	serverAico, err := p.OpenSocket(serverConn.(net.Conn))
	require.NoError(t, err)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()
	clientAico, err := p.OpenSocket(clientConn.(net.Conn))
	require.NoError(t, err)

	serverAddr, err := netip.ParseAddrPort(serverConn.LocalAddr().String())
	require.NoError(t, err)

	recvd := make(chan *aicp.Result, 1)
	buf := make([]byte, 64)
	require.True(t, serverAico.URecv(buf, func(res *aicp.Result, priv any) bool {
		recvd <- res
		return true
	}, nil))

	sent := make(chan *aicp.Result, 1)
	require.True(t, clientAico.USend(serverAddr, []byte("pong"), func(res *aicp.Result, priv any) bool {
		sent <- res
		return true
	}, nil))
	require.Equal(t, aicp.StateOK, (<-sent).State)

	rres := <-recvd
	require.Equal(t, aicp.StateOK, rres.State)
	require.Equal(t, "pong", string(buf[:rres.Real]))
}

func TestKillReportsKilledState(t *testing.T) {
	p, stop := runProactor(t)
	defer stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	lnAico, err := p.OpenListener(ln)
	require.NoError(t, err)

	done := make(chan *aicp.Result, 1)
	require.True(t, lnAico.Accept(func(res *aicp.Result, priv any) bool {
		done <- res
		return true
	}, nil))

	lnAico.Kill()
	res := <-done
	require.Equal(t, aicp.StateKilled, res.State)
}
