// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedReaderDecodesSimpleBody(t *testing.T) {
	raw := "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	r := newChunkedReader(strings.NewReader(raw))
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestChunkedReaderToleratesTrailer(t *testing.T) {
	raw := "3\r\nfoo\r\n0\r\nX-Trailer: yes\r\n\r\n"
	r := newChunkedReader(strings.NewReader(raw))
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "foo", string(out))
}

func TestChunkedReaderRejectsMalformedLength(t *testing.T) {
	raw := "zz\r\nhello\r\n"
	r := newChunkedReader(strings.NewReader(raw))
	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestInflateReaderGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	r, err := newInflateReader(bytes.NewReader(buf.Bytes()), true)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestChunkedThenInflateComposesLikeHTTPResponse(t *testing.T) {
	var gzbuf bytes.Buffer
	gz := gzip.NewWriter(&gzbuf)
	_, err := gz.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	var chunked bytes.Buffer
	data := gzbuf.Bytes()
	chunked.WriteString("b\r\n")
	chunked.Write(data[:11])
	chunked.WriteString("\r\n")
	chunked.WriteString("0\r\n\r\n")
	// the decoder reads `full`, which carries the whole gzip frame as a single
	// chunk; the `chunked` buffer above is not used
	var full bytes.Buffer
	full.WriteString(hexLen(len(data)))
	full.WriteString("\r\n")
	full.Write(data)
	full.WriteString("\r\n0\r\n\r\n")

	dechunked := newChunkedReader(&full)
	inflated, err := newInflateReader(dechunked, true)
	require.NoError(t, err)
	out, err := io.ReadAll(inflated)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func hexLen(n int) string {
	const hexdigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{hexdigits[n%16]}, out...)
		n /= 16
	}
	return string(out)
}
