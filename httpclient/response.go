//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.7 "Response parsing".
//

package httpclient

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aicp-go/aicp/stream"
)

// parseResponseHeaders reads the status line and headers, updates c.st,
// and returns any bytes already buffered past the blank-line terminator.
func (c *Client) parseResponseHeaders(opt *Options) ([]byte, error) {
	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()

	br := bufio.NewReader(cur)
	line, err := readCRLFLine(br)
	if err != nil {
		return nil, fmt.Errorf("httpclient: reading status line: %w", err)
	}
	version, code, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	st := Status{Code: code, Version: version, Balived: true, State: classifyStatus(code)}

	var rangeFrom, rangeTo, rangeDoc int64 = -1, -1, -1
	haveRange := false

	for {
		line, err := readCRLFLine(br)
		if err != nil {
			return nil, fmt.Errorf("httpclient: reading headers: %w", err)
		}
		if line == "" {
			break
		}
		key, value, ok := splitHeader(line)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "content-length":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				st.ContentSize = n
			}
		case "content-range":
			if f, t, d, ok := parseContentRange(value); ok {
				rangeFrom, rangeTo, rangeDoc = f, t, d
				haveRange = true
			}
		case "accept-ranges":
			st.Bseeked = true
		case "content-type":
			st.ContentType = value
		case "transfer-encoding":
			if strings.Contains(strings.ToLower(value), "chunked") {
				st.Bchunked = true
			}
		case "content-encoding":
			lv := strings.ToLower(value)
			st.Bgzip = strings.Contains(lv, "gzip")
			st.Bdeflate = strings.Contains(lv, "deflate")
		case "location":
			st.Location = value
			if code < 301 || code > 307 {
				return nil, fmt.Errorf("httpclient: Location header on non-redirect status %d", code)
			}
		case "connection":
			st.Balived = !strings.EqualFold(strings.TrimSpace(value), "close")
		case "set-cookie":
			applySetCookie(opt, value)
		case "date":
			if t, err := http.ParseTime(value); err == nil {
				st.Date = t
			}
		}
		if opt.HeadFunc != nil {
			if !opt.HeadFunc(line) {
				return nil, fmt.Errorf("httpclient: head_func rejected header %q", line)
			}
		}
	}

	if haveRange {
		st.DocumentSize = rangeDoc
		switch {
		case rangeFrom >= 0 && rangeTo >= 0:
			st.ContentSize = rangeTo - rangeFrom
		case rangeTo >= 0:
			st.ContentSize = rangeTo
		case rangeFrom >= 0:
			st.ContentSize = rangeDoc - rangeFrom
		default:
			st.ContentSize = rangeDoc
		}
	} else if st.DocumentSize == 0 {
		st.DocumentSize = st.ContentSize
	}

	leftover, _ := br.Peek(br.Buffered())
	leftoverCopy := append([]byte(nil), leftover...)

	c.mu.Lock()
	c.st = st
	c.contentRead = 0
	c.mu.Unlock()

	if st.State == StateClientError || st.State == StateServerError {
		return nil, fmt.Errorf("httpclient: response status %d", code)
	}

	return leftoverCopy, nil
}

// installFilters wraps c.cur in chunked/inflate filters as needed,
// splicing leftover bytes drained past the header terminator, per spec
// §4.7.
func (c *Client) installFilters(opt *Options, leftover []byte) error {
	c.mu.Lock()
	cur := c.cur
	st := c.st
	c.mu.Unlock()

	if st.Bchunked {
		cur = stream.WrapChunked(cur, leftover)
		leftover = nil
		c.mu.Lock()
		c.cur = cur
		c.sideBuf = nil
		c.mu.Unlock()
		if !((st.Bgzip || st.Bdeflate) && opt.Unzip) {
			return nil
		}
	}

	if (st.Bgzip || st.Bdeflate) && opt.Unzip {
		wrapped, err := stream.WrapInflate(cur, leftover, st.Bgzip, st.ContentSize)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.cur = wrapped
		c.sideBuf = nil
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.sideBuf = leftover
	c.mu.Unlock()
	return nil
}

func readCRLFLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseStatusLine(line string) (version, code int, err error) {
	var v0, v1 int
	n, serr := fmt.Sscanf(line, "HTTP/1.%d %d", &v0, &v1)
	if serr != nil || n != 2 || (v0 != 0 && v0 != 1) {
		return 0, 0, fmt.Errorf("httpclient: malformed status line %q", line)
	}
	return v0, v1, nil
}

func splitHeader(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(line[i+1:]), true
}

// parseContentRange parses "bytes from-to/document_size".
func parseContentRange(v string) (from, to, doc int64, ok bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "bytes ")
	parts := strings.SplitN(v, "/", 2)
	if len(parts) != 2 {
		return 0, 0, 0, false
	}
	ft := strings.SplitN(parts[0], "-", 2)
	if len(ft) != 2 {
		return 0, 0, 0, false
	}
	f, ferr := strconv.ParseInt(ft[0], 10, 64)
	t, terr := strconv.ParseInt(ft[1], 10, 64)
	d, derr := strconv.ParseInt(parts[1], 10, 64)
	if ferr != nil || terr != nil || derr != nil {
		return 0, 0, 0, false
	}
	return f, t, d, true
}

func applySetCookie(opt *Options, v string) {
	if opt.Jar == nil {
		return
	}
	hdr := http.Header{}
	hdr.Add("Set-Cookie", v)
	resp := http.Response{Header: hdr}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	u := &url.URL{Scheme: scheme(opt.SSL), Host: opt.Host, Path: pathOnly(opt.Path)}
	opt.Jar.SetCookies(u, cookies)
}
