//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.7 "Request format".
//

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"os"
	"strings"
)

// sendRequest assembles and writes the CRLF-delimited request, then
// streams the POST body (if any), per spec §4.7.
func (c *Client) sendRequest(opt *Options) error {
	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.%d\r\n", opt.Method.String(), opt.Path, opt.Version)

	// custom headers override the defaults below (spec §4.7) instead of
	// duplicating them; written tracks which canonical names have already
	// gone out so the leftover loop doesn't repeat them.
	custom := make(map[string]string, len(opt.Headers))
	for k, v := range opt.Headers {
		custom[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	written := make(map[string]bool, len(custom))
	writeHeader := func(name, value string) {
		ck := textproto.CanonicalMIMEHeaderKey(name)
		if v, ok := custom[ck]; ok {
			value = v
		}
		written[ck] = true
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}

	writeHeader("Host", opt.Host)
	writeHeader("Accept", "*/*")
	writeHeader("Connection", "keep-alive")

	if opt.Jar != nil {
		u := &url.URL{Scheme: scheme(opt.SSL), Host: opt.Host, Path: pathOnly(opt.Path)}
		if cookies := opt.Jar.Cookies(u); len(cookies) > 0 {
			var cv strings.Builder
			for i, ck := range cookies {
				if i > 0 {
					cv.WriteString("; ")
				}
				fmt.Fprintf(&cv, "%s=%s", ck.Name, ck.Value)
			}
			writeHeader("Cookie", cv.String())
		}
	}

	if opt.Range != (Range{}) {
		writeHeader("Range", fmt.Sprintf("bytes=%d-%d", opt.Range.BOF, opt.Range.EOF))
	}

	var bodySize int64 = -1
	var bodyReader io.Reader
	if opt.Post != nil {
		switch {
		case opt.Post.Data != nil:
			bodySize = int64(len(opt.Post.Data))
			bodyReader = bytes.NewReader(opt.Post.Data)
		case opt.Post.FilePath != "":
			f, err := os.Open(opt.Post.FilePath)
			if err != nil {
				return fmt.Errorf("httpclient: post file: %w", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			bodySize = info.Size()
			bodyReader = f
		default:
			return fmt.Errorf("httpclient: post source has neither data nor file")
		}
		writeHeader("Content-Length", fmt.Sprint(bodySize))
	}

	for k, v := range opt.Headers {
		if written[textproto.CanonicalMIMEHeaderKey(k)] {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")

	if _, err := cur.Write([]byte(b.String())); err != nil {
		return err
	}
	if bodyReader != nil {
		if err := c.streamPostBody(cur, bodyReader, bodySize, opt.Post); err != nil {
			return err
		}
	}
	return nil
}

// streamPostBody copies src -> cur with an optional byte-rate limit,
// firing opt.Progress after each chunk (spec §4.7's "async transfer
// engine copies source -> socket with an optional byte-rate limit").
func (c *Client) streamPostBody(cur interface{ Write([]byte) (int, error) }, src io.Reader, total int64, post *PostSource) error {
	buf := make([]byte, 32*1024)
	var sent int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := cur.Write(buf[:n]); werr != nil {
				return werr
			}
			sent += int64(n)
			if post.Progress != nil && !post.Progress(sent, total) {
				return fmt.Errorf("httpclient: post aborted by progress callback")
			}
			if post.RateLimit > 0 {
				throttle(n, post.RateLimit)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func pathOnly(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}
