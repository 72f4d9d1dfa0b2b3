//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.7 "Read path" / "Seek".
//

package httpclient

import (
	"time"
)

// Read delivers buffered side-bytes (spec §4.7: "all-or-nothing; not
// split") if any are pending, otherwise posts a read of up to size bytes
// on the current stream. When content_size is known and a read from the
// stream completes it, the callback fires once more with zero bytes and
// state=closed as an EOF marker. Delivering the side buffer is not
// followed by that marker, even when it holds the whole content.
func (c *Client) Read(size int, cb Callback, priv any) bool {
	c.mu.Lock()
	if c.killed {
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, nil, priv) })
		return true
	}
	if len(c.sideBuf) > 0 {
		buf := c.sideBuf
		c.sideBuf = nil
		c.contentRead += int64(len(buf))
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, buf, priv) })
		return true
	}
	cur := c.cur
	c.mu.Unlock()
	if cur == nil {
		return false
	}

	go func() {
		buf := make([]byte, size)
		n, err := cur.Read(buf)

		c.mu.Lock()
		if c.killed {
			st := c.st
			c.mu.Unlock()
			c.deliver(func() { cb(&st, nil, priv) })
			return
		}
		c.contentRead += int64(n)
		done := c.st.ContentSize > 0 && c.contentRead >= c.st.ContentSize
		st := c.st
		c.mu.Unlock()

		if err != nil && n == 0 {
			closedSt := st
			closedSt.State = StateClosed
			c.deliver(func() { cb(&closedSt, nil, priv) })
			return
		}
		c.deliver(func() { cb(&st, buf[:n], priv) })
		if done {
			eof := st
			eof.State = StateClosed
			c.deliver(func() { cb(&eof, nil, priv) })
		}
	}()
	return true
}

// ReadAfter is the delayed variant of [*Client.Read].
func (c *Client) ReadAfter(delay time.Duration, size int, cb Callback, priv any) bool {
	go func() {
		time.Sleep(delay)
		c.Read(size, cb, priv)
	}()
	return true
}

// Seek re-opens the connection with a Range request starting at offset,
// valid only if status.Bseeked (spec §4.7). document_size must be known
// to set the eof bound.
func (c *Client) Seek(offset int64, cb Callback, priv any) bool {
	c.mu.Lock()
	if !c.st.Bseeked {
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, nil, priv) })
		return true
	}
	if c.st.DocumentSize <= 0 {
		st := c.st
		c.mu.Unlock()
		c.deliver(func() { cb(&st, nil, priv) })
		return true
	}
	opt := c.opt
	doc := c.st.DocumentSize
	c.mu.Unlock()

	next := *opt
	next.Range = Range{BOF: offset, EOF: doc - 1}
	c.Ctrl(&next)
	return c.Open(cb, priv)
}

// Task posts a no-op round-trip through the worker pool after delay.
func (c *Client) Task(delay time.Duration, cb func(priv any), priv any) bool {
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		c.deliver(func() { cb(priv) })
	}()
	return true
}
