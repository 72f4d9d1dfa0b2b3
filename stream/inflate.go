//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.5 "Inflate" filter contract. compress/gzip and
// compress/flate are the standard library's own ecosystem implementation
// of these formats; the example corpus does not carry a third-party
// replacement for either, so this is the one filter in this package
// built directly on the standard library (see DESIGN.md).
//

package stream

import (
	"compress/flate"
	"compress/gzip"
	"io"
)

// newInflateReader streams a gzip or raw-deflate (zlib-less, per spec's
// "raw-zlib") decode of src, matching spec §4.5's inflate filter.
func newInflateReader(src io.Reader, gzipFormat bool) (io.Reader, error) {
	if gzipFormat {
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, err
		}
		return zr, nil
	}
	return flate.NewReader(src), nil
}
