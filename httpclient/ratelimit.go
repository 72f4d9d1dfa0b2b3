//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: spec §4.7 "post_lrate" (POST body byte-rate limit).
//

package httpclient

import "time"

// throttle sleeps long enough that sending n more bytes keeps the
// average rate at or below ratePerSec bytes/second.
func throttle(n int, ratePerSec int64) {
	if ratePerSec <= 0 {
		return
	}
	d := time.Duration(float64(n) / float64(ratePerSec) * float64(time.Second))
	if d > 0 {
		time.Sleep(d)
	}
}
