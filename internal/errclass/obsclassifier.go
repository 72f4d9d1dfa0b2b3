// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import "github.com/aicp-go/aicp/internal/obs"

// ObsClassifier adapts [Classify] to [obs.ErrClassifier], so constructors
// across this module can default to `errclass.ObsClassifier` instead of
// [obs.DefaultErrClassifier] when platform-aware classification is wanted.
var ObsClassifier obs.ErrClassifier = obs.ErrClassifierFunc(Classify)
