// Package clock re-exports the monotonic clock abstraction used throughout
// vnet so that every aging/expiry computation takes an explicit, injectable
// "now" rather than reading the process clock directly.
package clock

import "github.com/AdguardTeam/golibs/timeutil"

// Clock returns the current time.  Production code uses [System]; tests
// inject a fake implementation so that aging, lease expiry, and timeout
// sweeps are deterministic.
type Clock = timeutil.Clock

// System is the production [Clock] backed by the real wall clock.
var System Clock = timeutil.SystemClock{}
