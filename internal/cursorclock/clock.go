// Package cursorclock is the external-collaborator contract for wall-clock
// time (spec.md §5/§9). Request-path code never calls time.Now directly;
// it calls AdjustedNow so that the NTP-sync task (internal/ntpsync) can
// correct for local clock skew without touching call sites.
package cursorclock

import (
	"sync/atomic"
	"time"
)

var offsetNanos atomic.Int64

// AdjustedNow returns the current time adjusted by the last-observed NTP
// offset. With no sync task running the offset is zero and this is
// equivalent to time.Now().UTC().
func AdjustedNow() time.Time {
	return time.Now().UTC().Add(time.Duration(offsetNanos.Load()))
}

// SetOffset records a new clock offset, applied atomically to subsequent
// AdjustedNow calls. Called by the NTP sync task.
func SetOffset(d time.Duration) {
	offsetNanos.Store(int64(d))
}

// Offset returns the currently applied clock offset.
func Offset() time.Duration {
	return time.Duration(offsetNanos.Load())
}
