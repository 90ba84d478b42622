package progress

import (
	"sync/atomic"
	"time"
)

// DefaultPrintInterval is the minimum gap between printed progress lines.
const DefaultPrintInterval = 250 * time.Millisecond

// ShouldPrint rate-limits progress output. last holds the UnixNano timestamp
// of the previous print; the CAS makes sure concurrent sinks agree on a
// single winner per interval.
func ShouldPrint(last *int64, interval time.Duration) bool {
	now := time.Now().UnixNano()
	prev := atomic.LoadInt64(last)
	if now-prev < int64(interval) {
		return false
	}
	return atomic.CompareAndSwapInt64(last, prev, now)
}
