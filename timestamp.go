package prtp

import "time"

// nowMillis returns the current wall-clock time in milliseconds mod 2^32,
// matching the wire timestamp field's semantics. It is informational only
// and never used for RTT estimation.
func nowMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}
