package blockchain

import "time"

// nowMillis returns the current wall-clock time in milliseconds since the
// epoch, the same unit genesis and every produced block use for
// TimestampMS.
func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
