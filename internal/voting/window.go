package voting

import (
	"math"
	"time"
)

// ClosesAt returns the last instant (Unix seconds) at which a vote on an
// answer created at createdAt is accepted. The window is truncated to whole
// seconds. A negative window counts as zero: only the creation instant
// itself accepts votes.
func ClosesAt(createdAt int64, window time.Duration) int64 {
	secs := int64(window / time.Second)
	if secs < 0 {
		secs = 0
	}
	if createdAt > math.MaxInt64-secs {
		return math.MaxInt64
	}
	return createdAt + secs
}

// IsOpen reports whether the voting window is open at now.
// The boundary instant createdAt+window is still open.
func IsOpen(createdAt int64, window time.Duration, now int64) bool {
	return now <= ClosesAt(createdAt, window)
}
